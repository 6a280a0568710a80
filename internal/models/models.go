package models

import "time"

// FlightQuery represents a flight search request
type FlightQuery struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Date        string `json:"date"`
	Currency    string `json:"currency"`
}

// HotelQuery represents a hotel search request
type HotelQuery struct {
	Query    string `json:"query"`
	CheckIn  string `json:"checkIn"`
	CheckOut string `json:"checkOut"`
	Currency string `json:"currency"`
}

// Layover describes an intermediate stop within a flight offer
type Layover struct {
	Airport  string `json:"airport"`
	Duration string `json:"duration,omitempty"`
}

// FlightSegment is one leg of an itinerary. DOM scraping cannot
// reliably recover per-leg detail, so offers carry a single synthetic
// segment spanning the whole itinerary even when Stops > 0.
type FlightSegment struct {
	Departure   string `json:"departure"`
	Arrival     string `json:"arrival"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Duration    string `json:"duration,omitempty"`
}

// FlightOffer represents one scraped flight result
type FlightOffer struct {
	ID          string          `json:"id"`
	Price       float64         `json:"price"`
	AirlineCode string          `json:"airlineCode,omitempty"`
	AirlineName string          `json:"airlineName,omitempty"`
	AirlineLogo string          `json:"airlineLogo,omitempty"`
	Departure   string          `json:"departure"`
	Arrival     string          `json:"arrival"`
	Duration    string          `json:"duration,omitempty"`
	Stops       int             `json:"stops"`
	Layovers    []Layover       `json:"layovers,omitempty"`
	Segments    []FlightSegment `json:"segments"`
}

// FlightResponse is the successful result of a flight scrape
type FlightResponse struct {
	Flights          []FlightOffer     `json:"flights"`
	Carriers         map[string]string `json:"carriers"`
	DetectedCurrency string            `json:"detectedCurrency"`
	Metadata         Metadata          `json:"metadata"`
}

// HotelListing represents one scraped hotel result
type HotelListing struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Rating      float64 `json:"rating,omitempty"`
	ReviewCount int     `json:"reviewCount,omitempty"`
	Stars       int     `json:"stars,omitempty"`
	Photo       string  `json:"photo,omitempty"`
	URL         string  `json:"url,omitempty"`
}

// HotelResponse is the successful result of a hotel scrape
type HotelResponse struct {
	Hotels           []HotelListing `json:"hotels"`
	DetectedCurrency string         `json:"detectedCurrency"`
	Metadata         Metadata       `json:"metadata"`
}

// ErrorResponse represents error responses
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Metadata contains request metadata
type Metadata struct {
	ScrapedAt  time.Time `json:"scrapedAt"`
	DurationMs int64     `json:"durationMs"`
}
