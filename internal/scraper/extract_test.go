package scraper

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripcost-scraper/internal/config"
)

func newExtractScraper() *Scraper {
	return &Scraper{
		regexes: config.CompileRegexes(),
		log:     zerolog.Nop(),
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"rupee with thousands comma", "₹3,500", 3500},
		{"dollar with cents", "$ 129.99", 129.99},
		{"suffix code", "1,299 EUR", 1299},
		{"plain number", "450", 450},
		{"no digits", "Call for price", 0},
		{"empty", "", 0},
		{"symbols only", "₹,.", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePrice(tt.raw))
		})
	}
}

func TestParsePriceIsIdempotentOnItsOwnOutput(t *testing.T) {
	first := ParsePrice("₹3,500")
	second := ParsePrice("3500")
	assert.Equal(t, first, second)
}

func TestParseDurationMinutes(t *testing.T) {
	s := newExtractScraper()

	tests := []struct {
		raw  string
		want int
	}{
		{"2h 30m", 150},
		{"2 hr 30 min", 150},
		{"3h", 180},
		{"45 min", 45},
		{"90", 90},
		{"direct flight", 0},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, s.ParseDurationMinutes(tt.raw))
		})
	}
}

func TestMinutesToISODuration(t *testing.T) {
	tests := []struct {
		minutes int
		want    string
	}{
		{150, "PT2H30M"},
		{180, "PT3H"},
		{45, "PT45M"},
		{0, "PT0M"},
		{-10, "PT0M"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MinutesToISODuration(tt.minutes))
	}
}

func TestDurationRoundTrip(t *testing.T) {
	s := newExtractScraper()
	minutes := s.ParseDurationMinutes("2h 30m")
	require.Equal(t, 150, minutes)
	assert.Equal(t, "PT2H30M", MinutesToISODuration(minutes))
}

func TestDetectCurrency(t *testing.T) {
	s := newExtractScraper()

	t.Run("majority symbol wins", func(t *testing.T) {
		text := "₹3,500 flights from ₹2,800 and hotels at ₹4,200 or $50"
		assert.Equal(t, "INR", s.DetectCurrency(text, "EUR"))
	})

	t.Run("falls back to requested code", func(t *testing.T) {
		assert.Equal(t, "EUR", s.DetectCurrency("no prices rendered here", "EUR"))
	})

	t.Run("iso suffix counts", func(t *testing.T) {
		assert.Equal(t, "USD", s.DetectCurrency("from 129 USD per night, 140 USD average", "GBP"))
	})
}

func TestTextLinesPreservesStructure(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<div><span>9:45 PM</span><p>IndiGo</p><script>var x=1;</script><p> ₹3,500 </p></div>`))
	require.NoError(t, err)

	lines := textLines(doc.Find("div"))
	assert.Equal(t, []string{"9:45 PM", "IndiGo", "₹3,500"}, lines)
}

func TestContentIDIsStable(t *testing.T) {
	a := contentID("Hotel Taj Palace")
	b := contentID("Hotel Taj Palace")
	c := contentID("Hotel Oberoi")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestCombineDateTime(t *testing.T) {
	tests := []struct {
		name   string
		date   string
		clock  string
		offset int
		want   string
	}{
		{"12h clock", "2025-06-01", "9:45 PM", 0, "2025-06-01T21:45:00"},
		{"12h no space", "2025-06-01", "9:45PM", 0, "2025-06-01T21:45:00"},
		{"24h clock", "2025-06-01", "21:45", 0, "2025-06-01T21:45:00"},
		{"overnight arrival", "2025-06-01", "1:10 AM", 1, "2025-06-02T01:10:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, combineDateTime(tt.date, tt.clock, tt.offset))
		})
	}
}

func TestCarrierCode(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Air India", "AI"},
		{"IndiGo", "IN"},
		{"Vistara", "VI"},
		{"", "XX"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, carrierCode(tt.name))
	}
}

func TestFirstRealImageSkipsPlaceholders(t *testing.T) {
	s := newExtractScraper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<div>
		<img src="https://www.gstatic.com/images/icons/star.png">
		<img src="https://example.com/spacer.gif">
		<img src="https://photos.example.com/hotel-front.jpg" alt="Hotel front">
	</div>`))
	require.NoError(t, err)

	assert.Equal(t, "https://photos.example.com/hotel-front.jpg", s.firstRealImage(doc.Find("div")))
}

func TestClockMinutes(t *testing.T) {
	assert.Equal(t, 21*60+45, clockMinutes("9:45 PM"))
	assert.Equal(t, 5, clockMinutes("12:05 AM"))
	assert.Equal(t, 12*60+30, clockMinutes("12:30 PM"))
	assert.Equal(t, 23*60+50, clockMinutes("23:50"))
}
