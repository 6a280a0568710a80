// Package scraper drives pooled browser tabs through live travel-search
// sites and extracts structured flight and hotel results from the
// rendered markup. The sites are uncontrolled and versionless, so every
// extraction heuristic is best-effort and kept as a small pure
// function that can be patched independently when markup drifts.
package scraper

import "time"

// Soft-wait tuning. Timeouts on result waits are not fatal; partial
// renders are common and still yield useful text.
const (
	consentWait      = 2 * time.Second
	probeTimeout     = 1500 * time.Millisecond
	autocompleteWait = 3 * time.Second
	resultsPollEvery = 500 * time.Millisecond
	typeDelayMin     = 50 * time.Millisecond
	typeDelayJitter  = 100 * time.Millisecond
)

// Consent dialog dismissal candidates, tried in order before the
// generic button-text scan.
var consentButtonSelectors = []string{
	`button[aria-label="Accept all"]`,
	`button[aria-label="Reject all"]`,
	`form[action*="consent"] button`,
}

// Flight search form candidates. The site ships no stable IDs, so
// these lean on ARIA attributes, which drift slower than class names.
const (
	tripTypeSelector      = `div[role="combobox"], [aria-label*="trip"], [aria-label*="Trip"]`
	originFieldSelector   = `input[aria-label*="Where from"], input[placeholder*="Where from"], input[aria-label*="Origin"]`
	destFieldSelector     = `input[aria-label*="Where to"], input[placeholder*="Where to"], input[aria-label*="Destination"]`
	dateFieldSelector     = `input[aria-label*="Departure"], input[placeholder*="Departure"]`
	autocompleteSelector  = `ul[role="listbox"] li, [role="option"]`
	searchButtonSelector  = `button[aria-label*="Search"], button[aria-label*="search"], button[aria-label*="Explore"]`
	doneButtonSelector    = `button[aria-label*="Done"]`
	flightListItemsProbe  = `document.querySelectorAll('li').length > 10`
	noFlightResultsProbe  = `/no (flights|results) (found|match)/i.test(document.body ? document.body.innerText : '')`
	moreFlightsSelectors  = `button, [role="button"]`
	flightCardMinTimes    = 2
	minAirlineLineLen     = 2
	maxAirlineLineLen     = 40
)

// Hotel extraction tuning.
const (
	hotelLinkProbe        = `document.querySelectorAll('a[href*="/hotels/"], a[href*="/entity/"]').length >= 3`
	noHotelResultsProbe   = `/no (properties|hotels|results)/i.test(document.body ? document.body.innerText : '')`
	hotelAncestorLevels   = 6
	hotelCardMinTextLen   = 60
	hotelCardMaxTextLen   = 1800
	hotelMaxResults       = 10
	hotelMaxPrice         = 500000
	hotelMaxReviewCount   = 100000
	hotelMinRating        = 1.0
	hotelMaxRating        = 5.0
)

// Anchors pointing at an individual hotel's detail page.
var hotelDetailHrefMarkers = []string{"/hotels/", "/entity/", "/hotel/"}

// currencySymbols maps rendered symbols to ISO-4217 codes for
// detected-currency reporting. The site may ignore the requested
// currency parameter entirely.
var currencySymbols = map[string]string{
	"₹": "INR",
	"€": "EUR",
	"£": "GBP",
	"$": "USD",
	"¥": "JPY",
}

// isoCurrencyCodes excludes currency tokens from layover airport-code
// matching, since both are 3-letter uppercase.
var isoCurrencyCodes = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "INR": true, "JPY": true,
	"AUD": true, "CAD": true, "CHF": true, "CNY": true, "AED": true,
}
