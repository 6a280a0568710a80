package config

import (
	"os"
	"regexp"
	"strconv"
	"time"
)

// PoolConfig contains configuration for the shared browser page pool
type PoolConfig struct {
	MaxPages      int
	MaxBrowserAge time.Duration
	ChromePath    string
	Headless      bool
}

// ScrapeConfig contains general scraping configuration
type ScrapeConfig struct {
	FlightsBaseURL    string
	HotelsBaseURL     string
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
	FlightResultsWait time.Duration
	HotelResultsWait  time.Duration
	MaxRetries        int
	RetryBaseDelay    time.Duration
	CaptchaCooldown   time.Duration
	UserAgents        []string
}

// Config is the root configuration for the scraping core
type Config struct {
	Pool   PoolConfig
	Scrape ScrapeConfig
}

// DefaultConfig returns the default configuration, with environment
// overrides for the deployment-specific knobs
func DefaultConfig() *Config {
	maxPages := 3
	if env := os.Getenv("SCRAPE_MAX_PAGES"); env != "" {
		if parsed, err := strconv.Atoi(env); err == nil && parsed > 0 {
			maxPages = parsed
		}
	}

	maxAgeMin := 30
	if env := os.Getenv("SCRAPE_BROWSER_MAX_AGE_MIN"); env != "" {
		if parsed, err := strconv.Atoi(env); err == nil && parsed > 0 {
			maxAgeMin = parsed
		}
	}

	userAgents := DefaultUserAgents()
	if env := os.Getenv("SCRAPE_USER_AGENT"); env != "" {
		userAgents = []string{env}
	}

	return &Config{
		Pool: PoolConfig{
			MaxPages:      maxPages,
			MaxBrowserAge: time.Duration(maxAgeMin) * time.Minute,
			ChromePath:    os.Getenv("CHROME_PATH"),
			Headless:      os.Getenv("SCRAPE_HEADFUL") == "",
		},
		Scrape: ScrapeConfig{
			FlightsBaseURL:    "https://www.google.com/travel/flights",
			HotelsBaseURL:     "https://www.google.com/travel/search",
			NavigationTimeout: 45 * time.Second,
			ActionTimeout:     15 * time.Second,
			FlightResultsWait: 20 * time.Second,
			HotelResultsWait:  15 * time.Second,
			MaxRetries:        2,
			RetryBaseDelay:    2 * time.Second,
			CaptchaCooldown:   30 * time.Second,
			UserAgents:        userAgents,
		},
	}
}

// DefaultUserAgents returns the fixed pool of user agents a lease is
// randomly assigned from
func DefaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36 Edg/119.0.0.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	}
}

// CompileRegexes pre-compiles the heuristic extraction patterns shared
// by the flight and hotel scrapers
func CompileRegexes() map[string]*regexp.Regexp {
	return map[string]*regexp.Regexp{
		// A rendered currency amount: "₹3,500", "$ 129.99", "1.299 EUR"
		"currencyAmount": regexp.MustCompile(`(?:[€£$₹¥]\s?\d[\d,.]*)|(?:\d[\d,.]*\s?(?:USD|EUR|GBP|INR|JPY|AUD|CAD))`),
		// A time of day: "9:45 PM", "21:45"
		"timeOfDay": regexp.MustCompile(`\b\d{1,2}:\d{2}(?:\s?[APap][Mm])?\b`),
		// Duration components: "2h 30m", "2 hr 30 min", "3h"
		"durationHours":   regexp.MustCompile(`(\d+)\s*h(?:r|our)?s?\b`),
		"durationMinutes": regexp.MustCompile(`(\d+)\s*m(?:in(?:ute)?)?s?\b`),
		"bareNumber":      regexp.MustCompile(`^\s*(\d+)\s*$`),
		// Stop counts: "Nonstop", "1 stop", "2 stops"
		"nonstop":   regexp.MustCompile(`(?i)\b(?:non-?stop|direct)\b`),
		"stopCount": regexp.MustCompile(`(\d+)\s*stops?\b`),
		// Uppercase 3-letter tokens are layover airport candidates
		"iataCode": regexp.MustCompile(`\b[A-Z]{3}\b`),
		// Hotel fields
		"rating":      regexp.MustCompile(`\b([1-5]\.\d)\b`),
		"reviewCount": regexp.MustCompile(`\(([\d,]+)\)`),
		"starClass":   regexp.MustCompile(`\b([1-5])-star\b`),
		// Block-page phrases served instead of results
		"captcha": regexp.MustCompile(`(?i)(unusual traffic|captcha|are not a robot|verify you are human)`),
		// Result-list chrome the structural hotel extraction cannot
		// distinguish from real listings
		"hotelChrome": regexp.MustCompile(`(?i)^(sort by|filter|free cancellation|all filters|price range|guest rating|star rating|amenities|sponsored|when to visit|what you.ll pay|top sights|under\s?[€£$₹¥]|deals?\b)`),
		// Known placeholder / icon image hosts that are never photos
		"placeholderImage": regexp.MustCompile(`(?i)(gstatic\.com/images|maps\.gstatic|\.svg(?:$|\?)|data:image|spacer|1x1|blank\.)`),
	}
}
