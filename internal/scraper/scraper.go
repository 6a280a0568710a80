package scraper

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"tripcost-scraper/internal/browserpool"
	"tripcost-scraper/internal/config"
	"tripcost-scraper/internal/models"
)

// pageFetcher renders a search and returns the page HTML. Split out of
// the scrapers so extraction can be tested against synthetic markup
// without a live browser.
type flightFetcher func(ctx context.Context, lease *browserpool.Lease, q models.FlightQuery) (string, error)
type hotelFetcher func(ctx context.Context, lease *browserpool.Lease, q models.HotelQuery) (string, error)

// Scraper owns both site drivers. It borrows tabs from the shared
// pool, never holding more than one per in-flight scrape.
type Scraper struct {
	pool    *browserpool.Pool
	cfg     config.ScrapeConfig
	regexes map[string]*regexp.Regexp
	log     zerolog.Logger

	fetchFlightsHTML flightFetcher
	fetchHotelsHTML  hotelFetcher
}

// NewScraper creates a scraper over a shared page pool.
func NewScraper(pool *browserpool.Pool, cfg config.ScrapeConfig, log zerolog.Logger) *Scraper {
	s := &Scraper{
		pool:    pool,
		cfg:     cfg,
		regexes: config.CompileRegexes(),
		log:     log,
	}
	s.fetchFlightsHTML = s.driveFlightSearch
	s.fetchHotelsHTML = s.driveHotelSearch
	return s
}

// tryRun executes optional DOM probes under a bounded timeout and
// reports success instead of propagating failure. Consent dismissal,
// "more results" clicks and similar steps are genuinely optional, not
// invariant violations.
func tryRun(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) bool {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return chromedp.Run(probeCtx, actions...) == nil
}

// clickByText scans elements matching selector for visible text
// containing any needle (case-insensitive) and clicks the first match.
func clickByText(ctx context.Context, timeout time.Duration, selector string, needles ...string) bool {
	js := `(() => {
		const needles = ` + jsStringArray(needles) + `;
		for (const el of document.querySelectorAll(` + jsString(selector) + `)) {
			const text = (el.innerText || '').toLowerCase();
			if (needles.some(n => text.includes(n))) { el.click(); return true; }
		}
		return false;
	})()`
	var clicked bool
	if !tryRun(ctx, timeout, chromedp.Evaluate(js, &clicked)) {
		return false
	}
	return clicked
}

// pollUntil re-evaluates a boolean JS expression until it holds or the
// timeout elapses. Callers proceed to extraction on timeout; partial
// renders still carry useful text.
func pollUntil(ctx context.Context, timeout time.Duration, expr string) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var ok bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(expr, &ok)); err == nil && ok {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(resultsPollEvery):
		}
	}
	return false
}

// pageBodyText snapshots the visible page text, swallowing any error.
func pageBodyText(ctx context.Context) string {
	var text string
	if !tryRun(ctx, probeTimeout*2, chromedp.Text("body", &text, chromedp.ByQuery)) {
		return ""
	}
	return text
}

func jsString(s string) string {
	b := make([]byte, 0, len(s)+2)
	b = append(b, '\'')
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'', '\\':
			b = append(b, '\\', s[i])
		case '\n':
			b = append(b, '\\', 'n')
		default:
			b = append(b, s[i])
		}
	}
	return string(append(b, '\''))
}

func jsStringArray(items []string) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = jsString(item)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
