package scraper

import (
	"context"
	"errors"
	"math/rand"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"tripcost-scraper/internal/browserpool"
	"tripcost-scraper/internal/models"
)

// ScrapeFlights searches one-way flights for the given IATA pair and
// date, requesting prices in the given ISO-4217 currency. The currency
// actually rendered on the page is reported separately, since the site
// is free to ignore the request. Results are sorted by price
// ascending. Retries on failure; the exhausted-retry error carries the
// last underlying cause and the caller is expected to fall back to a
// structured API.
func (s *Scraper) ScrapeFlights(ctx context.Context, origin, destination, date, currency string) (*models.FlightResponse, error) {
	q := models.FlightQuery{
		Origin:      strings.ToUpper(origin),
		Destination: strings.ToUpper(destination),
		Date:        date,
		Currency:    strings.ToUpper(currency),
	}
	started := time.Now()

	var resp *models.FlightResponse
	err := withRetry(ctx, s.log, retryOptions{
		MaxRetries:      s.cfg.MaxRetries,
		BaseDelay:       s.cfg.RetryBaseDelay,
		CaptchaCooldown: s.cfg.CaptchaCooldown,
	}, func(ctx context.Context) error {
		r, attemptErr := s.flightAttempt(ctx, q)
		if attemptErr != nil {
			return attemptErr
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp.Metadata = models.Metadata{ScrapedAt: time.Now(), DurationMs: time.Since(started).Milliseconds()}
	s.log.Info().
		Str("route", q.Origin+"-"+q.Destination).
		Int("flights", len(resp.Flights)).
		Str("currency", resp.DetectedCurrency).
		Msg("flight scrape complete")
	return resp, nil
}

// flightAttempt performs one full scrape pass on a freshly leased tab.
// The lease is always released, on failure paths included.
func (s *Scraper) flightAttempt(ctx context.Context, q models.FlightQuery) (*models.FlightResponse, error) {
	lease, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	html, err := s.fetchFlightsHTML(ctx, lease, q)
	if err != nil {
		// Classify before the tab goes away so the retry loop can
		// apply the extended cooldown.
		if s.CheckCaptcha(lease.Ctx) {
			return nil, &models.CaptchaBlockError{URL: s.cfg.FlightsBaseURL, Err: err}
		}
		return nil, err
	}

	flights, carriers, detected, err := s.ExtractFlights(html, q)
	if err != nil {
		return nil, err
	}
	if len(flights) == 0 && s.DetectCaptchaText(html) {
		return nil, &models.CaptchaBlockError{URL: s.cfg.FlightsBaseURL, Err: errors.New("block page rendered instead of results")}
	}

	sort.Slice(flights, func(i, j int) bool { return flights[i].Price < flights[j].Price })

	return &models.FlightResponse{
		Flights:          flights,
		Carriers:         carriers,
		DetectedCurrency: detected,
	}, nil
}

// driveFlightSearch walks the live search UI: one-way mode, airport
// fields, date, submit, then snapshots the rendered markup once
// results (or a no-results notice) appear. Every optional step is
// best-effort; only navigation, field fill and submit are load-bearing.
func (s *Scraper) driveFlightSearch(ctx context.Context, lease *browserpool.Lease, q models.FlightQuery) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tab := lease.Ctx

	searchURL := s.cfg.FlightsBaseURL + "?curr=" + url.QueryEscape(q.Currency)
	navCtx, cancel := context.WithTimeout(tab, s.cfg.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(searchURL)); err != nil {
		return "", &models.NavigationError{Step: "navigate", URL: searchURL, Err: err}
	}

	s.DismissConsent(tab)
	s.selectOneWay(tab)

	if err := s.fillAirportField(tab, originFieldSelector, q.Origin); err != nil {
		return "", err
	}
	if err := s.fillAirportField(tab, destFieldSelector, q.Destination); err != nil {
		return "", err
	}
	s.fillDate(tab, q.Date)

	if err := s.submitSearch(tab); err != nil {
		return "", err
	}

	// Soft wait: proceed to extraction on timeout, partial renders are
	// common and still carry cards.
	pollUntil(tab, s.cfg.FlightResultsWait, "("+flightListItemsProbe+") || ("+noFlightResultsProbe+")")
	s.expandMoreResults(tab)

	var html string
	htmlCtx, cancelHTML := context.WithTimeout(tab, s.cfg.ActionTimeout)
	defer cancelHTML()
	if err := chromedp.Run(htmlCtx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", &models.NavigationError{Step: "snapshot", URL: searchURL, Err: err}
	}
	return html, nil
}

// selectOneWay switches the trip-type control to one-way. Best-effort:
// some site variants default to it.
func (s *Scraper) selectOneWay(ctx context.Context) {
	if !tryRun(ctx, probeTimeout, chromedp.Click(tripTypeSelector, chromedp.ByQuery, chromedp.NodeVisible)) {
		return
	}
	clickByText(ctx, probeTimeout, `[role="option"], li`, "one way", "one-way")
}

// fillAirportField types an airport code into a search field with
// randomized per-keystroke delay, then confirms via the autocomplete
// dropdown or a plain Enter.
func (s *Scraper) fillAirportField(ctx context.Context, selector, code string) error {
	fieldCtx, cancel := context.WithTimeout(ctx, s.cfg.ActionTimeout)
	defer cancel()
	if err := chromedp.Run(fieldCtx, typeSlowly(selector, code)); err != nil {
		return &models.NavigationError{Step: "fill " + code, Err: err}
	}

	if !tryRun(ctx, autocompleteWait,
		chromedp.WaitVisible(autocompleteSelector, chromedp.ByQuery),
		chromedp.Click(autocompleteSelector, chromedp.ByQuery)) {
		tryRun(ctx, probeTimeout, chromedp.KeyEvent(kb.Enter))
	}
	return nil
}

// fillDate sets the departure date, confirming via Enter or a Done
// control. Best-effort: some variants accept the typed value directly.
func (s *Scraper) fillDate(ctx context.Context, date string) {
	if !tryRun(ctx, s.cfg.ActionTimeout, typeSlowly(dateFieldSelector, date)) {
		return
	}
	if !tryRun(ctx, probeTimeout, chromedp.KeyEvent(kb.Enter)) {
		return
	}
	tryRun(ctx, probeTimeout, chromedp.Click(doneButtonSelector, chromedp.ByQuery, chromedp.NodeVisible))
}

// submitSearch fires the search. This step is required: without it
// there is nothing to extract.
func (s *Scraper) submitSearch(ctx context.Context) error {
	if tryRun(ctx, s.cfg.ActionTimeout, chromedp.Click(searchButtonSelector, chromedp.ByQuery, chromedp.NodeVisible)) {
		return nil
	}
	if clickByText(ctx, probeTimeout, "button", "search", "explore") {
		return nil
	}
	return &models.NavigationError{Step: "submit search", Err: context.DeadlineExceeded}
}

// expandMoreResults clicks any "more flights" control so truncated
// lists are expanded before extraction.
func (s *Scraper) expandMoreResults(ctx context.Context) {
	if clickByText(ctx, probeTimeout, moreFlightsSelectors, "more flights", "show more") {
		// Give the expanded rows a moment to render.
		tryRun(ctx, probeTimeout, chromedp.Sleep(resultsPollEvery))
	}
}

// typeSlowly clicks a field, clears it, and types text one rune at a
// time with a randomized delay per keystroke.
func typeSlowly(selector, text string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := chromedp.Click(selector, chromedp.ByQuery).Do(ctx); err != nil {
			return err
		}
		if err := chromedp.SetValue(selector, "", chromedp.ByQuery).Do(ctx); err != nil {
			return err
		}
		for _, r := range text {
			if err := chromedp.SendKeys(selector, string(r), chromedp.ByQuery).Do(ctx); err != nil {
				return err
			}
			delay := typeDelayMin + time.Duration(rand.Int63n(int64(typeDelayJitter)))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
}

// ExtractFlights pulls flight offers out of rendered search markup. A
// list item qualifies as a flight card only when its text shows a
// currency amount and at least two times of day (departure and
// arrival); price-only fragments are filter chips and ads, not
// flights.
func (s *Scraper) ExtractFlights(pageHTML string, q models.FlightQuery) ([]models.FlightOffer, map[string]string, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, nil, "", &models.ExtractionError{Step: "parse html", Err: err}
	}

	offers := make([]models.FlightOffer, 0)
	carriers := make(map[string]string)
	seen := make(map[string]bool)

	doc.Find("li").Each(func(_ int, li *goquery.Selection) {
		offer, ok := s.flightFromCard(li, q)
		if !ok || seen[offer.ID] {
			return
		}
		seen[offer.ID] = true
		if offer.AirlineName != "" {
			carriers[offer.AirlineCode] = offer.AirlineName
		}
		offers = append(offers, *offer)
	})

	detected := s.DetectCurrency(doc.Text(), q.Currency)
	return offers, carriers, detected, nil
}

// isFlightCardText is the card qualifier shared by extraction and the
// nested-wrapper check.
func (s *Scraper) isFlightCardText(text string) bool {
	return len(s.regexes["currencyAmount"].FindAllString(text, 1)) > 0 &&
		len(s.regexes["timeOfDay"].FindAllString(text, flightCardMinTimes)) >= flightCardMinTimes
}

// flightFromCard heuristically pulls one offer from a candidate list
// item.
func (s *Scraper) flightFromCard(li *goquery.Selection, q models.FlightQuery) (*models.FlightOffer, bool) {
	lines := textLines(li)
	text := strings.Join(lines, "\n")
	if !s.isFlightCardText(text) {
		return nil, false
	}

	// Wrapper elements containing a full card of their own are list
	// containers, not cards; the inner item will match on its own.
	nested := false
	li.Find("li").EachWithBreak(func(_ int, inner *goquery.Selection) bool {
		if s.isFlightCardText(strings.Join(textLines(inner), "\n")) {
			nested = true
			return false
		}
		return true
	})
	if nested {
		return nil, false
	}

	price := 0.0
	for _, amount := range s.regexes["currencyAmount"].FindAllString(text, -1) {
		if p := ParsePrice(amount); p > 0 {
			price = p
			break
		}
	}
	if price <= 0 {
		return nil, false
	}

	times := s.regexes["timeOfDay"].FindAllString(text, -1)
	depClock, arrClock := times[0], times[1]
	overnight := strings.Contains(text, "+1") || clockMinutes(arrClock) < clockMinutes(depClock)
	departure := combineDateTime(q.Date, depClock, 0)
	arrivalOffset := 0
	if overnight {
		arrivalOffset = 1
	}
	arrival := combineDateTime(q.Date, arrClock, arrivalOffset)

	minutes := 0
	for _, line := range lines {
		if s.regexes["durationHours"].MatchString(line) {
			minutes = s.ParseDurationMinutes(line)
			break
		}
	}
	duration := ""
	if minutes > 0 {
		duration = MinutesToISODuration(minutes)
	}

	stops := 0
	if !s.regexes["nonstop"].MatchString(text) {
		if m := s.regexes["stopCount"].FindStringSubmatch(text); m != nil {
			stops, _ = strconv.Atoi(m[1])
		}
	}

	airline := s.airlineLine(lines)
	code := ""
	if airline != "" {
		code = carrierCode(airline)
	}

	var layovers []models.Layover
	if stops > 0 {
		for _, token := range s.regexes["iataCode"].FindAllString(text, -1) {
			if token == q.Origin || token == q.Destination || isoCurrencyCodes[token] {
				continue
			}
			layovers = append(layovers, models.Layover{Airport: token})
			if len(layovers) >= stops {
				break
			}
		}
	}

	offer := &models.FlightOffer{
		ID:          contentID(text),
		Price:       price,
		AirlineCode: code,
		AirlineName: airline,
		AirlineLogo: s.firstRealImage(li),
		Departure:   departure,
		Arrival:     arrival,
		Duration:    duration,
		Stops:       stops,
		Layovers:    layovers,
		// DOM text cannot reliably recover per-leg detail, so the
		// itinerary is collapsed into one synthetic segment even when
		// stops > 0.
		Segments: []models.FlightSegment{{
			Departure:   departure,
			Arrival:     arrival,
			Origin:      q.Origin,
			Destination: q.Destination,
			Duration:    duration,
		}},
	}
	return offer, true
}

// airlineLine picks the first card line that is none of the
// time/price/duration/stops lines and reads like a proper-noun phrase.
func (s *Scraper) airlineLine(lines []string) string {
	for _, line := range lines {
		if len(line) < minAirlineLineLen || len(line) > maxAirlineLineLen {
			continue
		}
		if s.regexes["timeOfDay"].MatchString(line) ||
			s.regexes["currencyAmount"].MatchString(line) ||
			s.regexes["durationHours"].MatchString(line) ||
			s.regexes["nonstop"].MatchString(line) ||
			s.regexes["stopCount"].MatchString(line) {
			continue
		}
		if isProperNounPhrase(line) {
			return line
		}
	}
	return ""
}

// isProperNounPhrase recognizes airline-name-shaped text: leading
// capital, mostly letters and spaces, not a bare uppercase code.
func isProperNounPhrase(line string) bool {
	runes := []rune(line)
	if !unicode.IsUpper(runes[0]) {
		return false
	}
	if len(runes) == 3 && line == strings.ToUpper(line) {
		return false
	}
	letters := 0
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsSpace(r) {
			letters++
		}
	}
	return letters*10 >= len(runes)*8
}

// clockMinutes orders clock strings within a day for overnight
// detection.
func clockMinutes(clock string) int {
	upper := strings.ToUpper(clock)
	pm := strings.Contains(upper, "PM")
	am := strings.Contains(upper, "AM")
	parts := strings.SplitN(strings.Fields(upper)[0], ":", 2)
	h, _ := strconv.Atoi(parts[0])
	m := 0
	if len(parts) > 1 {
		digits := strings.TrimFunc(parts[1], func(r rune) bool { return r < '0' || r > '9' })
		m, _ = strconv.Atoi(digits)
	}
	if pm && h < 12 {
		h += 12
	}
	if am && h == 12 {
		h = 0
	}
	return h*60 + m
}
