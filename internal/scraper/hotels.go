package scraper

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"tripcost-scraper/internal/browserpool"
	"tripcost-scraper/internal/models"
)

// ScrapeHotels searches hotel listings for a free-text destination and
// date range. At most ten listings are returned, in page order — the
// site front-loads relevance, not price. Retry semantics match the
// flight scraper.
func (s *Scraper) ScrapeHotels(ctx context.Context, query, checkIn, checkOut, currency string) (*models.HotelResponse, error) {
	q := models.HotelQuery{
		Query:    query,
		CheckIn:  checkIn,
		CheckOut: checkOut,
		Currency: strings.ToUpper(currency),
	}
	started := time.Now()

	var resp *models.HotelResponse
	err := withRetry(ctx, s.log, retryOptions{
		MaxRetries:      s.cfg.MaxRetries,
		BaseDelay:       s.cfg.RetryBaseDelay,
		CaptchaCooldown: s.cfg.CaptchaCooldown,
	}, func(ctx context.Context) error {
		r, attemptErr := s.hotelAttempt(ctx, q)
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
		Str("query", q.Query).
		Int("hotels", len(resp.Hotels)).
		Str("currency", resp.DetectedCurrency).
		Msg("hotel scrape complete")
	return resp, nil
}

func (s *Scraper) hotelAttempt(ctx context.Context, q models.HotelQuery) (*models.HotelResponse, error) {
	lease, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	html, err := s.fetchHotelsHTML(ctx, lease, q)
	if err != nil {
		if s.CheckCaptcha(lease.Ctx) {
			return nil, &models.CaptchaBlockError{URL: s.cfg.HotelsBaseURL, Err: err}
		}
		return nil, err
	}

	hotels, detected, err := s.ExtractHotels(html, q)
	if err != nil {
		return nil, err
	}
	if len(hotels) == 0 && s.DetectCaptchaText(html) {
		return nil, &models.CaptchaBlockError{URL: s.cfg.HotelsBaseURL, Err: errors.New("block page rendered instead of results")}
	}

	return &models.HotelResponse{Hotels: hotels, DetectedCurrency: detected}, nil
}

// driveHotelSearch navigates the hotel search with query, date range
// and currency parameters, then snapshots the rendered markup once
// listing links (or a no-results notice) appear.
func (s *Scraper) driveHotelSearch(ctx context.Context, lease *browserpool.Lease, q models.HotelQuery) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tab := lease.Ctx

	params := url.Values{}
	params.Set("q", q.Query+" hotels")
	params.Set("dates", q.CheckIn+","+q.CheckOut)
	params.Set("curr", q.Currency)
	searchURL := s.cfg.HotelsBaseURL + "?" + params.Encode()

	navCtx, cancel := context.WithTimeout(tab, s.cfg.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(searchURL)); err != nil {
		return "", &models.NavigationError{Step: "navigate", URL: searchURL, Err: err}
	}

	s.DismissConsent(tab)

	// Soft wait for listing cards; timeout is not fatal.
	pollUntil(tab, s.cfg.HotelResultsWait, "("+hotelLinkProbe+") || ("+noHotelResultsProbe+")")

	var html string
	htmlCtx, cancelHTML := context.WithTimeout(tab, s.cfg.ActionTimeout)
	defer cancelHTML()
	if err := chromedp.Run(htmlCtx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", &models.NavigationError{Step: "snapshot", URL: searchURL, Err: err}
	}
	return html, nil
}

// ExtractHotels pulls hotel listings out of rendered search markup.
// Primary strategy: anchors to hotel detail pages, walked up to a
// card-sized ancestor container. Fallback, only when that finds
// nothing: generic blocks of card-sized text that also mention a
// rating, review or star token. Both paths end in the same name
// denylist, dedupe, price band and result cap.
func (s *Scraper) ExtractHotels(pageHTML string, q models.HotelQuery) ([]models.HotelListing, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, "", &models.ExtractionError{Step: "parse html", Err: err}
	}

	listings := s.hotelsFromDetailAnchors(doc)
	if len(listings) == 0 {
		listings = s.hotelsFromGenericBlocks(doc)
	}

	detected := s.DetectCurrency(doc.Text(), q.Currency)
	return listings, detected, nil
}

func (s *Scraper) hotelsFromDetailAnchors(doc *goquery.Document) []models.HotelListing {
	var listings []models.HotelListing
	seen := make(map[string]bool)

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if len(listings) >= hotelMaxResults {
			return
		}
		href, _ := a.Attr("href")
		if !isHotelDetailHref(href) {
			return
		}

		card := cardContainer(a)
		if card == nil {
			return
		}
		listing, ok := s.hotelFromCard(card)
		if !ok || seen[listing.Name] {
			return
		}
		listing.URL = href
		seen[listing.Name] = true
		listings = append(listings, *listing)
	})
	return listings
}

// hotelsFromGenericBlocks is the structural fallback for markup
// without recognizable detail links. The extra rating/review/star
// gate keeps arbitrary page chrome out.
func (s *Scraper) hotelsFromGenericBlocks(doc *goquery.Document) []models.HotelListing {
	var listings []models.HotelListing
	seen := make(map[string]bool)

	doc.Find("div").Each(func(_ int, div *goquery.Selection) {
		if len(listings) >= hotelMaxResults {
			return
		}
		text := div.Text()
		if len(text) < hotelCardMinTextLen || len(text) > hotelCardMaxTextLen {
			return
		}
		lower := strings.ToLower(text)
		if !s.regexes["rating"].MatchString(text) &&
			!strings.Contains(lower, "review") &&
			!strings.Contains(lower, "star") {
			return
		}
		// Skip wrappers whose child block is itself card-sized; the
		// child produces the tighter extraction.
		childCard := false
		div.Children().EachWithBreak(func(_ int, child *goquery.Selection) bool {
			if l := len(child.Text()); l >= hotelCardMinTextLen && l <= hotelCardMaxTextLen {
				childCard = true
				return false
			}
			return true
		})
		if childCard {
			return
		}
		listing, ok := s.hotelFromCard(div)
		if !ok || seen[listing.Name] {
			return
		}
		seen[listing.Name] = true
		listings = append(listings, *listing)
	})
	return listings
}

// hotelFromCard applies the shared field heuristics to one candidate
// container.
func (s *Scraper) hotelFromCard(card *goquery.Selection) (*models.HotelListing, bool) {
	lines := textLines(card)
	text := strings.Join(lines, "\n")

	// A listing always renders a price; containers without one are
	// navigation or filter panels.
	price := 0.0
	for _, amount := range s.regexes["currencyAmount"].FindAllString(text, -1) {
		if p := ParsePrice(amount); p > 0 {
			price = p
			break
		}
	}
	if price <= 0 || price >= hotelMaxPrice {
		return nil, false
	}

	name := s.hotelNameLine(lines)
	if name == "" || s.regexes["hotelChrome"].MatchString(name) {
		return nil, false
	}

	listing := &models.HotelListing{
		ID:    contentID(name),
		Name:  name,
		Price: price,
		Photo: s.firstRealImage(card),
	}

	if m := s.regexes["rating"].FindStringSubmatch(text); m != nil {
		if rating, err := strconv.ParseFloat(m[1], 64); err == nil && rating >= hotelMinRating && rating <= hotelMaxRating {
			listing.Rating = rating
		}
	}
	if strings.Contains(strings.ToLower(text), "review") {
		if m := s.regexes["reviewCount"].FindStringSubmatch(text); m != nil {
			if count, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil && count <= hotelMaxReviewCount {
				listing.ReviewCount = count
			}
		}
	}
	if m := s.regexes["starClass"].FindStringSubmatch(text); m != nil {
		listing.Stars, _ = strconv.Atoi(m[1])
	}

	return listing, true
}

// hotelNameLine picks the first line that is not itself a price,
// rating, review-count or short-label line.
func (s *Scraper) hotelNameLine(lines []string) string {
	for _, line := range lines {
		if len(line) < 4 {
			continue
		}
		if s.regexes["currencyAmount"].MatchString(line) ||
			s.regexes["rating"].MatchString(line) ||
			s.regexes["reviewCount"].MatchString(line) ||
			s.regexes["starClass"].MatchString(line) {
			continue
		}
		return line
	}
	return ""
}

// cardContainer walks an anchor's ancestors until the text length
// reaches a plausible single-card range. Returns nil when no ancestor
// within reach fits.
func cardContainer(a *goquery.Selection) *goquery.Selection {
	node := a
	for level := 0; level < hotelAncestorLevels; level++ {
		node = node.Parent()
		if node.Length() == 0 {
			return nil
		}
		if l := len(node.Text()); l >= hotelCardMinTextLen && l <= hotelCardMaxTextLen {
			return node
		}
	}
	return nil
}

func isHotelDetailHref(href string) bool {
	for _, marker := range hotelDetailHrefMarkers {
		if strings.Contains(href, marker) {
			return true
		}
	}
	return false
}
