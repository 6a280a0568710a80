package scraper

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ParsePrice extracts a numeric amount from a rendered price string.
// Everything except digits, dot and comma is stripped, thousands
// commas dropped, and the remainder parsed as a float. Malformed input
// yields 0; it never panics.
func ParsePrice(raw string) float64 {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	cleaned := strings.ReplaceAll(b.String(), ",", "")
	if cleaned == "" {
		return 0
	}
	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return price
}

// ParseDurationMinutes extracts total minutes from free-form duration
// text: "2h 30m", "2 hr 30 min", "3h". A bare number with no unit
// markers is treated as minutes. Returns 0 if nothing parses.
func (s *Scraper) ParseDurationMinutes(raw string) int {
	total := 0
	matched := false

	if m := s.regexes["durationHours"].FindStringSubmatch(raw); m != nil {
		if h, err := strconv.Atoi(m[1]); err == nil {
			total += h * 60
			matched = true
		}
	}
	if m := s.regexes["durationMinutes"].FindStringSubmatch(raw); m != nil {
		if min, err := strconv.Atoi(m[1]); err == nil {
			total += min
			matched = true
		}
	}
	if !matched {
		if m := s.regexes["bareNumber"].FindStringSubmatch(raw); m != nil {
			if min, err := strconv.Atoi(m[1]); err == nil {
				return min
			}
		}
	}
	return total
}

// MinutesToISODuration renders total minutes as an ISO-8601 duration:
// 150 -> "PT2H30M", 45 -> "PT45M", 180 -> "PT3H".
func MinutesToISODuration(minutes int) string {
	if minutes <= 0 {
		return "PT0M"
	}
	h := minutes / 60
	m := minutes % 60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("PT%dH%dM", h, m)
	case h > 0:
		return fmt.Sprintf("PT%dH", h)
	default:
		return fmt.Sprintf("PT%dM", m)
	}
}

// DetectCurrency maps the most frequently rendered currency symbol to
// its ISO-4217 code. Falls back to the requested code when the page
// shows nothing recognizable — the site may silently ignore the
// currency query parameter, and the caller needs to know which
// currency the numbers are actually in.
func (s *Scraper) DetectCurrency(text, fallback string) string {
	counts := make(map[string]int, len(currencySymbols))
	for _, amount := range s.regexes["currencyAmount"].FindAllString(text, -1) {
		for symbol, code := range currencySymbols {
			if strings.Contains(amount, symbol) {
				counts[code]++
			}
		}
		for code := range isoCurrencyCodes {
			if strings.Contains(amount, code) {
				counts[code]++
			}
		}
	}

	best, bestCount := "", 0
	for code, n := range counts {
		if n > bestCount {
			best, bestCount = code, n
		}
	}
	if best == "" {
		return fallback
	}
	return best
}

// textLines walks a selection's node tree and returns the trimmed text
// chunks in document order. Selection.Text flattens everything into one
// run, but the heuristics need the line structure the browser renders.
func textLines(sel *goquery.Selection) []string {
	var lines []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				lines = append(lines, t)
			}
			return
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return lines
}

// contentID derives a stable id from scraped content.
func contentID(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}

// combineDateTime joins a YYYY-MM-DD search date with a rendered
// clock string into an ISO-8601 timestamp. dayOffset shifts the date
// for overnight arrivals.
func combineDateTime(date, clock string, dayOffset int) string {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		day = time.Now()
	}
	day = day.AddDate(0, 0, dayOffset)

	clock = strings.ToUpper(strings.TrimSpace(clock))
	clock = strings.ReplaceAll(clock, "AM", " AM")
	clock = strings.ReplaceAll(clock, "PM", " PM")
	clock = strings.Join(strings.Fields(clock), " ")

	var t time.Time
	for _, layout := range []string{"3:04 PM", "15:04"} {
		if parsed, perr := time.Parse(layout, clock); perr == nil {
			t = parsed
			break
		}
	}
	return fmt.Sprintf("%sT%02d:%02d:00", day.Format("2006-01-02"), t.Hour(), t.Minute())
}

// carrierCode derives a short display code from an airline name:
// "Air India" -> "AI", "IndiGo" -> "IN". DOM text carries no IATA
// carrier codes, so this is a presentation key, not a reservation code.
func carrierCode(name string) string {
	fields := strings.Fields(name)
	switch {
	case len(fields) >= 2:
		return strings.ToUpper(string([]rune(fields[0])[0]) + string([]rune(fields[1])[0]))
	case len(fields) == 1 && len([]rune(fields[0])) >= 2:
		runes := []rune(fields[0])
		return strings.ToUpper(string(runes[0]) + string(runes[1]))
	default:
		return "XX"
	}
}

// firstRealImage returns the first <img> in the selection that is not
// a known placeholder or icon asset. Alt-texted images win.
func (s *Scraper) firstRealImage(sel *goquery.Selection) string {
	best := ""
	sel.Find("img").EachWithBreak(func(i int, img *goquery.Selection) bool {
		src, ok := img.Attr("src")
		if !ok || src == "" {
			return true
		}
		if s.regexes["placeholderImage"].MatchString(src) {
			return true
		}
		if alt, _ := img.Attr("alt"); alt != "" {
			best = src
			return false
		}
		if best == "" {
			best = src
		}
		return true
	})
	return best
}
