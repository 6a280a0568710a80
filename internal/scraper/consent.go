package scraper

import (
	"context"

	"github.com/chromedp/chromedp"
)

// DismissConsent clears a cookie/consent interstitial if one is
// blocking the page. Specific selectors are tried first, then every
// button is scanned for accept/agree/consent text. Returns whether
// anything was dismissed; absence of a dialog is the common case and
// never an error.
func (s *Scraper) DismissConsent(ctx context.Context) bool {
	// Give a late-rendering dialog a moment to appear.
	tryRun(ctx, consentWait, chromedp.WaitVisible(consentButtonSelectors[0], chromedp.ByQuery))

	for _, sel := range consentButtonSelectors {
		if tryRun(ctx, probeTimeout, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible)) {
			s.log.Debug().Str("selector", sel).Msg("consent dialog dismissed")
			return true
		}
	}

	if clickByText(ctx, probeTimeout, "button", "accept", "agree", "consent") {
		s.log.Debug().Msg("consent dialog dismissed via button text scan")
		return true
	}
	return false
}
