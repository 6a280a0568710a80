package scraper

import (
	"context"

	"github.com/chromedp/chromedp"
)

// captchaElementProbe looks for a reCAPTCHA iframe or a known captcha
// form element.
const captchaElementProbe = `!!document.querySelector('iframe[src*="recaptcha"], form#captcha-form, #recaptcha, [class*="captcha"]')`

// DetectCaptchaText reports whether visible page text reads like a
// block page.
func (s *Scraper) DetectCaptchaText(text string) bool {
	return s.regexes["captcha"].MatchString(text)
}

// CheckCaptcha probes the live page for a CAPTCHA/block interstitial.
// Any probe error is swallowed as false — this only ever steers the
// retry cooldown, never correctness.
func (s *Scraper) CheckCaptcha(ctx context.Context) bool {
	if text := pageBodyText(ctx); text != "" && s.DetectCaptchaText(text) {
		return true
	}
	var present bool
	if !tryRun(ctx, probeTimeout, chromedp.Evaluate(captchaElementProbe, &present)) {
		return false
	}
	return present
}
