package browserpool

// blockedURLPatterns aborts fetches the scrapers never need. Pages
// load several times faster with images, fonts, media and stylesheets
// dropped, and extraction only reads text and markup.
var blockedURLPatterns = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.avif", "*.ico",
	"*.woff", "*.woff2", "*.ttf", "*.otf",
	"*.mp4", "*.webm", "*.mp3", "*.m4a",
	"*.css",
}

// stealthScript runs before any site script on every navigation and
// masks the fingerprints bot-detection checks first: the automation
// flag, an empty plugin list, a bare language list, and the missing
// browser runtime object.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'plugins', {
	get: () => [
		{ name: 'Chrome PDF Plugin' },
		{ name: 'Chrome PDF Viewer' },
		{ name: 'Native Client' },
	],
});
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
window.chrome = window.chrome || {};
window.chrome.runtime = window.chrome.runtime || {};
`
