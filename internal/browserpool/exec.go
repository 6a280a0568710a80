package browserpool

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"tripcost-scraper/internal/models"
)

// wellKnownPaths lists install locations checked when no explicit
// path is configured
func wellKnownPaths() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Brave Browser.app/Contents/MacOS/Brave Browser",
		}
	case "windows":
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files\Microsoft\Edge\Application\msedge.exe`,
		}
	default:
		return []string{
			"/usr/bin/google-chrome-stable",
			"/usr/bin/google-chrome",
			"/usr/bin/chromium-browser",
			"/usr/bin/chromium",
			"/snap/bin/chromium",
		}
	}
}

// lookupNames are binary names tried on PATH after the well-known
// locations
var lookupNames = []string{"google-chrome", "chromium", "chromium-browser"}

// ResolveExecutable locates a Chromium-family browser binary. An
// explicit override takes first priority; otherwise platform-specific
// install paths are checked for existence, then PATH. A missing
// browser is a deployment problem, not a transient condition, so the
// returned error wraps models.ErrNoBrowserExecutable and is never
// retried.
func ResolveExecutable(override string) (string, error) {
	if override != "" {
		return override, nil
	}

	for _, path := range wellKnownPaths() {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}

	for _, name := range lookupNames {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w: set CHROME_PATH or install Chrome/Chromium", models.ErrNoBrowserExecutable)
}
