// Package browser owns the headless-browser lifecycle: one shared exec
// allocator per process, one exclusive page context per scrape attempt,
// with stealth configuration and resource blocking applied on every page.
package browser

import (
	"context"
	"math/rand"
	"os"
	"os/exec"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"grail-oracle/config"
)

// Resource types that never contribute to price extraction and are blocked
// to save bandwidth.
var blockedResourceTypes = map[network.ResourceType]bool{
	network.ResourceTypeImage: true,
	network.ResourceTypeFont:  true,
	network.ResourceTypeMedia: true,
}

// stealthScript masks the most common headless fingerprints before any
// site script runs: webdriver flag, GPU vendor strings, plugin count.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3] });
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
const origGetParameter = WebGLRenderingContext.prototype.getParameter;
WebGLRenderingContext.prototype.getParameter = function(param) {
	if (param === 37445) return 'Intel Inc.';
	if (param === 37446) return 'Intel Iris OpenGL Engine';
	return origGetParameter.call(this, param);
};
`

// PageFactory hands out page contexts. The fetch executor depends on this
// interface so tests can substitute a browserless factory.
type PageFactory interface {
	NewPage(parent context.Context) (context.Context, context.CancelFunc, error)
}

// Session is the process-wide browser handle. The allocator (and with it
// the browser process) is shared across sequential scans; every page
// context handed out is exclusive to one scrape attempt.
type Session struct {
	cfg         config.BrowserConfig
	logger      *logrus.Logger
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	browserCtx  context.Context
	cancelBrows context.CancelFunc
}

// NewSession builds the shared exec allocator with headless and stealth
// flags. The browser process itself starts lazily with the first page.
func NewSession(cfg config.BrowserConfig, logger *logrus.Logger) (*Session, error) {
	chromeBin := findChromeBinary(cfg.ChromeBin)
	if chromeBin != "" {
		logger.WithField("binary", chromeBin).Info("browser: using binary")
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)

	// Suppress chromedp log noise.
	browserCtx, cancelBrows := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(string, ...interface{}) {}))

	return &Session{
		cfg:         cfg,
		logger:      logger,
		allocCtx:    allocCtx,
		cancelAlloc: cancelAlloc,
		browserCtx:  browserCtx,
		cancelBrows: cancelBrows,
	}, nil
}

// NewPage opens a fresh page context with a rotated user agent, the stealth
// script injected ahead of site scripts, and request interception that
// drops images/fonts/media and analytics hosts. The returned cancel closes
// the page and must be called on every exit path.
func (s *Session) NewPage(parent context.Context) (context.Context, context.CancelFunc, error) {
	_ = parent // page lifetime is bounded by the attempt timeout, not the batch context

	pageCtx, cancel := chromedp.NewContext(s.browserCtx)

	ua := s.pickUserAgent()
	err := chromedp.Run(pageCtx,
		fetch.Enable(),
		emulation.SetUserAgentOverride(ua),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": "en-US,en;q=0.9",
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	)
	if err != nil {
		cancel()
		return nil, nil, err
	}

	s.installInterceptor(pageCtx)
	return pageCtx, cancel, nil
}

// Close tears down the browser process and the allocator.
func (s *Session) Close() {
	s.cancelBrows()
	s.cancelAlloc()
}

func (s *Session) pickUserAgent() string {
	if len(s.cfg.UserAgents) == 0 {
		return "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	return s.cfg.UserAgents[rand.Intn(len(s.cfg.UserAgents))]
}

func (s *Session) installInterceptor(pageCtx context.Context) {
	c := chromedp.FromContext(pageCtx)

	chromedp.ListenTarget(pageCtx, func(ev interface{}) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			ectx := cdp.WithExecutor(pageCtx, c.Target)
			if s.shouldBlock(paused) {
				_ = fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).Do(ectx)
				return
			}
			_ = fetch.ContinueRequest(paused.RequestID).Do(ectx)
		}()
	})
}

func (s *Session) shouldBlock(ev *fetch.EventRequestPaused) bool {
	if blockedResourceTypes[ev.ResourceType] {
		return true
	}
	for _, host := range s.cfg.BlockedHosts {
		if strings.Contains(ev.Request.URL, host) {
			return true
		}
	}
	return false
}

// findChromeBinary locates a Chrome/Chromium binary, preferring the
// configured path, then PATH, then well-known install locations.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
