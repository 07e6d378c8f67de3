package browser

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

var ErrBlocked = errors.New("page blocked by bot protection")

// DeviceNames are the playwright device descriptors offered for mobile mode.
var DeviceNames = []string{
	"iPhone 12",
	"iPhone 12 Pro",
	"iPhone 13",
	"iPhone 13 Pro",
	"iPhone SE",
	"Pixel 5",
	"Galaxy S8",
	"Galaxy S9+",
	"iPad Pro 11",
	"iPad Mini",
}

type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	opts    *Options
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgents     []string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string

	// Mobile emulates a phone. Device picks a named playwright descriptor;
	// when empty a random one from DeviceNames is used.
	Mobile bool
	Device string
}

func DefaultOptions() *Options {
	return &Options{
		Headless: true,
		Timeout:  30 * time.Second,
		UserAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "es-CO,es;q=0.9,en;q=0.8",
		TimezoneID:     "America/Bogota",
		Locale:         "es-CO",
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"DNT":    "1",
		},
	}
}

func New(opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := &Browser{
		pw:      pw,
		browser: browser,
		opts:    opts,
		logger:  slog.Default().With("component", "browser"),
	}

	context, err := b.NewContext()
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, err
	}
	b.context = context

	return b, nil
}

// NewContext opens an isolated browser context with a user agent drawn
// from the configured pool, or a device descriptor in mobile mode.
func (b *Browser) NewContext() (playwright.BrowserContext, error) {
	var device *playwright.DeviceDescriptor
	if b.opts.Mobile {
		name := b.opts.Device
		if name == "" {
			name = PickRandom(DeviceNames)
		}
		device = b.pw.Devices[name]
		if device == nil {
			return nil, fmt.Errorf("unknown device %q", name)
		}
		b.logger.Debug("emulating device", "device", name)
	}

	context, err := b.browser.NewContext(ContextOptions(b.opts, PickRandom(b.opts.UserAgents), device))
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	return context, nil
}

// ContextOptions builds the context options for one user agent. A non-nil
// device overrides the user agent, viewport and touch settings.
func ContextOptions(opts *Options, userAgent string, device *playwright.DeviceDescriptor) playwright.BrowserNewContextOptions {
	headers := make(map[string]string, len(opts.ExtraHeaders)+1)
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}
	if opts.AcceptLanguage != "" {
		headers["Accept-Language"] = opts.AcceptLanguage
	}

	contextOpts := playwright.BrowserNewContextOptions{
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            playwright.String(opts.Locale),
		TimezoneId:        playwright.String(opts.TimezoneID),
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: headers,
	}
	if userAgent != "" {
		contextOpts.UserAgent = playwright.String(userAgent)
	}

	if device != nil {
		contextOpts.UserAgent = playwright.String(device.UserAgent)
		contextOpts.Viewport = device.Viewport
		contextOpts.DeviceScaleFactor = playwright.Float(device.DeviceScaleFactor)
		contextOpts.IsMobile = playwright.Bool(device.IsMobile)
		contextOpts.HasTouch = playwright.Bool(device.HasTouch)
	}

	return contextOpts
}

// PickRandom returns a random entry of pool, or "" when it is empty.
func PickRandom(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	return pool[rand.Intn(len(pool))]
}

func (b *Browser) NewPage() (playwright.Page, error) {
	return b.newPage(b.context)
}

func (b *Browser) newPage(context playwright.BrowserContext) (playwright.Page, error) {
	page, err := context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	return page, nil
}

func (b *Browser) Context() playwright.BrowserContext {
	return b.context
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (b *Browser) NavigateWithRetry(page playwright.Page, url string, maxRetries int) error {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			b.logger.Info("retrying navigation", "attempt", i+1, "url", url)
			time.Sleep(time.Duration(i+1) * time.Second)
		}

		_, err := page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(b.opts.Timeout.Milliseconds())),
		})
		if err != nil {
			lastErr = err
			b.logger.Error("navigation failed", "error", err, "attempt", i+1)
			continue
		}

		if err := CheckBlocked(page); err != nil {
			lastErr = err
			b.logger.Warn("blocked page", "url", url, "attempt", i+1)
			continue
		}
		return nil
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

var blockMarkers = []string{
	"captcha",
	"access denied",
	"acceso denegado",
	"are you a robot",
	"verifica que eres humano",
}

// CheckBlocked returns ErrBlocked when the page looks like a bot wall.
func CheckBlocked(page playwright.Page) error {
	title, err := page.Title()
	if err != nil {
		return fmt.Errorf("failed to get page title: %w", err)
	}
	if IsBlockedTitle(title) {
		return fmt.Errorf("%w: %s", ErrBlocked, title)
	}
	return nil
}

func IsBlockedTitle(title string) bool {
	lower := strings.ToLower(title)
	for _, marker := range blockMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// DismissPopups clicks the first visible element among selectors, waiting
// up to timeout for each. It reports whether something was clicked.
func DismissPopups(page playwright.Page, selectors []string, timeout time.Duration) bool {
	for _, selector := range selectors {
		locator := page.Locator(selector).First()
		err := locator.WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(float64(timeout.Milliseconds())),
		})
		if err != nil {
			continue
		}
		if err := locator.Click(); err != nil {
			continue
		}
		page.WaitForTimeout(1000)
		return true
	}
	return false
}

// ScrollToBottom scrolls in steps so lazy-loaded listings render.
func ScrollToBottom(page playwright.Page) error {
	_, err := page.Evaluate(`async () => {
		const delay = ms => new Promise(resolve => setTimeout(resolve, ms));
		for (let i = 0; i < 10; i++) {
			window.scrollBy(0, document.body.scrollHeight / 10);
			await delay(250);
		}
		window.scrollTo(0, document.body.scrollHeight);
	}`)
	if err != nil {
		return fmt.Errorf("failed to scroll: %w", err)
	}
	return nil
}

// HumanizeInteraction adds human-like behavior to page interactions
func HumanizeInteraction(page playwright.Page) error {
	for i := 0; i < 3; i++ {
		x := float64(100 + i*200)
		y := float64(100 + i*150)
		if err := page.Mouse().Move(x, y); err != nil {
			return err
		}
		time.Sleep(time.Millisecond * time.Duration(200+i*100))
	}

	if _, err := page.Evaluate(`window.scrollBy(0, Math.random() * 300)`); err != nil {
		return err
	}
	return nil
}

func Content(page playwright.Page) (string, error) {
	html, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}
	return html, nil
}
