package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"research-assistant/llm/providers/transport"
)

const maxBody = 2 << 20

// HTTPFetcher fetches pages with a plain GET.
type HTTPFetcher struct {
	client *transport.HTTPClient
}

// NewHTTPFetcher creates a fetcher over client.
func NewHTTPFetcher(client *transport.HTTPClient) *HTTPFetcher {
	return &HTTPFetcher{client: client}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (string, string, error) {
	body, header, err := f.client.Fetch(ctx, pageURL, map[string]string{
		"User-Agent": "Mozilla/5.0 (compatible; research-assistant/1.0)",
		"Accept":     "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	}, maxBody)
	if err != nil {
		return "", "", err
	}
	return string(body), header.Get("Content-Type"), nil
}

// BrowserFetcher renders pages in headless Chrome so script-built content is
// captured. The browser is started on first use and shared across calls.
type BrowserFetcher struct {
	controlURL string
	timeout    time.Duration

	mu      sync.Mutex
	browser *rod.Browser
}

// NewBrowserFetcher creates a browser fetcher. An empty controlURL launches a
// local headless browser.
func NewBrowserFetcher(controlURL string, timeout time.Duration) *BrowserFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BrowserFetcher{controlURL: controlURL, timeout: timeout}
}

func (f *BrowserFetcher) ensureStarted() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser != nil {
		return f.browser, nil
	}

	controlURL := f.controlURL
	if controlURL == "" {
		u, err := launcher.New().Headless(true).Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	f.browser = browser
	return browser, nil
}

// Fetch implements Fetcher.
func (f *BrowserFetcher) Fetch(ctx context.Context, pageURL string) (string, string, error) {
	browser, err := f.ensureStarted()
	if err != nil {
		return "", "", err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return "", "", fmt.Errorf("create page: %w", err)
	}
	defer func() { _ = page.Close() }()

	p := page.Context(ctx).Timeout(f.timeout)
	if err := p.Navigate(pageURL); err != nil {
		return "", "", fmt.Errorf("navigate: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return "", "", fmt.Errorf("wait load: %w", err)
	}
	html, err := p.HTML()
	if err != nil {
		return "", "", fmt.Errorf("read DOM: %w", err)
	}
	return html, "text/html", nil
}

// Close shuts the browser down if it was started.
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser == nil {
		return nil
	}
	err := f.browser.Close()
	f.browser = nil
	return err
}
