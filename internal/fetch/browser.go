package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/jonathan/purchase-tracker/internal/logging"
)

// DefaultBrowserTimeout bounds one headless render.
const DefaultBrowserTimeout = 45 * time.Second

// WithBrowser renders a page in a headless browser and returns the rendered HTML.
// Used when a storefront serves a bot wall to plain HTTP clients.
// Requires Chrome/Chromium to be installed on the system.
func WithBrowser(ctx context.Context, url string, timeout time.Duration, log *logging.Logger) (string, error) {
	log = logging.OrNop(log)
	if err := ValidateURL(url); err != nil {
		return "", err
	}
	if timeout <= 0 {
		timeout = DefaultBrowserTimeout
	}
	log.Debug("starting headless browser", "url", url)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent(DefaultUserAgent),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		// price widgets render late on some layouts
		chromedp.Sleep(2*time.Second),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_ = chromedp.Click(`#sp-cc-accept, input[name="accept"]`, chromedp.NodeVisible).Do(ctx)
			return nil
		}),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", &Error{URL: url, Message: "browser rendering failed", Cause: err}
	}

	log.Debug("rendered page", "url", url, "bytes", len(html))
	return html, nil
}

// Renderer adapts WithBrowser to a function value.
type Renderer func(ctx context.Context, url string) (string, error)

// NewRenderer returns a Renderer with a fixed timeout and logger.
func NewRenderer(timeout time.Duration, log *logging.Logger) Renderer {
	return func(ctx context.Context, url string) (string, error) {
		html, err := WithBrowser(ctx, url, timeout, log)
		if err != nil {
			return "", fmt.Errorf("failed to render %s: %w", url, err)
		}
		return html, nil
	}
}
