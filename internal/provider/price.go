package provider

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/jonathan/purchase-tracker/internal/fetch"
	"github.com/jonathan/purchase-tracker/internal/logging"
)

var priceSelectors = []string{
	".a-price .a-offscreen",
	"#priceblock_ourprice",
	"#priceblock_dealprice",
	"#corePrice_feature_div .a-offscreen",
}

var nonPriceChars = regexp.MustCompile(`[^\d.,]`)

// ScrapePriceFetcher reads prices from product pages. When a page is blocked
// or has no price and a renderer is configured, it retries in a headless browser.
// Pages that no longer exist are not retried.
type ScrapePriceFetcher struct {
	fetcher fetch.Fetcher
	render  fetch.Renderer
	log     *logging.Logger
}

// NewScrapePriceFetcher creates a fetcher. render may be nil to disable the browser fallback.
func NewScrapePriceFetcher(f fetch.Fetcher, render fetch.Renderer, log *logging.Logger) *ScrapePriceFetcher {
	if f == nil {
		f = fetch.HTTPFetcher{}
	}
	return &ScrapePriceFetcher{
		fetcher: f,
		render:  render,
		log:     logging.OrNop(log).With("component", "price_fetcher"),
	}
}

// FetchPrice implements PriceFetcher.
func (s *ScrapePriceFetcher) FetchPrice(ctx context.Context, url string) (*PriceQuote, error) {
	quote, err := s.fetchHTTP(ctx, url)
	if err == nil && quote.Price.Valid {
		return quote, nil
	}
	var ferr *fetch.Error
	throttled := false
	if errors.As(err, &ferr) {
		if ferr.Gone() {
			return nil, err
		}
		throttled = ferr.Throttled()
	}
	if s.render == nil {
		if err != nil {
			return nil, err
		}
		return quote, nil
	}

	s.log.Info("falling back to headless browser", "url", url, "throttled", throttled, "reason", errString(err))
	html, rerr := s.render(ctx, url)
	if rerr != nil {
		if err != nil {
			return nil, errors.Join(err, rerr)
		}
		return nil, rerr
	}
	return ParseProductPage(html, url)
}

func (s *ScrapePriceFetcher) fetchHTTP(ctx context.Context, url string) (*PriceQuote, error) {
	res, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return ParseProductPage(res.HTML, url)
}

// ParseProductPage extracts title and price from a product page. A page
// without a recognizable price yields a quote with an invalid Price.
func ParseProductPage(html, url string) (*PriceQuote, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	pageTitle := strings.TrimSpace(doc.Find("title").First().Text())
	if strings.Contains(pageTitle, "CAPTCHA") || strings.Contains(pageTitle, "Robot Check") ||
		doc.Find("form[action*='validateCaptcha']").Length() > 0 {
		return nil, ErrBlocked
	}

	store := fetch.DetectStorefront(url)
	quote := &PriceQuote{
		URL:      url,
		Title:    extractTitle(doc, pageTitle),
		Currency: store.Currency(),
	}
	if text := extractPriceText(doc, store.DecimalComma()); text != "" {
		if price, ok := ParsePrice(text, store.DecimalComma()); ok {
			quote.Price = decimal.NewNullDecimal(price)
		}
	}
	return quote, nil
}

func extractTitle(doc *goquery.Document, pageTitle string) string {
	if t := strings.TrimSpace(doc.Find("#productTitle").First().Text()); t != "" {
		return t
	}
	for _, sel := range []string{`meta[name="title"]`, `meta[property="og:title"]`} {
		if c, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(c) != "" {
			return strings.TrimSpace(c)
		}
	}
	if t := strings.TrimSpace(doc.Find("h1").First().Text()); t != "" {
		return t
	}
	t := strings.ReplaceAll(pageTitle, "Amazon.com: ", "")
	t = strings.ReplaceAll(t, " : Amazon.com", "")
	return strings.TrimSpace(t)
}

func extractPriceText(doc *goquery.Document, decimalComma bool) string {
	for _, sel := range priceSelectors {
		if t := strings.TrimSpace(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	whole := strings.TrimSpace(doc.Find(".a-price-whole").First().Text())
	if whole == "" {
		return ""
	}
	whole = strings.TrimRight(whole, ".,")
	if frac := strings.TrimSpace(doc.Find(".a-price-fraction").First().Text()); frac != "" {
		sep := "."
		if decimalComma {
			sep = ","
		}
		return whole + sep + frac
	}
	return whole
}

// ParsePrice reads a displayed price such as "$1,234.56" or "1.234,56 €".
func ParsePrice(text string, decimalComma bool) (decimal.Decimal, bool) {
	clean := nonPriceChars.ReplaceAllString(text, "")
	if decimalComma {
		clean = strings.ReplaceAll(clean, ".", "")
		clean = strings.ReplaceAll(clean, ",", ".")
	} else {
		clean = strings.ReplaceAll(clean, ",", "")
	}
	if clean == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(clean)
	if err != nil || d.IsNegative() {
		return decimal.Decimal{}, false
	}
	return d, true
}

func errString(err error) string {
	if err == nil {
		return "no price on page"
	}
	return err.Error()
}
