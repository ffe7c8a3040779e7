package fetch

import (
	"net/url"
	"strings"
)

// Storefront is a known retail site.
type Storefront string

const (
	StorefrontAmazonUS Storefront = "amazon.com"
	StorefrontAmazonUK Storefront = "amazon.co.uk"
	StorefrontAmazonDE Storefront = "amazon.de"
	StorefrontAmazonCA Storefront = "amazon.ca"
	StorefrontAmazonJP Storefront = "amazon.co.jp"
	StorefrontUnknown  Storefront = "unknown"
)

// DetectStorefront identifies the storefront from a product URL.
func DetectStorefront(urlStr string) Storefront {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return StorefrontUnknown
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	host = strings.TrimPrefix(host, "smile.")

	switch host {
	case "amazon.com", "a.co":
		return StorefrontAmazonUS
	case "amazon.co.uk":
		return StorefrontAmazonUK
	case "amazon.de":
		return StorefrontAmazonDE
	case "amazon.ca":
		return StorefrontAmazonCA
	case "amazon.co.jp":
		return StorefrontAmazonJP
	default:
		return StorefrontUnknown
	}
}

// Currency returns the symbol prices are shown in on the storefront.
func (s Storefront) Currency() string {
	switch s {
	case StorefrontAmazonUK:
		return "£"
	case StorefrontAmazonDE:
		return "€"
	case StorefrontAmazonCA:
		return "CA$"
	case StorefrontAmazonJP:
		return "¥"
	default:
		return "$"
	}
}

// DecimalComma reports whether the storefront writes 1.234,56.
func (s Storefront) DecimalComma() bool {
	return s == StorefrontAmazonDE
}
