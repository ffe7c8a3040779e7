package provider

import (
	"net/url"
	"regexp"
	"strings"
)

var asinPattern = regexp.MustCompile(`/(dp|gp/product)/(\w{10})`)

// ExtractASIN returns the 10 character product id embedded in an Amazon URL,
// or "" when the URL has none.
func ExtractASIN(productURL string) string {
	m := asinPattern.FindStringSubmatch(productURL)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[2])
}

// CanonicalURL strips tracking parameters so one product maps to one URL.
func CanonicalURL(productURL string) string {
	u, err := url.Parse(strings.TrimSpace(productURL))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(productURL)
	}
	if asin := ExtractASIN(u.Path); asin != "" {
		return u.Scheme + "://" + u.Host + "/dp/" + asin
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
