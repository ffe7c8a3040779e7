package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectStorefront(t *testing.T) {
	tests := []struct {
		url  string
		want Storefront
	}{
		{"https://www.amazon.com/dp/B000000001", StorefrontAmazonUS},
		{"https://smile.amazon.com/gp/product/B000000001", StorefrontAmazonUS},
		{"https://www.amazon.co.uk/dp/B000000001", StorefrontAmazonUK},
		{"https://amazon.de/dp/B000000001", StorefrontAmazonDE},
		{"https://www.amazon.ca/dp/B000000001", StorefrontAmazonCA},
		{"https://www.amazon.co.jp/dp/B000000001", StorefrontAmazonJP},
		{"https://example.com/item", StorefrontUnknown},
		{"::", StorefrontUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectStorefront(tt.url))
		})
	}
}

func TestStorefront_Currency(t *testing.T) {
	assert.Equal(t, "$", StorefrontAmazonUS.Currency())
	assert.Equal(t, "£", StorefrontAmazonUK.Currency())
	assert.Equal(t, "€", StorefrontAmazonDE.Currency())
	assert.Equal(t, "$", StorefrontUnknown.Currency())
	assert.True(t, StorefrontAmazonDE.DecimalComma())
	assert.False(t, StorefrontAmazonUS.DecimalComma())
}
