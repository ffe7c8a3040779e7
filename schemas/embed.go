// Package schemas holds the JSON Schemas for data exchanged with order providers.
package schemas

import "embed"

//go:embed *.schema.json
var files embed.FS

// Schema file names.
const (
	Orders     = "orders.schema.json"
	PriceQuote = "price_quote.schema.json"
)

// Load returns the content of an embedded schema.
func Load(name string) (string, error) {
	data, err := files.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// MustLoad is Load for schemas known to exist at compile time.
func MustLoad(name string) string {
	s, err := Load(name)
	if err != nil {
		panic(err)
	}
	return s
}
