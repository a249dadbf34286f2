package retail

import (
	"fmt"
	"sort"
)

// Market identifies one regional storefront of the retailer.
type Market struct {
	// Code is the short selector used by operators, e.g. "uk".
	Code string
	// BaseURL is the storefront origin; overridable in configuration.
	BaseURL string
	// Locale is the path segment the catalogue API is mounted under.
	Locale string
}

// The regional storefronts the harvester knows out of the box.
var markets = map[string]Market{
	"uk": {Code: "uk", BaseURL: "https://www.tesco.com", Locale: "en-GB"},
	"cz": {Code: "cz", BaseURL: "https://itesco.cz", Locale: "cs-CZ"},
	"sk": {Code: "sk", BaseURL: "https://tesco.sk", Locale: "sk-SK"},
	"hu": {Code: "hu", BaseURL: "https://tesco.hu", Locale: "hu-HU"},
}

// MarketByCode looks up a registered market.
func MarketByCode(code string) (Market, error) {
	m, ok := markets[code]
	if !ok {
		return Market{}, fmt.Errorf("unknown market %q (known: %v)", code, MarketCodes())
	}
	return m, nil
}

// MarketCodes returns the registered market codes in stable order.
func MarketCodes() []string {
	codes := make([]string, 0, len(markets))
	for code := range markets {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
