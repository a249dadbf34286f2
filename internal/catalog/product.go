package catalog

// ProductIdentifier is an opaque token referencing one product within a
// category listing. Identifiers are produced by enumeration and consumed,
// never mutated, by the detail fetcher.
type ProductIdentifier string

// UnitPrice expresses a comparable price per quantity unit, e.g. 1.25 per
// 100g. Present only when the retailer reports one.
type UnitPrice struct {
	Price       float64 `json:"price"`
	PerQuantity string  `json:"per_quantity"`
}

// ProductRecord is the fully formed detail record written to an output unit.
// Optional fields use pointer or omitempty encoding so an absent value is
// distinguishable from a zero; a missing price is never defaulted here.
type ProductRecord struct {
	// Identifier is the listing token the record was resolved from.
	Identifier ProductIdentifier `json:"identifier"`
	// RetailerProductID is the retailer's own SKU, when distinct.
	RetailerProductID string `json:"retailer_product_id,omitempty"`
	// Title is the display name of the product.
	Title string `json:"title"`
	// Brand is optional; own-label products often omit it.
	Brand string `json:"brand,omitempty"`
	// Price is the shelf price in the market's currency.
	Price float64 `json:"price"`
	// UnitPrice is the optional comparable per-quantity price.
	UnitPrice *UnitPrice `json:"unit_price,omitempty"`
	// Size is the optional pack size label, e.g. "500g".
	Size string `json:"size,omitempty"`
	// Description is optional marketing copy.
	Description string `json:"description,omitempty"`
	// ImageURL is the optional primary image link.
	ImageURL string `json:"image_url,omitempty"`
	// CategoryPath is the taxonomy path the record was harvested under.
	CategoryPath []string `json:"category_path,omitempty"`
	// Alcohol marks age-restricted items; nil when the retailer is silent.
	Alcohol *bool `json:"alcohol,omitempty"`
}
