// Package catalog resolves identifiers found in recognitions into display
// names held by the master-data tables.
package catalog

import "context"

// Product is the display data of a created insurance product.
// Empty names mean the referenced plan, company, or subcompany is unknown.
type Product struct {
	Ref            string `json:"ref"`
	CategoryName   string `json:"category_name"`
	CompanyName    string `json:"company_name"`
	SubcompanyName string `json:"subcompany_name"`
}

// Lookup resolves catalog identifiers. A missing entry is reported with
// ok == false and a nil error.
type Lookup interface {
	Mandate(ctx context.Context, id string) (name string, ok bool, err error)
	Category(ctx context.Context, planID string) (name string, ok bool, err error)
	Product(ctx context.Context, ref string) (product Product, ok bool, err error)
}
