package catalog

import "context"

// Static is a Lookup over fixed in-process maps, used when the service runs
// without a database.
type Static struct {
	Mandates   map[string]string
	Categories map[string]string
	Products   map[string]Product
}

func (s Static) Mandate(ctx context.Context, id string) (string, bool, error) {
	name, ok := s.Mandates[id]
	return name, ok, nil
}

func (s Static) Category(ctx context.Context, planID string) (string, bool, error) {
	name, ok := s.Categories[planID]
	return name, ok, nil
}

func (s Static) Product(ctx context.Context, ref string) (Product, bool, error) {
	p, ok := s.Products[ref]
	return p, ok, nil
}
