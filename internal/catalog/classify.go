package catalog

import (
	"github.com/99degreesdevs/emuna-back/internal/apperr"
)

// Item is a line item reduced to what fulfillment needs.
type Item struct {
	SKU      string
	Category Category
	Quantity int
}

// CreditGrant asks for Amount credits of Category, each one a separate row.
type CreditGrant struct {
	SKU      string
	Category Category
	Amount   int
}

// Partition is the disjoint output of Classify.
type Partition struct {
	Physical []Item
	Class    []CreditGrant
	Ceremony []CreditGrant
	Service  []CreditGrant
}

// Credits returns every credit grant across categories.
func (p Partition) Credits() []CreditGrant {
	out := make([]CreditGrant, 0, len(p.Class)+len(p.Ceremony)+len(p.Service))
	out = append(out, p.Class...)
	out = append(out, p.Ceremony...)
	return append(out, p.Service...)
}

// Classify splits items into physical goods and credit grants, expanding each
// bundle through packages (keyed by bundle SKU). A bundle bought n times
// yields n times each constituent amount. Expansion is a single level: a
// constituent that is itself a bundle is rejected.
func Classify(items []Item, packages map[string][]PackageEntry) (Partition, error) {
	var p Partition
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		if it.Category == CategoryPackage {
			entries, ok := packages[it.SKU]
			if !ok || len(entries) == 0 {
				return Partition{}, apperr.ErrPackageNotFound.Withf("package %s has no definition", it.SKU)
			}
			for _, e := range entries {
				if e.Category == CategoryPackage {
					return Partition{}, apperr.ErrNestedPackage.Withf("package %s contains another package", it.SKU)
				}
				if err := p.add(it.SKU, e.Category, e.Amount*it.Quantity); err != nil {
					return Partition{}, err
				}
			}
			continue
		}
		if err := p.add(it.SKU, it.Category, it.Quantity); err != nil {
			return Partition{}, err
		}
	}
	return p, nil
}

func (p *Partition) add(sku string, c Category, n int) error {
	if !c.Valid() || c == CategoryPackage {
		return apperr.ErrInvalidInput.Withf("sku %s has unknown category %d", sku, int(c))
	}
	if !c.CreditBearing() {
		p.Physical = append(p.Physical, Item{SKU: sku, Category: c, Quantity: n})
		return nil
	}
	g := CreditGrant{SKU: sku, Category: c, Amount: n}
	switch c {
	case CategoryClass:
		p.Class = append(p.Class, g)
	case CategoryCeremony:
		p.Ceremony = append(p.Ceremony, g)
	default:
		p.Service = append(p.Service, g)
	}
	return nil
}

// BundleSKUs lists the distinct bundle SKUs among items.
func BundleSKUs(items []Item) []string {
	seen := map[string]bool{}
	var out []string
	for _, it := range items {
		if it.Category == CategoryPackage && !seen[it.SKU] {
			seen[it.SKU] = true
			out = append(out, it.SKU)
		}
	}
	return out
}
