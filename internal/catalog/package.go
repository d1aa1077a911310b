package catalog

import "github.com/99degreesdevs/emuna-back/internal/apperr"

// ValidatePackage enforces the authoring rule for bundles: constituents may
// only be classes or ceremonies, in positive amounts. Physical goods,
// services and other bundles are refused, which keeps expansion single-level.
func ValidatePackage(sku string, entries []PackageEntry) error {
	if sku == "" || len(entries) == 0 {
		return apperr.ErrInvalidInput.Withf("package %q needs at least one entry", sku)
	}
	for _, e := range entries {
		switch e.Category {
		case CategoryClass, CategoryCeremony:
		case CategoryPackage, CategoryPhysical, CategoryService:
			return apperr.ErrNestedPackage.Withf("package %s cannot contain category %s", sku, e.Category)
		default:
			return apperr.ErrInvalidInput.Withf("package %s has unknown category %d", sku, int(e.Category))
		}
		if e.Amount <= 0 {
			return apperr.ErrInvalidInput.Withf("package %s entry %s needs a positive amount", sku, e.Category)
		}
	}
	return nil
}
