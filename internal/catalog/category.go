package catalog

import "fmt"

// Category is what a product turns into once paid for.
type Category int

const (
	CategoryPhysical Category = 1
	CategoryClass    Category = 2
	CategoryCeremony Category = 3
	CategoryPackage  Category = 4
	CategoryService  Category = 5
)

func (c Category) String() string {
	switch c {
	case CategoryPhysical:
		return "PHYSICAL"
	case CategoryClass:
		return "CLASS"
	case CategoryCeremony:
		return "CEREMONY"
	case CategoryPackage:
		return "PACKAGE"
	case CategoryService:
		return "SERVICE"
	default:
		return fmt.Sprintf("CATEGORY(%d)", int(c))
	}
}

func (c Category) Valid() bool { return c >= CategoryPhysical && c <= CategoryService }

// CreditBearing reports whether paying for c issues credits.
func (c Category) CreditBearing() bool {
	return c == CategoryClass || c == CategoryCeremony || c == CategoryService
}
