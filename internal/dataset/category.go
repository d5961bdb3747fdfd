package dataset

import (
	"strings"

	"golang.org/x/xerrors"
)

type Category int

const (
	Female Category = iota
	Male
)

// Categories lists every category in training order.
var Categories = []Category{Male, Female}

func (c Category) String() string {
	switch c {
	case Male:
		return "male"
	default:
		return "female"
	}
}

// CategoryOf derives the category from the SCUT-FBP5500 filename prefix.
// Unrecognised prefixes count as Female.
func CategoryOf(filename string) Category {
	switch {
	case strings.HasPrefix(filename, "CF"):
		return Female
	case strings.HasPrefix(filename, "CM"):
		return Male
	default:
		return Female
	}
}

func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m", "cm":
		return Male, nil
	case "female", "f", "cf":
		return Female, nil
	}
	return 0, xerrors.Errorf("%q: %w", s, ErrUnknownCategory)
}

// Filter selects which samples the loader keeps. The zero value keeps all.
type Filter struct {
	only     Category
	restrict bool
}

func AllCategories() Filter { return Filter{} }

func Only(c Category) Filter { return Filter{only: c, restrict: true} }

// Category reports the restricted category, if any.
func (f Filter) Category() (Category, bool) { return f.only, f.restrict }

func (f Filter) Match(filename string) bool {
	return !f.restrict || CategoryOf(filename) == f.only
}

func (f Filter) String() string {
	if !f.restrict {
		return "all"
	}
	return f.only.String()
}
