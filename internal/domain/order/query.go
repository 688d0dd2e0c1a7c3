package order

import "github.com/go-faster/errors"

// SortField is a column orders can be listed by.
type SortField string

const (
	SortByCreatedAt SortField = "createdAt"
	SortByUpdatedAt SortField = "updatedAt"
	SortByTotalSum  SortField = "totalSum"
)

// SortOrder is the direction of a listing.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ParseSortField validates a sort field. The empty string selects creation time.
func ParseSortField(s string) (SortField, error) {
	switch f := SortField(s); f {
	case "":
		return SortByCreatedAt, nil
	case SortByCreatedAt, SortByUpdatedAt, SortByTotalSum:
		return f, nil
	default:
		return "", errors.Errorf("unknown sort field %q", s)
	}
}

// ParseSortOrder validates a sort direction. The empty string selects ascending.
func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(s); o {
	case "":
		return SortAsc, nil
	case SortAsc, SortDesc:
		return o, nil
	default:
		return "", errors.Errorf("unknown sort order %q", s)
	}
}

// ListOptions is the caller-facing listing request.
type ListOptions struct {
	Limit     int
	Skip      int
	SortBy    SortField
	SortOrder SortOrder
	// State narrows the listing to one lifecycle state when set.
	State State
}

// ListResult is one page of orders plus the number of orders matching the
// filter across all pages.
type ListResult struct {
	Orders []Details
	Count  int
}

// PageLimits bounds listing page sizes.
type PageLimits struct {
	Default int
	Max     int
}

func (l PageLimits) page(opts ListOptions) Page {
	p := Page{
		Limit:     opts.Limit,
		Skip:      opts.Skip,
		SortBy:    opts.SortBy,
		SortOrder: opts.SortOrder,
	}
	if p.Limit <= 0 {
		p.Limit = l.Default
	}
	if l.Max > 0 && p.Limit > l.Max {
		p.Limit = l.Max
	}
	if p.Skip < 0 {
		p.Skip = 0
	}
	if p.SortBy == "" {
		p.SortBy = SortByCreatedAt
	}
	if p.SortOrder == "" {
		p.SortOrder = SortAsc
	}
	return p
}
