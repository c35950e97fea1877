package humastar

import "fmt"

// Pager is implemented by response bodies that carry pagination metadata.
// The link transformer turns its links into Link headers.
type Pager interface {
	PaginationLinks(basePath string) []string
}

// PageBody is a generic paginated response envelope.
type PageBody[T any] struct {
	Total  int `json:"total" doc:"Total number of items"`
	Offset int `json:"offset" doc:"Current offset"`
	Limit  int `json:"limit" doc:"Page size"`
	Data   []T `json:"data" doc:"Items"`
}

// NewPage slices one page out of all. Offsets past the end give an empty
// page.
func NewPage[T any](all []T, offset, limit int) PageBody[T] {
	if limit <= 0 {
		limit = len(all)
	}
	lo := min(max(offset, 0), len(all))
	hi := min(lo+limit, len(all))
	data := all[lo:hi]
	if data == nil {
		data = []T{}
	}
	return PageBody[T]{Total: len(all), Offset: offset, Limit: limit, Data: data}
}

// PaginationLinks returns RFC 8288 first, prev, next and last links.
func (p PageBody[T]) PaginationLinks(basePath string) []string {
	if p.Limit <= 0 {
		return nil
	}
	link := func(offset int, rel string) string {
		return fmt.Sprintf(`<%s?offset=%d&limit=%d>; rel="%s"`, basePath, offset, p.Limit, rel)
	}

	links := []string{link(0, "first")}
	if p.Offset > 0 {
		links = append(links, link(max(p.Offset-p.Limit, 0), "prev"))
	}
	if p.Offset+p.Limit < p.Total {
		links = append(links, link(p.Offset+p.Limit, "next"))
	}
	last := max((p.Total-1)/p.Limit*p.Limit, 0)
	return append(links, link(last, "last"))
}
