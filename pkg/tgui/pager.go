package tgui

import "fmt"

// Page is one window of a paginated list. Page numbers are 0-based.
type Page[T any] struct {
	Items   []T
	Page    int
	Pages   int
	Total   int
	HasPrev bool
	HasNext bool
}

// Paginate returns the requested page of items, clamping page into range.
func Paginate[T any](items []T, page, size int) Page[T] {
	if size <= 0 {
		size = 10
	}
	total := len(items)
	pages := (total + size - 1) / size
	if pages == 0 {
		pages = 1
	}
	if page < 0 {
		page = 0
	}
	if page >= pages {
		page = pages - 1
	}
	start := page * size
	end := min(start+size, total)
	return Page[T]{
		Items:   items[start:end],
		Page:    page,
		Pages:   pages,
		Total:   total,
		HasPrev: page > 0,
		HasNext: end < total,
	}
}

// Label returns a compact label like "Page 2/3".
func (p Page[T]) Label() string {
	return fmt.Sprintf("Page %d/%d", p.Page+1, p.Pages)
}
