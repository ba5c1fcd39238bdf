// Package paging provides restartable page cursors over cached collections.
package paging

// Cursor walks a snapshot of a cached collection in fixed-size pages.
// The snapshot is taken when the cursor is created, so a page sequence is
// internally consistent even while the underlying cache keeps updating.
type Cursor[T any] struct {
	items    []T
	pageSize int
	off      int
}

// NewCursor wraps the given snapshot with a page size. Page sizes below one
// fall back to the whole snapshot per page.
func NewCursor[T any](items []T, pageSize int) *Cursor[T] {
	if pageSize <= 0 {
		pageSize = len(items)
		if pageSize == 0 {
			pageSize = 1
		}
	}
	return &Cursor[T]{items: items, pageSize: pageSize, off: 0}
}

// Next returns the next page and reports whether any items were returned.
// The returned slice aliases the snapshot, never the live cache.
func (c *Cursor[T]) Next() ([]T, bool) {
	if c == nil || c.off >= len(c.items) {
		return nil, false
	}
	end := c.off + c.pageSize
	if end > len(c.items) {
		end = len(c.items)
	}
	page := c.items[c.off:end]
	c.off = end
	return page, true
}

// Reset restarts the cursor at the first page.
func (c *Cursor[T]) Reset() {
	if c != nil {
		c.off = 0
	}
}

// Len returns the total number of items in the snapshot.
func (c *Cursor[T]) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// Page extracts one page by number (zero-based) without cursor state.
func Page[T any](items []T, pageSize, page int) []T {
	if pageSize <= 0 || page < 0 {
		return nil
	}
	start := page * pageSize
	if start >= len(items) {
		return nil
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
