package paging

import "testing"

func TestCursorPages(t *testing.T) {
	c := NewCursor([]int{1, 2, 3, 4, 5}, 2)

	page, ok := c.Next()
	if !ok || len(page) != 2 || page[0] != 1 {
		t.Fatalf("first page = %v ok=%v", page, ok)
	}
	page, _ = c.Next()
	if len(page) != 2 || page[0] != 3 {
		t.Fatalf("second page = %v", page)
	}
	page, ok = c.Next()
	if !ok || len(page) != 1 || page[0] != 5 {
		t.Fatalf("last page = %v ok=%v", page, ok)
	}
	if _, ok := c.Next(); ok {
		t.Error("expected exhausted cursor")
	}

	c.Reset()
	page, _ = c.Next()
	if len(page) != 2 || page[0] != 1 {
		t.Errorf("after reset page = %v", page)
	}
}

func TestCursorEmpty(t *testing.T) {
	c := NewCursor([]string(nil), 10)
	if _, ok := c.Next(); ok {
		t.Error("empty cursor should yield no pages")
	}
	if c.Len() != 0 {
		t.Errorf("len = %d", c.Len())
	}
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	if got := Page(items, 2, 1); len(got) != 2 || got[0] != 3 {
		t.Errorf("page 1 = %v", got)
	}
	if got := Page(items, 2, 2); len(got) != 1 || got[0] != 5 {
		t.Errorf("page 2 = %v", got)
	}
	if got := Page(items, 2, 3); got != nil {
		t.Errorf("page 3 = %v", got)
	}
}
