package server

import (
	"testing"
)

func TestPaginateEmpty(t *testing.T) {
	meta, lo, hi := paginate(0, 1)
	if meta.TotalPages != 1 || meta.Page != 1 {
		t.Errorf("meta = %+v, want a single empty page", meta)
	}
	if lo != 0 || hi != 0 {
		t.Errorf("bounds = [%d, %d), want empty", lo, hi)
	}
	if len(meta.Pages) != 1 || meta.Pages[0] != 1 {
		t.Errorf("pages = %v, want [1]", meta.Pages)
	}
	if meta.HasPrev || meta.HasNext {
		t.Error("single page must not have neighbors")
	}
}

func TestPaginateBounds(t *testing.T) {
	meta, lo, hi := paginate(25, 2)
	if meta.TotalPages != 3 {
		t.Errorf("totalPages = %d, want 3", meta.TotalPages)
	}
	if lo != 10 || hi != 20 {
		t.Errorf("bounds = [%d, %d), want [10, 20)", lo, hi)
	}

	_, lo, hi = paginate(25, 3)
	if lo != 20 || hi != 25 {
		t.Errorf("last page bounds = [%d, %d), want [20, 25)", lo, hi)
	}
}

func TestPaginateClampsPage(t *testing.T) {
	meta, _, _ := paginate(25, 99)
	if meta.Page != 3 {
		t.Errorf("page = %d, want clamped to 3", meta.Page)
	}
	meta, _, _ = paginate(25, 0)
	if meta.Page != 1 {
		t.Errorf("page = %d, want clamped to 1", meta.Page)
	}
}

func TestPaginateWindow(t *testing.T) {
	// 100 items = 10 pages, window of 5
	cases := []struct {
		page  int
		first int
		last  int
	}{
		{1, 1, 5},
		{2, 1, 5},
		{3, 1, 5},
		{4, 2, 6},  // current page sits third once the window slides
		{6, 4, 8},
		{9, 6, 10}, // window pinned at the end
		{10, 6, 10},
	}
	for _, c := range cases {
		meta, _, _ := paginate(100, c.page)
		if len(meta.Pages) != pageWindow {
			t.Errorf("page %d: window size = %d, want %d", c.page, len(meta.Pages), pageWindow)
			continue
		}
		if meta.Pages[0] != c.first || meta.Pages[len(meta.Pages)-1] != c.last {
			t.Errorf("page %d: window = %v, want [%d..%d]", c.page, meta.Pages, c.first, c.last)
		}
	}
}

func TestPaginateShortList(t *testing.T) {
	meta, _, _ := paginate(25, 1)
	if len(meta.Pages) != 3 {
		t.Errorf("pages = %v, want window capped at total pages", meta.Pages)
	}
}
