package server

const (
	batchesPerPage = 10
	pageWindow     = 5
	// pages shown before the current one when the window slides
	windowLead = 2
)

type pagination struct {
	Page       int   `json:"page"`
	TotalPages int   `json:"totalPages"`
	Pages      []int `json:"pages"`
	HasPrev    bool  `json:"hasPrev"`
	HasNext    bool  `json:"hasNext"`
}

// paginate computes the page metadata and the [lo, hi) slice bounds for one
// page of items. The link window holds at most pageWindow pages and keeps
// the current page third from the left once the list is long enough.
func paginate(total, page int) (pagination, int, int) {
	totalPages := (total + batchesPerPage - 1) / batchesPerPage
	if totalPages == 0 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	first := page - windowLead
	if first > totalPages-pageWindow+1 {
		first = totalPages - pageWindow + 1
	}
	if first < 1 {
		first = 1
	}
	last := first + pageWindow - 1
	if last > totalPages {
		last = totalPages
	}

	pages := make([]int, 0, last-first+1)
	for p := first; p <= last; p++ {
		pages = append(pages, p)
	}

	lo := (page - 1) * batchesPerPage
	hi := lo + batchesPerPage
	if lo > total {
		lo = total
	}
	if hi > total {
		hi = total
	}

	return pagination{
		Page:       page,
		TotalPages: totalPages,
		Pages:      pages,
		HasPrev:    page > 1,
		HasNext:    page < totalPages,
	}, lo, hi
}
