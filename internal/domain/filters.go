package domain

// JobFilter narrows a print job listing. Empty fields match everything.
type JobFilter struct {
	BranchID  string
	PrinterID string
	OrderID   string
	Status    JobStatus
	Page      int
	Limit     int
}

// ActiveOrderFilter is what the order store can evaluate itself. Derived
// filters (overdue, warning) are applied after timing is computed.
type ActiveOrderFilter struct {
	BranchID string
	Statuses []OrderStatus
}

// Paginate returns the page window over n elements. Page is 1-based and
// limit <= 0 means everything. Pages past the end give an empty window, for
// any page and limit.
func Paginate(n, page, limit int) (start, end int) {
	if limit <= 0 {
		return 0, n
	}
	start = PageOffset(page, limit, n)
	if limit > n-start {
		return start, n
	}
	return start, start + limit
}

// PageOffset is the number of elements before page, capped at n. The
// product (page-1)*limit is only formed when it cannot exceed n.
func PageOffset(page, limit, n int) int {
	if page < 1 || limit <= 0 {
		return 0
	}
	if page-1 > n/limit {
		return n
	}
	if off := (page - 1) * limit; off < n {
		return off
	}
	return n
}
