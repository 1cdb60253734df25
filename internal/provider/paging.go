package provider

import "fmt"

// Page is one offset/limit window over the action list, newest first.
type Page struct {
	Offset int
	Limit  int
}

// PlanPages splits a scan of maxPages pages of pageSize actions.
func PlanPages(maxPages, pageSize int) ([]Page, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("page size must be greater than zero")
	}
	if maxPages <= 0 {
		return nil, fmt.Errorf("max pages must be greater than zero")
	}

	pages := make([]Page, 0, maxPages)
	for i := 0; i < maxPages; i++ {
		pages = append(pages, Page{Offset: i * pageSize, Limit: pageSize})
	}
	return pages, nil
}

// lastPage reports whether nothing lies past page: it came back short or it
// reaches the total the source reported.
func lastPage(page Page, got int, total int64) bool {
	if got < page.Limit {
		return true
	}
	return total > 0 && int64(page.Offset+got) >= total
}
