package task

import (
	"net/url"
	"strconv"
	"time"
)

// maxSearchPage is the assumed upstream page-depth limit for keyword search.
const maxSearchPage = 50

type continuationKind int

const (
	continueNextPage continuationKind = iota
	continueTimeWindow
)

// continuation is one pagination decision. The decision is expressed as an
// outbound message to the crawler, never as in-process scheduling: the next
// run of the task arrives as a brand-new raw-data-ready notification.
type continuation struct {
	kind        continuationKind
	nextPage    int
	windowStart time.Time
	windowEnd   time.Time
}

// decideContinuation infers the pagination state from the source URL's page
// number. No page number means no continuation logic runs. Below the page
// limit the next page is requested; exactly at the limit, an observed
// minimum created-at narrows a keyword re-search to the window between that
// timestamp and the task's start time; past the limit the sequence ends.
func decideContinuation(sourceURL string, startedAt time.Time, minCreatedAt *time.Time) *continuation {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return nil
	}
	pageStr := u.Query().Get("page")
	if pageStr == "" {
		return nil
	}
	page, err := strconv.Atoi(pageStr)
	if err != nil {
		return nil
	}

	switch {
	case page < maxSearchPage:
		return &continuation{kind: continueNextPage, nextPage: page + 1}
	case page == maxSearchPage && minCreatedAt != nil:
		return &continuation{
			kind:        continueTimeWindow,
			windowStart: *minCreatedAt,
			windowEnd:   startedAt,
		}
	default:
		return nil
	}
}
