package crm

import (
	"encoding/json"
)

// QueryResult is one page of a possibly multi-page result set. It is
// immutable once built.
type QueryResult struct {
	records   []*Record
	totalSize int
	done      bool
	cursor    string
}

// NewQueryResult builds a page. cursor must be non-empty exactly when done is
// false. The records slice is copied.
func NewQueryResult(records []*Record, totalSize int, done bool, cursor string) (*QueryResult, error) {
	if done == (cursor != "") {
		return nil, ErrInvalidQueryResult
	}

	copied := make([]*Record, len(records))
	copy(copied, records)

	return &QueryResult{
		records:   copied,
		totalSize: totalSize,
		done:      done,
		cursor:    cursor,
	}, nil
}

// Records returns a copy of the records on this page.
func (q *QueryResult) Records() []*Record {
	copied := make([]*Record, len(q.records))
	copy(copied, q.records)

	return copied
}

// Len returns the number of records on this page.
func (q *QueryResult) Len() int {
	return len(q.records)
}

// TotalSize returns the size of the whole result set across all pages.
func (q *QueryResult) TotalSize() int {
	return q.totalSize
}

// Done reports whether this is the last page.
func (q *QueryResult) Done() bool {
	return q.done
}

// Cursor returns the locator for the next page.
func (q *QueryResult) Cursor() (string, bool) {
	return q.cursor, !q.done
}

// MarshalJSON renders the page in the remote API shape.
func (q *QueryResult) MarshalJSON() ([]byte, error) {
	out := struct {
		TotalSize      int       `json:"totalSize"`
		Done           bool      `json:"done"`
		NextRecordsURL string    `json:"nextRecordsUrl,omitempty"`
		Records        []*Record `json:"records"`
	}{
		TotalSize:      q.totalSize,
		Done:           q.done,
		NextRecordsURL: q.cursor,
		Records:        q.records,
	}

	return json.Marshal(out)
}
