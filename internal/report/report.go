package report

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outcome is the per-book result of a run.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// BookResult describes what happened to one book.
type BookResult struct {
	BookID      uint32        `json:"book_id"`
	Outcome     Outcome       `json:"outcome"`
	Strategy    string        `json:"strategy,omitempty"`
	Transitions []string      `json:"transitions,omitempty"`
	Decrypted   int           `json:"chapters_decrypted"`
	Skipped     int           `json:"chapters_skipped"`
	Failed      int           `json:"chapters_failed"`
	Retries     int           `json:"refetches"`
	Fetches     int           `json:"fetches"`
	Checkpoints int           `json:"checkpoints"`
	BundleBytes int64         `json:"bundle_bytes"`
	Reason      string        `json:"reason,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
}

// Totals are the run-wide counters.
type Totals struct {
	BooksProcessed    int   `json:"books_processed"`
	BooksSkipped      int   `json:"books_skipped"`
	BooksFailed       int   `json:"books_failed"`
	ChaptersDecrypted int   `json:"chapters_decrypted"`
	ChaptersSkipped   int   `json:"chapters_skipped"`
	ChaptersFailed    int   `json:"chapters_failed"`
	Fetches           int   `json:"fetches"`
	BundleBytes       int64 `json:"bundle_bytes"`
}

// Report is safe for concurrent Add calls.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	mu    sync.Mutex
	books []BookResult
	err   error
}

// New starts a report with a fresh run ID.
func New() *Report {
	return &Report{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
}

// Add records a book result.
func (r *Report) Add(result BookResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.books = append(r.books, result)
}

// Finish stamps the end time and the run-level error, if any.
func (r *Report) Finish(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = time.Now().UTC()
	r.err = err
}

// Err returns the run-level error passed to Finish.
func (r *Report) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Books returns the results ordered by book ID.
func (r *Report) Books() []BookResult {
	r.mu.Lock()
	out := append([]BookResult(nil), r.books...)
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].BookID < out[j].BookID })
	return out
}

// Totals sums the book results.
func (r *Report) Totals() Totals {
	var t Totals
	for _, b := range r.Books() {
		switch b.Outcome {
		case OutcomeProcessed:
			t.BooksProcessed++
		case OutcomeSkipped:
			t.BooksSkipped++
		case OutcomeFailed:
			t.BooksFailed++
		}
		t.ChaptersDecrypted += b.Decrypted
		t.ChaptersSkipped += b.Skipped
		t.ChaptersFailed += b.Failed
		t.Fetches += b.Fetches
		t.BundleBytes += b.BundleBytes
	}
	return t
}

// FailureReasons counts failed books by reason.
func (r *Report) FailureReasons() map[string]int {
	reasons := make(map[string]int)
	for _, b := range r.Books() {
		if b.Outcome != OutcomeFailed {
			continue
		}
		reason := b.Reason
		if reason == "" {
			reason = "unknown"
		}
		reasons[reason]++
	}
	return reasons
}

// Duration is the wall time of the run, or the time elapsed so far.
func (r *Report) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	end := r.FinishedAt
	if end.IsZero() {
		end = time.Now().UTC()
	}
	return end.Sub(r.StartedAt)
}
