package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Render writes the report to w. pretty selects box tables; otherwise a
// plain key=value layout suitable for pipes and logs is used.
func Render(w io.Writer, r *Report, pretty bool) error {
	if pretty {
		return renderPretty(w, r)
	}
	return renderPlain(w, r)
}

func renderPretty(w io.Writer, r *Report) error {
	totals := r.Totals()
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s)\n", r.RunID, r.Duration().Round(time.Millisecond))

	summary := [][]string{
		{"books processed", strconv.Itoa(totals.BooksProcessed)},
		{"books skipped", strconv.Itoa(totals.BooksSkipped)},
		{"books failed", strconv.Itoa(totals.BooksFailed)},
		{"chapters decrypted", strconv.Itoa(totals.ChaptersDecrypted)},
		{"chapters skipped", strconv.Itoa(totals.ChaptersSkipped)},
		{"chapters failed", strconv.Itoa(totals.ChaptersFailed)},
		{"chapter requests", strconv.Itoa(totals.Fetches)},
		{"bundle bytes", humanize.IBytes(uint64(max(totals.BundleBytes, 0)))},
	}
	b.WriteString(Table([]string{"Metric", "Value"}, summary, []Alignment{AlignLeft, AlignRight}))
	b.WriteString("\n")

	books := r.Books()
	if len(books) > 0 {
		rows := make([][]string, 0, len(books))
		for _, book := range books {
			rows = append(rows, []string{
				strconv.FormatUint(uint64(book.BookID), 10),
				string(book.Outcome),
				book.Strategy,
				strconv.Itoa(book.Decrypted),
				strconv.Itoa(book.Skipped),
				humanize.IBytes(uint64(max(book.BundleBytes, 0))),
				book.Reason,
			})
		}
		b.WriteString(Table(
			[]string{"Book", "Outcome", "Strategy", "New", "Skipped", "Bundle", "Reason"},
			rows,
			[]Alignment{AlignRight, AlignLeft, AlignLeft, AlignRight, AlignRight, AlignRight, AlignLeft},
		))
		b.WriteString("\n")
	}

	if reasons := sortedReasons(r.FailureReasons()); len(reasons) > 0 {
		b.WriteString(Table([]string{"Failure", "Books"}, reasons, []Alignment{AlignLeft, AlignRight}))
		b.WriteString("\n")
	}
	if err := r.Err(); err != nil {
		fmt.Fprintf(&b, "run error: %v\n", err)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func renderPlain(w io.Writer, r *Report) error {
	totals := r.Totals()
	var b strings.Builder
	fmt.Fprintf(&b, "run_id=%s duration=%s\n", r.RunID, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "books processed=%d skipped=%d failed=%d\n",
		totals.BooksProcessed, totals.BooksSkipped, totals.BooksFailed)
	fmt.Fprintf(&b, "chapters decrypted=%d skipped=%d failed=%d requests=%d\n",
		totals.ChaptersDecrypted, totals.ChaptersSkipped, totals.ChaptersFailed, totals.Fetches)
	for _, book := range r.Books() {
		fmt.Fprintf(&b, "book=%d outcome=%s", book.BookID, book.Outcome)
		if book.Strategy != "" {
			fmt.Fprintf(&b, " strategy=%s", book.Strategy)
		}
		fmt.Fprintf(&b, " new=%d skipped=%d", book.Decrypted, book.Skipped)
		if book.Reason != "" {
			fmt.Fprintf(&b, " reason=%s", book.Reason)
		}
		b.WriteString("\n")
	}
	if err := r.Err(); err != nil {
		fmt.Fprintf(&b, "run_error=%q\n", err.Error())
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func sortedReasons(reasons map[string]int) [][]string {
	keys := make([]string, 0, len(reasons))
	for k := range reasons {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, strconv.Itoa(reasons[k])})
	}
	return rows
}
