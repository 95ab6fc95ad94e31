package report_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"folio/internal/report"
)

func sampleReport() *report.Report {
	r := report.New()
	r.Add(report.BookResult{BookID: 3, Outcome: report.OutcomeProcessed, Strategy: "resume", Decrypted: 20, Fetches: 21, BundleBytes: 4096})
	r.Add(report.BookResult{BookID: 1, Outcome: report.OutcomeSkipped, Fetches: 0})
	r.Add(report.BookResult{BookID: 2, Outcome: report.OutcomeFailed, Reason: "decrypt", Decrypted: 4, Failed: 1, Fetches: 8})
	r.Add(report.BookResult{BookID: 4, Outcome: report.OutcomeFailed, Reason: "locked"})
	r.Add(report.BookResult{BookID: 5, Outcome: report.OutcomeFailed, Reason: "decrypt"})
	r.Finish(nil)
	return r
}

func TestTotalsAndReasons(t *testing.T) {
	r := sampleReport()
	totals := r.Totals()
	if totals.BooksProcessed != 1 || totals.BooksSkipped != 1 || totals.BooksFailed != 3 {
		t.Fatalf("unexpected book totals: %+v", totals)
	}
	if totals.ChaptersDecrypted != 24 || totals.ChaptersFailed != 1 || totals.Fetches != 29 {
		t.Fatalf("unexpected chapter totals: %+v", totals)
	}
	reasons := r.FailureReasons()
	if reasons["decrypt"] != 2 || reasons["locked"] != 1 {
		t.Fatalf("unexpected reasons: %v", reasons)
	}
	books := r.Books()
	for i := 1; i < len(books); i++ {
		if books[i-1].BookID > books[i].BookID {
			t.Fatalf("books not sorted: %v", books)
		}
	}
}

func TestConcurrentAdd(t *testing.T) {
	r := report.New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id uint32) {
			defer wg.Done()
			r.Add(report.BookResult{BookID: id, Outcome: report.OutcomeProcessed, Decrypted: 1})
		}(uint32(i))
	}
	wg.Wait()
	if got := r.Totals().ChaptersDecrypted; got != 50 {
		t.Fatalf("decrypted = %d, want 50", got)
	}
}

func TestRenderPlain(t *testing.T) {
	var buf bytes.Buffer
	if err := report.Render(&buf, sampleReport(), false); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"books processed=1 skipped=1 failed=3",
		"book=2 outcome=failed",
		"reason=decrypt",
		"strategy=resume",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("plain output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "╭") {
		t.Fatal("plain output should not contain table borders")
	}
}

func TestRenderPretty(t *testing.T) {
	r := sampleReport()
	var buf bytes.Buffer
	if err := report.Render(&buf, r, true); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Metric", "books failed", "4.0 KiB", "locked", r.RunID} {
		if !strings.Contains(out, want) {
			t.Fatalf("pretty output missing %q:\n%s", want, out)
		}
	}
}

func TestTableKeepsHeaderCase(t *testing.T) {
	out := report.Table(
		[]string{"Book", "Chapters"},
		[][]string{{"12"}, {"13", "40", "dropped"}},
		[]report.Alignment{report.AlignLeft, report.AlignRight},
	)
	if !strings.Contains(out, "Chapters") || strings.Contains(out, "CHAPTERS") {
		t.Fatalf("expected headers printed as given:\n%s", out)
	}
	if strings.Contains(out, "dropped") {
		t.Fatalf("expected extra cells dropped:\n%s", out)
	}
	if lines := strings.Count(out, "\n") + 1; lines != 6 {
		t.Fatalf("expected 6 lines (borders, header, separator, two rows), got %d:\n%s", lines, out)
	}
	if report.Table(nil, [][]string{{"x"}}, nil) != "" {
		t.Fatal("expected empty output without headers")
	}
}

func TestRenderIncludesRunError(t *testing.T) {
	r := report.New()
	r.Finish(errors.New("foreign key violation"))
	var buf bytes.Buffer
	if err := report.Render(&buf, r, false); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(buf.String(), "foreign key violation") {
		t.Fatalf("expected run error in output: %s", buf.String())
	}
}

func TestAppendJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "runs.jsonl")
	first := sampleReport()
	second := report.New()
	second.Finish(nil)

	for _, r := range []*report.Report{first, second} {
		if err := report.AppendJSONL(path, r); err != nil {
			t.Fatalf("AppendJSONL: %v", err)
		}
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	var records []report.Record
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec report.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		records = append(records, rec)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].RunID != first.RunID || records[1].RunID != second.RunID {
		t.Fatalf("unexpected run ids: %q %q", records[0].RunID, records[1].RunID)
	}
	if records[0].RunID == records[1].RunID {
		t.Fatal("run ids should be unique")
	}
	if records[0].Totals.BooksFailed != 3 || records[0].FailureReasons["decrypt"] != 2 {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
}

func TestIsTerminalNil(t *testing.T) {
	if report.IsTerminal(nil) {
		t.Fatal("nil file is not a terminal")
	}
}
