package ingest_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io/fs"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"testing"

	"folio/internal/bundle"
	"folio/internal/catalog"
	"folio/internal/compress"
	"folio/internal/config"
	"folio/internal/envelope"
	"folio/internal/ingest"
	"folio/internal/remote"
	"folio/internal/report"
	"folio/internal/testsupport"
)

type harness struct {
	cfg    *config.Config
	fake   *testsupport.FakeRemote
	store  *catalog.Store
	client *remote.Client
	codec  *compress.Codec
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	fake := testsupport.NewFakeRemote(t)
	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithRemote(fake.URL())}, opts...)...)
	client, err := remote.NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("remote.NewFromConfig: %v", err)
	}
	return &harness{
		cfg:    cfg,
		fake:   fake,
		store:  testsupport.MustOpenCatalog(t, cfg),
		client: client,
		codec:  testsupport.MustCodec(t),
	}
}

func (h *harness) orchestrator(t *testing.T, cat ingest.Catalog) *ingest.Orchestrator {
	t.Helper()
	if cat == nil {
		cat = h.store
	}
	orch, err := ingest.New(h.client, cat, envelope.NewDecryptor(envelope.MACVerify), h.codec, ingest.OptionsFromConfig(h.cfg, nil))
	if err != nil {
		t.Fatalf("ingest.New: %v", err)
	}
	return orch
}

func (h *harness) run(t *testing.T, ids ...uint32) *report.Report {
	t.Helper()
	rep, err := h.orchestrator(t, nil).Run(context.Background(), ids)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return rep
}

func bookResult(t *testing.T, rep *report.Report, id uint32) report.BookResult {
	t.Helper()
	for _, b := range rep.Books() {
		if b.BookID == id {
			return b
		}
	}
	t.Fatalf("no result for book %d", id)
	return report.BookResult{}
}

func assertContiguous(t *testing.T, path string, n uint32) {
	t.Helper()
	indices, err := bundle.ListIndices(path)
	if err != nil {
		t.Fatalf("ListIndices: %v", err)
	}
	if uint32(len(indices)) != n {
		t.Fatalf("bundle has %d entries, want %d", len(indices), n)
	}
	for i, idx := range indices {
		if idx != uint32(i+1) {
			t.Fatalf("index %d at position %d; bundle not contiguous", idx, i)
		}
	}
}

func TestIngestNewBooks(t *testing.T) {
	h := newHarness(t, testsupport.WithCheckpointEvery(5))
	h.fake.AddBook(1, 12, testsupport.WithGenre(3, "Fantasy"), testsupport.WithTag(8, "Slow burn"))
	h.fake.AddBook(2, 5, testsupport.WithAuthor("c1000024"))

	rep := h.run(t, 1, 2)
	if totals := rep.Totals(); totals.BooksProcessed != 2 || totals.ChaptersDecrypted != 17 {
		t.Fatalf("unexpected totals: %+v", totals)
	}
	first := bookResult(t, rep, 1)
	if first.Strategy != "forward" || first.Checkpoints != 3 {
		t.Fatalf("unexpected result for book 1: %+v", first)
	}

	path := h.cfg.BundlePath(1)
	assertContiguous(t, path, 12)
	body, err := bundle.ReadBody(path, 7, h.codec)
	if err != nil {
		t.Fatalf("ReadBody: %v", err)
	}
	if string(body) != testsupport.ChapterBody(1, 7) {
		t.Fatalf("unexpected body: %q", body)
	}
	meta, err := bundle.ReadMeta(path, 7)
	if err != nil {
		t.Fatalf("ReadMeta: %v", err)
	}
	if meta.Title != testsupport.ChapterTitle(7) || meta.RemoteID != testsupport.ChapterID(1, 7) {
		t.Fatalf("unexpected meta: %+v", meta)
	}

	ctx := context.Background()
	book, found, err := h.store.GetBook(ctx, 1)
	if err != nil || !found {
		t.Fatalf("GetBook: found=%v err=%v", found, err)
	}
	if book.ChaptersSaved != 12 || book.MetaHash == "" {
		t.Fatalf("unexpected book row: %+v", book)
	}
	rows, err := h.store.ListChapters(ctx, 1)
	if err != nil {
		t.Fatalf("ListChapters: %v", err)
	}
	if len(rows) != 12 || rows[6].Title != testsupport.ChapterTitle(7) || rows[6].WordCount == 0 {
		t.Fatalf("unexpected chapter rows: %+v", rows)
	}
	second, _, err := h.store.GetBook(ctx, 2)
	if err != nil || second.AuthorID != "c1000024" {
		t.Fatalf("unexpected author for book 2: %+v err=%v", second, err)
	}
}

func TestUnchangedBookIsSkippedWithoutChapterFetches(t *testing.T) {
	h := newHarness(t)
	h.fake.AddBook(3, 6, testsupport.WithExtra("status", "completed"))
	h.run(t, 3)
	before := testsupport.ReadFile(t, h.cfg.BundlePath(3))

	h.fake.ResetCounters()
	rep := h.run(t, 3)

	if got := bookResult(t, rep, 3).Outcome; got != report.OutcomeSkipped {
		t.Fatalf("outcome = %s, want skipped", got)
	}
	if n := h.fake.ChapterFetches(3); n != 0 {
		t.Fatalf("chapter fetches = %d, want 0", n)
	}
	if n := h.fake.BookFetches(3); n != 1 {
		t.Fatalf("metadata fetches = %d, want 1", n)
	}
	if !bytes.Equal(before, testsupport.ReadFile(t, h.cfg.BundlePath(3))) {
		t.Fatal("skipped book rewrote its bundle")
	}
}

func TestResumeIngestsOnlyNewChapters(t *testing.T) {
	const bookID = 9
	h := newHarness(t)
	h.fake.AddBook(bookID, 500)
	h.run(t, bookID)

	h.fake.SetChapterCount(bookID, 520)
	h.fake.ResetCounters()
	rep := h.run(t, bookID)

	result := bookResult(t, rep, bookID)
	if result.Strategy != "resume" || result.Decrypted != 20 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if n := h.fake.ChapterFetches(bookID); n != 21 {
		t.Fatalf("chapter fetches = %d, want 20 new plus the anchor", n)
	}
	if first := h.fake.FetchedChapters(bookID)[0]; first != testsupport.ChapterID(bookID, 500) {
		t.Fatalf("first fetch = %d, want anchor", first)
	}
	assertContiguous(t, h.cfg.BundlePath(bookID), 520)
	book, _, err := h.store.GetBook(context.Background(), bookID)
	if err != nil || book.ChaptersSaved != 520 {
		t.Fatalf("chapters_saved = %d err=%v", book.ChaptersSaved, err)
	}
}

func TestFailureBeforeCheckpointLeavesBundleUntouched(t *testing.T) {
	const bookID = 4
	h := newHarness(t, testsupport.WithChapterAttempts(2))
	h.fake.AddBook(bookID, 10)
	h.run(t, bookID)
	path := h.cfg.BundlePath(bookID)
	before := testsupport.ReadFile(t, path)

	h.fake.SetChapterCount(bookID, 60)
	h.fake.SetCorrupt(testsupport.ChapterID(bookID, 51), -1)
	rep := h.run(t, bookID)

	result := bookResult(t, rep, bookID)
	if result.Outcome != report.OutcomeFailed || result.Reason != "decrypt" || result.Failed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Decrypted != 40 || result.Checkpoints != 0 {
		t.Fatalf("expected 40 buffered chapters and no checkpoint, got %+v", result)
	}
	if !bytes.Equal(before, testsupport.ReadFile(t, path)) {
		t.Fatal("bundle changed after a failed walk")
	}
	book, _, err := h.store.GetBook(context.Background(), bookID)
	if err != nil || book.ChaptersSaved != 10 {
		t.Fatalf("chapters_saved = %d err=%v", book.ChaptersSaved, err)
	}

	h.fake.SetCorrupt(testsupport.ChapterID(bookID, 51), 0)
	rep = h.run(t, bookID)
	if result := bookResult(t, rep, bookID); result.Outcome != report.OutcomeProcessed || result.Decrypted != 50 {
		t.Fatalf("unexpected rerun result: %+v", result)
	}
	assertContiguous(t, path, 60)
}

func TestDecryptFailureIsRetried(t *testing.T) {
	const bookID = 7
	h := newHarness(t)
	h.fake.AddBook(bookID, 4)
	h.fake.SetCorrupt(testsupport.ChapterID(bookID, 2), 1)

	rep := h.run(t, bookID)
	result := bookResult(t, rep, bookID)
	if result.Outcome != report.OutcomeProcessed || result.Failed != 0 || result.Retries != 1 || result.Fetches != 5 {
		t.Fatalf("unexpected result: %+v", result)
	}
	assertContiguous(t, h.cfg.BundlePath(bookID), 4)
}

func TestCorruptBundleFallsBackToForwardWalk(t *testing.T) {
	const bookID = 5
	h := newHarness(t)
	h.fake.AddBook(bookID, 4)
	path := h.cfg.BundlePath(bookID)
	testsupport.WriteFile(t, path, []byte("BLI"))

	rep := h.run(t, bookID)
	result := bookResult(t, rep, bookID)
	if result.Strategy != "forward" || !reflect.DeepEqual(result.Transitions, []string{"no_bundle", "end_of_list"}) {
		t.Fatalf("unexpected walk: %+v", result)
	}
	info, err := bundle.Inspect(path)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if !info.Usable() || info.Version != bundle.Version2 {
		t.Fatalf("expected a fresh v2 bundle, got %+v", info)
	}
	assertContiguous(t, path, 4)
}

func TestReverseWalkUpgradesLegacyBundle(t *testing.T) {
	const bookID = 11
	h := newHarness(t)
	h.fake.AddBook(bookID, 6)
	h.run(t, bookID)

	// Rewrite the bundle as v1 holding chapters 1..3 only.
	path := h.cfg.BundlePath(bookID)
	var blocks []legacyBlock
	for idx := uint32(1); idx <= 3; idx++ {
		compressed, entry, err := bundle.ReadCompressed(path, idx)
		if err != nil {
			t.Fatalf("ReadCompressed: %v", err)
		}
		blocks = append(blocks, legacyBlock{index: idx, rawLen: entry.RawLen, compressed: compressed})
	}
	testsupport.WriteFile(t, path, legacyBundle(blocks))
	h.fake.AddBook(bookID, 6, testsupport.WithExtra("revision", 2))

	rep := h.run(t, bookID)
	result := bookResult(t, rep, bookID)
	if result.Strategy != "reverse" || result.Decrypted != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}
	info, err := bundle.Inspect(path)
	if err != nil || info.Version != bundle.Version2 {
		t.Fatalf("expected upgrade to v2, got %+v err=%v", info, err)
	}
	assertContiguous(t, path, 6)
}

type legacyBlock struct {
	index      uint32
	rawLen     uint32
	compressed []byte
}

// legacyBundle encodes blocks in the version 1 layout.
func legacyBundle(blocks []legacyBlock) []byte {
	var buf bytes.Buffer
	buf.WriteString(bundle.Magic)
	_ = binary.Write(&buf, binary.LittleEndian, []uint32{bundle.Version1, uint32(len(blocks))})
	offset := uint32(12 + 16*len(blocks))
	for _, b := range blocks {
		_ = binary.Write(&buf, binary.LittleEndian, []uint32{b.index, offset, uint32(len(b.compressed)), b.rawLen})
		offset += uint32(len(b.compressed))
	}
	for _, b := range blocks {
		buf.Write(b.compressed)
	}
	return buf.Bytes()
}

func TestLockedBookFailsAndOthersContinue(t *testing.T) {
	h := newHarness(t)
	h.fake.AddBook(20, 3)
	h.fake.AddBook(21, 3)

	lock, err := bundle.Lock(h.cfg.BundlePath(20))
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer lock.Release()

	rep := h.run(t, 20, 21)
	if result := bookResult(t, rep, 20); result.Outcome != report.OutcomeFailed || result.Reason != "locked" {
		t.Fatalf("unexpected locked result: %+v", result)
	}
	if result := bookResult(t, rep, 21); result.Outcome != report.OutcomeProcessed {
		t.Fatalf("unexpected result for unlocked book: %+v", result)
	}
}

func TestMissingBookFails(t *testing.T) {
	h := newHarness(t)
	rep := h.run(t, 404)
	if result := bookResult(t, rep, 404); result.Reason != "not_found" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

type fkCatalog struct {
	*catalog.Store
}

func (c fkCatalog) CommitChapters(ctx context.Context, bookID uint32, chapters []catalog.Chapter, saved uint32) error {
	return errors.Join(errors.New("insert chapter"), catalog.ErrForeignKey)
}

func TestForeignKeyViolationIsFatal(t *testing.T) {
	h := newHarness(t, testsupport.WithWorkers(1))
	for id := uint32(30); id < 34; id++ {
		h.fake.AddBook(id, 2)
	}

	rep, err := h.orchestrator(t, fkCatalog{h.store}).Run(context.Background(), []uint32{30, 31, 32, 33})
	if err == nil || !ingest.IsFatal(err) || !errors.Is(err, catalog.ErrForeignKey) {
		t.Fatalf("expected fatal foreign key error, got %v", err)
	}
	if rep.Err() == nil {
		t.Fatal("report should carry the run error")
	}
	if got := rep.FailureReasons()["foreign_key"]; got != 1 {
		t.Fatalf("expected one foreign key failure, got %v", rep.FailureReasons())
	}
	if rep.Totals().BooksProcessed != 0 {
		t.Fatalf("no book should complete: %+v", rep.Totals())
	}
}

type flakyCatalog struct {
	*catalog.Store
	calls atomic.Int32
}

func (c *flakyCatalog) CommitChapters(ctx context.Context, bookID uint32, chapters []catalog.Chapter, saved uint32) error {
	if c.calls.Add(1) == 1 {
		return errors.New("disk I/O error")
	}
	return c.Store.CommitChapters(ctx, bookID, chapters, saved)
}

func TestInterruptedCheckpointRowsAreRebuilt(t *testing.T) {
	const bookID = 12
	h := newHarness(t, testsupport.WithCheckpointEvery(5))
	h.fake.AddBook(bookID, 8)

	rep, err := h.orchestrator(t, &flakyCatalog{Store: h.store}).Run(context.Background(), []uint32{bookID})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result := bookResult(t, rep, bookID); result.Reason != "storage" {
		t.Fatalf("unexpected result: %+v", result)
	}
	assertContiguous(t, h.cfg.BundlePath(bookID), 5)
	ctx := context.Background()
	if indices, _ := h.store.ChapterIndices(ctx, bookID); len(indices) != 0 {
		t.Fatalf("expected no rows after failed commit, got %v", indices)
	}

	h.fake.ResetCounters()
	rep = h.run(t, bookID)
	if result := bookResult(t, rep, bookID); result.Outcome != report.OutcomeProcessed || result.Decrypted != 3 {
		t.Fatalf("unexpected rerun: %+v", result)
	}
	rows, err := h.store.ListChapters(ctx, bookID)
	if err != nil || len(rows) != 8 {
		t.Fatalf("rows=%d err=%v", len(rows), err)
	}
	if rows[0].Title != testsupport.ChapterTitle(1) {
		t.Fatalf("rebuilt row lost its title: %+v", rows[0])
	}
}

func TestReconcileRebuildsLostCatalog(t *testing.T) {
	const bookID = 15
	h := newHarness(t)
	h.fake.AddBook(bookID, 7)
	h.run(t, bookID)

	fresh, err := catalog.OpenPath(filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { fresh.Close() })

	ctx := context.Background()
	result, err := ingest.Reconcile(ctx, fresh, h.client, h.cfg.BundlePath(bookID), bookID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !result.BookCreated || result.Rebuilt != 7 || result.BundleEntries != 7 {
		t.Fatalf("unexpected result: %+v", result)
	}
	book, found, err := fresh.GetBook(ctx, bookID)
	if err != nil || !found || book.ChaptersSaved != 7 || book.MetaHash != "" {
		t.Fatalf("unexpected book row: %+v found=%v err=%v", book, found, err)
	}

	again, err := ingest.Reconcile(ctx, fresh, nil, h.cfg.BundlePath(bookID), bookID)
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if again.Rebuilt != 0 || again.RowsBefore != 7 {
		t.Fatalf("second reconcile should be a no-op: %+v", again)
	}
}

func TestReconcileRejectsMissingBundle(t *testing.T) {
	h := newHarness(t)
	if _, err := ingest.Reconcile(context.Background(), h.store, nil, h.cfg.BundlePath(99), 99); err == nil {
		t.Fatal("expected error for missing bundle")
	}
}

func TestReconcileWaitsForBookLock(t *testing.T) {
	h := newHarness(t)
	path := h.cfg.BundlePath(98)
	lock, err := bundle.Lock(path)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	_, err = ingest.Reconcile(context.Background(), h.store, nil, path, 98)
	if !errors.Is(err, bundle.ErrLocked) {
		t.Fatalf("expected ErrLocked before the bundle is inspected, got %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	_, err = ingest.Reconcile(context.Background(), h.store, nil, path, 98)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected missing bundle once unlocked, got %v", err)
	}
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ingest.Wrap(ingest.ErrStorage, 1, "lock bundle", "", bundle.ErrLocked), "locked"},
		{ingest.Wrap(ingest.ErrWalk, 1, "walk", "", &envelope.DecryptError{Reason: "bad padding"}), "decrypt"},
		{ingest.Wrap(ingest.ErrRemote, 1, "fetch", "", &remote.StatusError{StatusCode: 503}), "http_503"},
		{ingest.Wrap(ingest.ErrStorage, 1, "checkpoint", "", catalog.ErrForeignKey), "foreign_key"},
		{context.Canceled, "canceled"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		if got := ingest.Reason(tt.err); got != tt.want {
			t.Fatalf("Reason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
