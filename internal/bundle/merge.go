package bundle

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MergeResult describes the outcome of a Merge.
type MergeResult struct {
	Added   int
	Skipped []uint32
	Total   int
	// ReplacedCorrupt is set when an unreadable bundle was discarded.
	ReplacedCorrupt bool
	// Written is false when no new chapter required rewriting the file.
	Written bool
}

type block struct {
	index      uint32
	rawLen     uint32
	meta       Meta
	compressed []byte
}

// Merge adds records whose index is not yet stored and rewrites the bundle as
// version 2 with a fresh contiguous layout. Existing entries are never
// replaced. The canonical path is only ever swapped atomically; a corrupt
// existing file is discarded rather than read.
func Merge(path string, records []Record) (MergeResult, error) {
	var result MergeResult

	existing, err := loadBlocks(path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		existing = nil
	case errors.Is(err, ErrCorrupt):
		existing = nil
		result.ReplacedCorrupt = true
	default:
		return result, err
	}

	present := make(map[uint32]struct{}, len(existing)+len(records))
	for _, b := range existing {
		present[b.index] = struct{}{}
	}

	blocks := existing
	for _, rec := range records {
		if err := rec.validate(); err != nil {
			return result, fmt.Errorf("chapter %d: %w", rec.Index, err)
		}
		if _, dup := present[rec.Index]; dup {
			result.Skipped = append(result.Skipped, rec.Index)
			continue
		}
		present[rec.Index] = struct{}{}
		blocks = append(blocks, block{
			index:      rec.Index,
			rawLen:     rec.RawLen,
			meta:       rec.Meta(),
			compressed: rec.Compressed,
		})
		result.Added++
	}
	result.Total = len(blocks)

	if result.Added == 0 {
		return result, nil
	}

	sort.Slice(blocks, func(i, j int) bool { return blocks[i].index < blocks[j].index })
	if err := writeAtomic(path, blocks); err != nil {
		return result, err
	}
	result.Written = true
	return result, nil
}

// loadBlocks reads every stored chapter. Version 1 entries receive an empty
// metadata prefix when carried into version 2.
func loadBlocks(path string) ([]block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	ix, err := parseIndex(bytes.NewReader(data), int64(len(data)), path)
	if err != nil {
		return nil, err
	}

	blocks := make([]block, 0, len(ix.Entries))
	for _, e := range ix.Entries {
		var meta Meta
		if ix.Header.Version == Version2 {
			meta, err = decodeMeta(data[e.Offset : e.Offset+MetaEntrySize])
			if err != nil {
				return nil, corruptf(path, "chapter %d: %v", e.Index, err)
			}
		}
		start := ix.bodyOffset(e)
		blocks = append(blocks, block{
			index:      e.Index,
			rawLen:     e.RawLen,
			meta:       meta,
			compressed: data[start : start+int64(e.CompLen)],
		})
	}
	return blocks, nil
}

func layout(blocks []block) (Header, []Entry, error) {
	hdr := Header{Version: Version2, Count: uint32(len(blocks)), MetaEntrySize: MetaEntrySize}
	offset := uint64(hdr.Size()) + uint64(len(blocks))*entrySize
	entries := make([]Entry, len(blocks))
	for i, b := range blocks {
		if offset > math.MaxUint32 {
			return Header{}, nil, fmt.Errorf("bundle exceeds 4 GiB offset range at chapter %d", b.index)
		}
		entries[i] = Entry{
			Index:   b.index,
			Offset:  uint32(offset),
			CompLen: uint32(len(b.compressed)),
			RawLen:  b.rawLen,
		}
		offset += blockSize(Version2, uint32(len(b.compressed)))
	}
	if offset > math.MaxUint32+1 {
		return Header{}, nil, fmt.Errorf("bundle exceeds 4 GiB offset range")
	}
	return hdr, entries, nil
}

func writeAtomic(path string, blocks []block) error {
	hdr, entries, err := layout(blocks)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create bundle directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp bundle: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	w := bufio.NewWriterSize(tmp, 256*1024)
	if _, err := w.Write(encodeHeader(hdr)); err != nil {
		cleanup()
		return fmt.Errorf("write bundle header: %w", err)
	}
	rec := make([]byte, entrySize)
	for _, e := range entries {
		putEntry(rec, e)
		if _, err := w.Write(rec); err != nil {
			cleanup()
			return fmt.Errorf("write bundle index: %w", err)
		}
	}
	for _, b := range blocks {
		if _, err := w.Write(encodeMeta(b.meta)); err != nil {
			cleanup()
			return fmt.Errorf("write chapter %d metadata: %w", b.index, err)
		}
		if _, err := w.Write(b.compressed); err != nil {
			cleanup()
			return fmt.Errorf("write chapter %d body: %w", b.index, err)
		}
	}
	if err := w.Flush(); err != nil {
		cleanup()
		return fmt.Errorf("flush bundle: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp bundle: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp bundle: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace bundle: %w", err)
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open bundle directory: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync bundle directory: %w", err)
	}
	return nil
}

// CleanupTemp removes temp files abandoned by interrupted merges in dir.
// Temps whose bundle lock is held belong to a merge in progress and are kept.
func CleanupTemp(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, ".*.blib.tmp-*"))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, m := range matches {
		name, _, ok := strings.Cut(strings.TrimPrefix(filepath.Base(m), "."), ".tmp-")
		if !ok {
			continue
		}
		lock, err := Lock(filepath.Join(dir, name))
		if err != nil {
			if errors.Is(err, ErrLocked) {
				continue
			}
			return removed, err
		}
		if err := os.Remove(m); err == nil {
			removed++
		}
		if err := lock.Release(); err != nil {
			return removed, err
		}
	}
	return removed, nil
}
