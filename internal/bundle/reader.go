package bundle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
)

// Decompressor restores a compressed chapter body.
type Decompressor interface {
	Decompress(compressed []byte, rawLen uint32) ([]byte, error)
}

// Index is a parsed bundle header and index. Entries are sorted by Index.
type Index struct {
	Header  Header
	Entries []Entry
	Size    int64
}

// Indices returns the sorted chapter indices.
func (ix *Index) Indices() []uint32 {
	out := make([]uint32, len(ix.Entries))
	for i, e := range ix.Entries {
		out[i] = e.Index
	}
	return out
}

// Lookup returns the entry for idx.
func (ix *Index) Lookup(idx uint32) (Entry, bool) {
	i := sort.Search(len(ix.Entries), func(i int) bool { return ix.Entries[i].Index >= idx })
	if i < len(ix.Entries) && ix.Entries[i].Index == idx {
		return ix.Entries[i], true
	}
	return Entry{}, false
}

// Highest returns the entry with the largest index.
func (ix *Index) Highest() (Entry, bool) {
	if len(ix.Entries) == 0 {
		return Entry{}, false
	}
	return ix.Entries[len(ix.Entries)-1], true
}

// bodyOffset is where the compressed bytes of e begin.
func (ix *Index) bodyOffset(e Entry) int64 {
	if ix.Header.Version == Version1 {
		return int64(e.Offset)
	}
	return int64(e.Offset) + MetaEntrySize
}

// ReadIndex parses the header and index of the bundle at path without
// touching the data region.
func ReadIndex(path string) (*Index, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat bundle: %w", err)
	}
	return parseIndex(file, info.Size(), path)
}

func parseIndex(r io.ReaderAt, size int64, path string) (*Index, error) {
	if size < headerSizeV1 {
		return nil, corruptf(path, "truncated header (%d bytes)", size)
	}
	head := make([]byte, headerSizeV2)
	n, err := r.ReadAt(head[:min(int64(headerSizeV2), size)], 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read bundle header: %w", err)
	}
	head = head[:n]
	if string(head[0:4]) != Magic {
		return nil, corruptf(path, "bad magic %q", head[0:4])
	}

	hdr := Header{
		Version: binary.LittleEndian.Uint32(head[4:8]),
		Count:   binary.LittleEndian.Uint32(head[8:12]),
	}
	switch hdr.Version {
	case Version1:
	case Version2:
		if len(head) < headerSizeV2 {
			return nil, corruptf(path, "truncated v2 header (%d bytes)", len(head))
		}
		hdr.MetaEntrySize = binary.LittleEndian.Uint16(head[12:14])
		if hdr.MetaEntrySize != MetaEntrySize {
			return nil, corruptf(path, "metadata entry size %d, want %d", hdr.MetaEntrySize, MetaEntrySize)
		}
	default:
		return nil, corruptf(path, "unknown version %d", hdr.Version)
	}

	dataStart := int64(hdr.Size()) + int64(hdr.Count)*entrySize
	if dataStart > size {
		return nil, corruptf(path, "truncated index: %d entries need %d bytes, file has %d", hdr.Count, dataStart, size)
	}

	raw := make([]byte, int(hdr.Count)*entrySize)
	if len(raw) > 0 {
		if _, err := r.ReadAt(raw, int64(hdr.Size())); err != nil {
			return nil, fmt.Errorf("read bundle index: %w", err)
		}
	}

	entries := make([]Entry, hdr.Count)
	for i := range entries {
		entries[i] = readEntry(raw[i*entrySize:])
	}
	if err := checkEntries(path, hdr.Version, entries, dataStart, size); err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Index < entries[j].Index })
	return &Index{Header: hdr, Entries: entries, Size: size}, nil
}

func checkEntries(path string, version uint32, entries []Entry, dataStart, size int64) error {
	seen := make(map[uint32]struct{}, len(entries))
	byOffset := make([]Entry, len(entries))
	copy(byOffset, entries)
	sort.Slice(byOffset, func(i, j int) bool { return byOffset[i].Offset < byOffset[j].Offset })

	end := dataStart
	for _, e := range byOffset {
		if e.Index == 0 {
			return corruptf(path, "entry with index 0")
		}
		if _, dup := seen[e.Index]; dup {
			return corruptf(path, "duplicate index %d", e.Index)
		}
		seen[e.Index] = struct{}{}
		if int64(e.Offset) < end {
			return corruptf(path, "entry %d at offset %d overlaps previous data ending at %d", e.Index, e.Offset, end)
		}
		end = int64(e.Offset) + int64(blockSize(version, e.CompLen))
		if end > size {
			return corruptf(path, "entry %d out of range: ends at %d, file has %d bytes", e.Index, end, size)
		}
	}
	return nil
}

// ListIndices returns the sorted chapter indices stored at path. Only the
// header and index are read.
func ListIndices(path string) ([]uint32, error) {
	ix, err := ReadIndex(path)
	if err != nil {
		return nil, err
	}
	return ix.Indices(), nil
}

// ReadCompressed returns the stored compressed bytes and entry for idx.
func ReadCompressed(path string, idx uint32) ([]byte, Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, Entry{}, fmt.Errorf("open bundle: %w", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, Entry{}, fmt.Errorf("stat bundle: %w", err)
	}
	ix, err := parseIndex(file, info.Size(), path)
	if err != nil {
		return nil, Entry{}, err
	}
	entry, ok := ix.Lookup(idx)
	if !ok {
		return nil, Entry{}, fmt.Errorf("index %d: %w", idx, ErrNotFound)
	}
	buf := make([]byte, entry.CompLen)
	if _, err := file.ReadAt(buf, ix.bodyOffset(entry)); err != nil {
		return nil, Entry{}, fmt.Errorf("read chapter %d: %w", idx, err)
	}
	return buf, entry, nil
}

// ReadBody decompresses the chapter body stored under idx.
func ReadBody(path string, idx uint32, codec Decompressor) ([]byte, error) {
	compressed, entry, err := ReadCompressed(path, idx)
	if err != nil {
		return nil, err
	}
	body, err := codec.Decompress(compressed, entry.RawLen)
	if err != nil {
		return nil, fmt.Errorf("decompress chapter %d: %w", idx, err)
	}
	return body, nil
}

// ReadMeta returns the metadata prefix of idx without decompressing the body.
func ReadMeta(path string, idx uint32) (Meta, error) {
	file, err := os.Open(path)
	if err != nil {
		return Meta{}, fmt.Errorf("open bundle: %w", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return Meta{}, fmt.Errorf("stat bundle: %w", err)
	}
	ix, err := parseIndex(file, info.Size(), path)
	if err != nil {
		return Meta{}, err
	}
	return readMetaAt(file, ix, idx, path)
}

// ReadAllMeta returns the metadata prefix of every chapter, keyed by index.
func ReadAllMeta(path string) (map[uint32]Meta, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat bundle: %w", err)
	}
	ix, err := parseIndex(file, info.Size(), path)
	if err != nil {
		return nil, err
	}
	if ix.Header.Version == Version1 {
		return nil, ErrNoMetadata
	}
	out := make(map[uint32]Meta, len(ix.Entries))
	for _, e := range ix.Entries {
		meta, err := readMetaAt(file, ix, e.Index, path)
		if err != nil {
			return nil, err
		}
		out[e.Index] = meta
	}
	return out, nil
}

func readMetaAt(r io.ReaderAt, ix *Index, idx uint32, path string) (Meta, error) {
	if ix.Header.Version == Version1 {
		return Meta{}, ErrNoMetadata
	}
	entry, ok := ix.Lookup(idx)
	if !ok {
		return Meta{}, fmt.Errorf("index %d: %w", idx, ErrNotFound)
	}
	buf := make([]byte, MetaEntrySize)
	if _, err := r.ReadAt(buf, int64(entry.Offset)); err != nil {
		return Meta{}, fmt.Errorf("read metadata %d: %w", idx, err)
	}
	meta, err := decodeMeta(buf)
	if err != nil {
		return Meta{}, corruptf(path, "chapter %d: %v", idx, err)
	}
	return meta, nil
}

// Info summarizes a bundle for walk strategy selection.
type Info struct {
	Path    string
	Exists  bool
	Corrupt bool
	Cause   error
	Version uint32
	Indices []uint32
	Size    int64
	// AnchorIndex and AnchorRemoteID describe the highest-index block. The
	// remote ID is zero for v1 bundles.
	AnchorIndex    uint32
	AnchorRemoteID uint32
}

// HasIndex reports whether idx is stored locally.
func (i Info) HasIndex(idx uint32) bool {
	n := sort.Search(len(i.Indices), func(k int) bool { return i.Indices[k] >= idx })
	return n < len(i.Indices) && i.Indices[n] == idx
}

// Usable reports whether the bundle exists and parsed cleanly.
func (i Info) Usable() bool {
	return i.Exists && !i.Corrupt
}

// Inspect reports the state of the bundle at path. A missing file yields
// Exists=false and a nil error; a malformed file yields Corrupt=true with the
// cause. Only unexpected I/O failures are returned as errors.
func Inspect(path string) (Info, error) {
	info := Info{Path: path}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return info, nil
		}
		return info, fmt.Errorf("open bundle: %w", err)
	}
	defer file.Close()
	stat, err := file.Stat()
	if err != nil {
		return info, fmt.Errorf("stat bundle: %w", err)
	}
	info.Exists = true
	info.Size = stat.Size()

	ix, err := parseIndex(file, stat.Size(), path)
	if err != nil {
		if errors.Is(err, ErrCorrupt) {
			info.Corrupt = true
			info.Cause = err
			return info, nil
		}
		return info, err
	}
	info.Version = ix.Header.Version
	info.Indices = ix.Indices()

	top, ok := ix.Highest()
	if !ok {
		return info, nil
	}
	info.AnchorIndex = top.Index
	if ix.Header.Version == Version2 {
		meta, err := readMetaAt(file, ix, top.Index, path)
		if err != nil {
			if errors.Is(err, ErrCorrupt) {
				info.Corrupt = true
				info.Cause = err
				return info, nil
			}
			return info, err
		}
		info.AnchorRemoteID = meta.RemoteID
	}
	return info, nil
}
