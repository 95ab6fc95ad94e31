package bundle

import (
	"folio/internal/compress"
)

// Summary is the storage breakdown of a bundle.
type Summary struct {
	Path            string
	Version         uint32
	Entries         int
	FileSize        int64
	CompressedBytes uint64
	RawBytes        uint64
	// OverheadBytes covers the header, the index, and v2 metadata prefixes.
	OverheadBytes uint64
	Ratio         float64
	FirstIndex    uint32
	LastIndex     uint32
	// Gaps counts indices missing between FirstIndex and LastIndex.
	Gaps uint32
}

// Stats summarizes the bundle at path from its header and index alone.
func Stats(path string) (Summary, error) {
	ix, err := ReadIndex(path)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{
		Path:     path,
		Version:  ix.Header.Version,
		Entries:  len(ix.Entries),
		FileSize: ix.Size,
	}
	s.OverheadBytes = uint64(ix.Header.Size()) + uint64(len(ix.Entries))*entrySize
	for _, e := range ix.Entries {
		s.CompressedBytes += uint64(e.CompLen)
		s.RawBytes += uint64(e.RawLen)
		if ix.Header.Version == Version2 {
			s.OverheadBytes += MetaEntrySize
		}
	}
	s.Ratio = compress.Ratio(s.CompressedBytes, s.RawBytes)
	if len(ix.Entries) > 0 {
		s.FirstIndex = ix.Entries[0].Index
		s.LastIndex = ix.Entries[len(ix.Entries)-1].Index
		s.Gaps = s.LastIndex - s.FirstIndex + 1 - uint32(len(ix.Entries))
	}
	return s, nil
}
