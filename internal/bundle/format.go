package bundle

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// Magic identifies a BLIB file.
const Magic = "BLIB"

const (
	Version1 uint32 = 1
	Version2 uint32 = 2

	headerSizeV1 = 12
	headerSizeV2 = 16
	entrySize    = 16

	// MetaEntrySize is the width of the metadata prefix in front of every v2 body.
	MetaEntrySize = 256
	// MaxTitleBytes is the widest title a metadata prefix can hold.
	MaxTitleBytes = 196
	// MaxSlugBytes is the widest slug a metadata prefix can hold.
	MaxSlugBytes = 48

	metaTitleLenOff = 8
	metaTitleOff    = 9
	metaSlugLenOff  = metaTitleOff + MaxTitleBytes
	metaSlugOff     = metaSlugLenOff + 1
)

// Header is the fixed-size preamble of a bundle.
type Header struct {
	Version       uint32
	Count         uint32
	MetaEntrySize uint16
}

// Size returns the encoded header width for the version.
func (h Header) Size() int {
	if h.Version == Version1 {
		return headerSizeV1
	}
	return headerSizeV2
}

// Entry is one index record. Offset is an absolute file offset.
type Entry struct {
	Index   uint32
	Offset  uint32
	CompLen uint32
	RawLen  uint32
}

// Meta is the self-describing metadata stored ahead of a v2 body.
type Meta struct {
	RemoteID  uint32
	WordCount uint32
	Title     string
	Slug      string
}

// Record is a chapter ready to be merged into a bundle.
type Record struct {
	Index      uint32
	RemoteID   uint32
	Title      string
	Slug       string
	WordCount  uint32
	RawLen     uint32
	Compressed []byte
}

// Meta returns the metadata prefix fields of the record.
func (r Record) Meta() Meta {
	return Meta{RemoteID: r.RemoteID, WordCount: r.WordCount, Title: r.Title, Slug: r.Slug}
}

func (r Record) validate() error {
	if r.Index == 0 {
		return fmt.Errorf("chapter index must start at 1")
	}
	return r.Meta().validate()
}

func (m Meta) validate() error {
	if len(m.Title) > MaxTitleBytes {
		return fmt.Errorf("title is %d bytes, limit %d", len(m.Title), MaxTitleBytes)
	}
	if len(m.Slug) > MaxSlugBytes {
		return fmt.Errorf("slug is %d bytes, limit %d", len(m.Slug), MaxSlugBytes)
	}
	if !utf8.ValidString(m.Title) || !utf8.ValidString(m.Slug) {
		return fmt.Errorf("title and slug must be valid UTF-8")
	}
	return nil
}

func encodeHeader(h Header) []byte {
	buf := make([]byte, h.Size())
	copy(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.Count)
	if h.Version != Version1 {
		binary.LittleEndian.PutUint16(buf[12:14], h.MetaEntrySize)
	}
	return buf
}

func putEntry(dst []byte, e Entry) {
	binary.LittleEndian.PutUint32(dst[0:4], e.Index)
	binary.LittleEndian.PutUint32(dst[4:8], e.Offset)
	binary.LittleEndian.PutUint32(dst[8:12], e.CompLen)
	binary.LittleEndian.PutUint32(dst[12:16], e.RawLen)
}

func readEntry(src []byte) Entry {
	return Entry{
		Index:   binary.LittleEndian.Uint32(src[0:4]),
		Offset:  binary.LittleEndian.Uint32(src[4:8]),
		CompLen: binary.LittleEndian.Uint32(src[8:12]),
		RawLen:  binary.LittleEndian.Uint32(src[12:16]),
	}
}

func encodeMeta(m Meta) []byte {
	buf := make([]byte, MetaEntrySize)
	binary.LittleEndian.PutUint32(buf[0:4], m.RemoteID)
	binary.LittleEndian.PutUint32(buf[4:8], m.WordCount)
	buf[metaTitleLenOff] = byte(len(m.Title))
	copy(buf[metaTitleOff:metaTitleOff+MaxTitleBytes], m.Title)
	buf[metaSlugLenOff] = byte(len(m.Slug))
	copy(buf[metaSlugOff:metaSlugOff+MaxSlugBytes], m.Slug)
	return buf
}

func decodeMeta(buf []byte) (Meta, error) {
	if len(buf) < MetaEntrySize {
		return Meta{}, fmt.Errorf("metadata prefix is %d bytes", len(buf))
	}
	titleLen := int(buf[metaTitleLenOff])
	slugLen := int(buf[metaSlugLenOff])
	if titleLen > MaxTitleBytes || slugLen > MaxSlugBytes {
		return Meta{}, fmt.Errorf("metadata lengths out of range (title %d, slug %d)", titleLen, slugLen)
	}
	return Meta{
		RemoteID:  binary.LittleEndian.Uint32(buf[0:4]),
		WordCount: binary.LittleEndian.Uint32(buf[4:8]),
		Title:     string(buf[metaTitleOff : metaTitleOff+titleLen]),
		Slug:      string(buf[metaSlugOff : metaSlugOff+slugLen]),
	}, nil
}

// blockSize is the data-region width of an entry for the version.
func blockSize(version uint32, compLen uint32) uint64 {
	if version == Version1 {
		return uint64(compLen)
	}
	return MetaEntrySize + uint64(compLen)
}
