package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"strings"
)

// zstdDictMagic prefixes dictionaries produced by `zstd --train`.
const zstdDictMagic uint32 = 0xEC30A437

// ErrEmptyDictionary is returned when a dictionary file has no content.
var ErrEmptyDictionary = errors.New("compression dictionary is empty")

// Dictionary is an immutable compression dictionary.
type Dictionary struct {
	id      uint32
	content []byte
	zstd    bool
	source  string
}

// NewDictionary builds a raw-content dictionary. A zero id is derived from
// the content so every dictionary generation has a stable identifier.
func NewDictionary(id uint32, content []byte) Dictionary {
	buf := append([]byte(nil), content...)
	if isZstdDictionary(buf) {
		return Dictionary{id: binary.LittleEndian.Uint32(buf[4:8]), content: buf, zstd: true}
	}
	if id == 0 && len(buf) > 0 {
		id = crc32.ChecksumIEEE(buf) | 1
	}
	return Dictionary{id: id, content: buf}
}

// LoadDictionary reads a dictionary from disk. Trained zstd dictionaries are
// detected by their magic number; anything else is used as raw content.
func LoadDictionary(path string) (Dictionary, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Dictionary{}, errors.New("dictionary path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Dictionary{}, fmt.Errorf("read dictionary: %w", err)
	}
	if len(data) == 0 {
		return Dictionary{}, fmt.Errorf("%s: %w", path, ErrEmptyDictionary)
	}
	dict := NewDictionary(0, data)
	dict.source = path
	return dict, nil
}

// ID returns the dictionary identifier written into zstd frames.
func (d Dictionary) ID() uint32 { return d.id }

// Len returns the dictionary size in bytes.
func (d Dictionary) Len() int { return len(d.content) }

// Trained reports whether the content is a zstd-format dictionary.
func (d Dictionary) Trained() bool { return d.zstd }

// Source returns the file the dictionary was loaded from, if any.
func (d Dictionary) Source() string { return d.source }

// Empty reports whether the dictionary carries no content.
func (d Dictionary) Empty() bool { return len(d.content) == 0 }

func isZstdDictionary(b []byte) bool {
	return len(b) >= 8 && binary.LittleEndian.Uint32(b[:4]) == zstdDictMagic
}
