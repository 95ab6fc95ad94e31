package compress

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/klauspost/compress/zstd"
)

// ErrRawLength reports a decompressed size that disagrees with the stored raw length.
var ErrRawLength = errors.New("decompressed length mismatch")

// Codec compresses chapter bodies with a fixed dictionary and level.
type Codec struct {
	dict        Dictionary
	level       int
	concurrency int
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
}

// Option customizes a Codec.
type Option func(*Codec)

// WithConcurrency sets how many Compress calls may run at once. Callers beyond
// that wait for a free encoder. Values below 1 keep the default of GOMAXPROCS.
func WithConcurrency(n int) Option {
	return func(c *Codec) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// NewCodec constructs a codec bound to dict. level is a zstd level (1-22).
func NewCodec(dict Dictionary, level int, opts ...Option) (*Codec, error) {
	if level < 1 || level > 22 {
		return nil, fmt.Errorf("compression level %d out of range 1-22", level)
	}
	c := &Codec{dict: dict, level: level, concurrency: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(c)
	}

	encOpts := []zstd.EOption{
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderConcurrency(c.concurrency),
		zstd.WithZeroFrames(true),
	}
	decOpts := []zstd.DOption{
		zstd.WithDecoderConcurrency(0),
	}
	switch {
	case dict.Empty():
	case dict.Trained():
		encOpts = append(encOpts, zstd.WithEncoderDict(dict.content))
		decOpts = append(decOpts, zstd.WithDecoderDicts(dict.content))
	default:
		encOpts = append(encOpts, zstd.WithEncoderDictRaw(dict.id, dict.content))
		decOpts = append(decOpts, zstd.WithDecoderDictRaw(dict.id, dict.content))
	}

	encoder, err := zstd.NewWriter(nil, encOpts...)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil, decOpts...)
	if err != nil {
		_ = encoder.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	c.encoder = encoder
	c.decoder = decoder
	return c, nil
}

// Dictionary returns the codec's dictionary.
func (c *Codec) Dictionary() Dictionary { return c.dict }

// Level returns the configured zstd level.
func (c *Codec) Level() int { return c.level }

// Concurrency returns the number of encoders available to parallel callers.
func (c *Codec) Concurrency() int { return c.concurrency }

// Compress returns the compressed body and its uncompressed length.
func (c *Codec) Compress(body []byte) ([]byte, uint32, error) {
	if uint64(len(body)) > math.MaxUint32 {
		return nil, 0, fmt.Errorf("body of %d bytes exceeds bundle limit", len(body))
	}
	out := c.encoder.EncodeAll(body, make([]byte, 0, len(body)/2+64))
	return out, uint32(len(body)), nil
}

// Decompress restores a body whose uncompressed length is rawLen.
func (c *Codec) Decompress(compressed []byte, rawLen uint32) ([]byte, error) {
	out, err := c.decoder.DecodeAll(compressed, make([]byte, 0, rawLen))
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	if uint32(len(out)) != rawLen {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrRawLength, len(out), rawLen)
	}
	return out, nil
}

// Close releases encoder and decoder resources.
func (c *Codec) Close() {
	if c == nil {
		return
	}
	if c.encoder != nil {
		_ = c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
}

// Ratio reports raw/compressed; zero when nothing is stored.
func Ratio(compressed, raw uint64) float64 {
	if compressed == 0 {
		return 0
	}
	return float64(raw) / float64(compressed)
}
