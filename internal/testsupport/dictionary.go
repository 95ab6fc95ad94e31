package testsupport

import (
	"strings"
	"testing"

	"folio/internal/compress"
)

// DictionaryText is raw dictionary content resembling chapter prose.
var DictionaryText = []byte(strings.Repeat("The lanterns were already lit. Mira crossed the bridge at dusk. ", 24))

// TestDictionary returns a raw-content dictionary.
func TestDictionary() compress.Dictionary {
	return compress.NewDictionary(0, DictionaryText)
}

// MustCodec builds a codec over TestDictionary and closes it on cleanup.
func MustCodec(t testing.TB) *compress.Codec {
	t.Helper()

	codec, err := compress.NewCodec(TestDictionary(), 3)
	if err != nil {
		t.Fatalf("compress.NewCodec: %v", err)
	}
	t.Cleanup(codec.Close)
	return codec
}
