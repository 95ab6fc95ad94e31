package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	// KeyOffset is the byte offset of the embedded key inside an envelope string.
	KeyOffset = 17
	// KeySize is the AES-128 key length, in characters and bytes.
	KeySize = 16

	ivSize  = aes.BlockSize
	macSize = sha256.Size * 2
)

// MACPolicy selects whether the envelope HMAC is checked.
type MACPolicy int

const (
	// MACSkip decrypts without checking the tag.
	MACSkip MACPolicy = iota
	// MACVerify rejects envelopes whose tag does not match.
	MACVerify
)

func (p MACPolicy) String() string {
	switch p {
	case MACVerify:
		return "verify"
	default:
		return "skip"
	}
}

// PolicyFromConfig maps the envelope.verify_mac flag to a policy.
func PolicyFromConfig(verify bool) MACPolicy {
	if verify {
		return MACVerify
	}
	return MACSkip
}

// Envelope is the JSON document hidden inside an envelope string.
type Envelope struct {
	IV    string `json:"iv"`
	Value string `json:"value"`
	MAC   string `json:"mac"`
}

// ExpectedMAC returns hex(HMAC-SHA256(key, iv ++ value)) over the base64 fields.
func (e Envelope) ExpectedMAC(key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(e.IV))
	mac.Write([]byte(e.Value))
	return hex.EncodeToString(mac.Sum(nil))
}

// Decryptor opens envelope strings. The zero value skips MAC verification.
type Decryptor struct {
	policy MACPolicy
}

// NewDecryptor constructs a Decryptor with the supplied MAC policy.
func NewDecryptor(policy MACPolicy) *Decryptor {
	return &Decryptor{policy: policy}
}

// Policy reports the configured MAC policy.
func (d *Decryptor) Policy() MACPolicy {
	if d == nil {
		return MACSkip
	}
	return d.policy
}

// Decrypt returns the trimmed plaintext carried by s. Any failure wraps
// ErrDecrypt and no partial text is returned.
func (d *Decryptor) Decrypt(s string) (string, error) {
	key, env, err := Open(s)
	if err != nil {
		return "", err
	}

	if d.Policy() == MACVerify {
		if len(env.MAC) != macSize {
			return "", failf(nil, "mac has %d characters, want %d", len(env.MAC), macSize)
		}
		want := env.ExpectedMAC(key)
		if !hmac.Equal([]byte(strings.ToLower(env.MAC)), []byte(want)) {
			return "", failf(nil, "mac mismatch")
		}
	}

	iv, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return "", failf(err, "decode iv")
	}
	if len(iv) != ivSize {
		return "", failf(nil, "iv is %d bytes, want %d", len(iv), ivSize)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Value)
	if err != nil {
		return "", failf(err, "decode value")
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", failf(nil, "ciphertext length %d is not a positive multiple of %d", len(ciphertext), aes.BlockSize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", failf(err, "init cipher")
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	plain, err = unpad(plain)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plain) {
		return "", failf(nil, "plaintext is not valid UTF-8")
	}
	return strings.TrimSpace(string(plain)), nil
}

// Open extracts the key and decodes the envelope JSON without decrypting.
func Open(s string) ([]byte, Envelope, error) {
	key, rest, err := extractKey(s)
	if err != nil {
		return nil, Envelope{}, err
	}
	raw, err := base64.StdEncoding.DecodeString(rest)
	if err != nil {
		return nil, Envelope{}, failf(err, "decode envelope base64")
	}
	if !utf8.Valid(raw) {
		return nil, Envelope{}, failf(nil, "envelope json is not valid UTF-8")
	}

	var env Envelope
	decoder := json.NewDecoder(bytes.NewReader(raw))
	if err := decoder.Decode(&env); err != nil {
		return nil, Envelope{}, failf(err, "decode envelope json")
	}
	if env.IV == "" || env.Value == "" {
		return nil, Envelope{}, failf(nil, "envelope json missing iv or value")
	}
	return key, env, nil
}

// extractKey cuts the 16 key characters out of s. Each character's code point
// is one key byte, so characters above U+00FF are rejected.
func extractKey(s string) ([]byte, string, error) {
	if len(s) < KeyOffset+KeySize {
		return nil, "", failf(nil, "envelope too short (%d bytes)", len(s))
	}
	for i := 0; i < KeyOffset; i++ {
		if s[i] >= utf8.RuneSelf {
			return nil, "", failf(nil, "non-ascii byte before key at offset %d", i)
		}
	}

	key := make([]byte, 0, KeySize)
	end := KeyOffset
	for len(key) < KeySize {
		if end >= len(s) {
			return nil, "", failf(nil, "envelope truncated inside key")
		}
		r, size := utf8.DecodeRuneInString(s[end:])
		if r == utf8.RuneError && size <= 1 {
			return nil, "", failf(nil, "invalid UTF-8 inside key at offset %d", end)
		}
		if r > 0xFF {
			return nil, "", failf(nil, "key character %U out of byte range", r)
		}
		key = append(key, byte(r))
		end += size
	}
	return key, s[:KeyOffset] + s[end:], nil
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, failf(nil, "empty plaintext")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, failf(nil, "invalid padding length %d", n)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, failf(nil, "invalid padding bytes")
		}
	}
	return b[:len(b)-n], nil
}

// IsDecryptError reports whether err carries a DecryptError.
func IsDecryptError(err error) bool {
	var target *DecryptError
	return errors.As(err, &target)
}
