package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Seal produces an envelope string for plaintext that Decrypt opens again.
// key must be 16 bytes and iv must be one AES block.
func Seal(plaintext string, key, iv []byte) (string, error) {
	if len(key) != KeySize {
		return "", fmt.Errorf("seal: key is %d bytes, want %d", len(key), KeySize)
	}
	if len(iv) != aes.BlockSize {
		return "", fmt.Errorf("seal: iv is %d bytes, want %d", len(iv), aes.BlockSize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("seal: init cipher: %w", err)
	}
	padded := pad([]byte(plaintext))
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	env := Envelope{
		IV:    base64.StdEncoding.EncodeToString(iv),
		Value: base64.StdEncoding.EncodeToString(ciphertext),
	}
	env.MAC = env.ExpectedMAC(key)

	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("seal: encode json: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)

	var b strings.Builder
	b.Grow(len(encoded) + 2*KeySize)
	b.WriteString(encoded[:KeyOffset])
	for _, c := range key {
		b.WriteRune(rune(c))
	}
	b.WriteString(encoded[KeyOffset:])
	return b.String(), nil
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(append([]byte(nil), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}
