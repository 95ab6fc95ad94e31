package envelope_test

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"folio/internal/envelope"
)

// capturedEnvelope was produced outside Go with openssl and an HMAC over the
// base64 iv/value pair.
const capturedEnvelope = "eyJpdiI6IkFBRUNBdKx7pQ2mZ9vR4tL8w1FGQmdjSUNRb0xEQTBPRHc9PSIsInZhbHVlIjoiOFA0d3VHUE9tRXdnejFGYkdONmtYanhDK2dYRjBzbUowQ2tYbml0bUdIc0ZmOEhqaWVMM3JWekZjWDJXbkNPeUkrTS9ycTRSbkx3NHU5Q2Z2YjNJL0ZmakJ5S3hXb2VUVHpKaHo2UXlNTlNDc3FVbUxkRFFQWG1KK2dDL2wzRHd3Zlp1Q0tteVRhTUsweEhvalV6aGg1cEhxZUlRa3I1eFBDUUhDNmNRZ2FRPSIsIm1hYyI6ImJmMjUwY2ExYTlkNGQxYWQ4MzcyZDk1MDM4MjkzMWZlMmEzZTQxNThiZGVkZjQ2NmM3NWY3OGUyYmU0YzZkNTUifQ=="

const capturedPlaintext = "Chapter 12: The Lantern Road\n\nChapter 12: The Lantern Road\n\nMira crossed the bridge at dusk.\nThe lanterns were already lit."

func TestDecryptCapturedFixture(t *testing.T) {
	for _, policy := range []envelope.MACPolicy{envelope.MACSkip, envelope.MACVerify} {
		got, err := envelope.NewDecryptor(policy).Decrypt(capturedEnvelope)
		if err != nil {
			t.Fatalf("policy %s: Decrypt returned error: %v", policy, err)
		}
		if got != capturedPlaintext {
			t.Fatalf("policy %s: unexpected plaintext %q", policy, got)
		}
	}
}

func TestCapturedFixtureMAC(t *testing.T) {
	key, env, err := envelope.Open(capturedEnvelope)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if string(key) != "Kx7pQ2mZ9vR4tL8w" {
		t.Fatalf("unexpected key %q", key)
	}
	if got := env.ExpectedMAC(key); got != "bf250ca1a9d4d1ad8372d950382931fe2a3e4158bdedf466c75f78e2be4c6d55" {
		t.Fatalf("unexpected mac %s", got)
	}
}

func TestSealRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := []byte("fedcba9876543210")
	plaintext := "  Első fejezet\n\nA híd túloldalán várt.  "

	sealed, err := envelope.Seal(plaintext, key, iv)
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}
	if sealed[envelope.KeyOffset:envelope.KeyOffset+envelope.KeySize] != string(key) {
		t.Fatalf("expected key embedded at offset %d", envelope.KeyOffset)
	}

	got, err := envelope.NewDecryptor(envelope.MACVerify).Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt returned error: %v", err)
	}
	if got != strings.TrimSpace(plaintext) {
		t.Fatalf("unexpected plaintext %q", got)
	}
}

func TestMACPolicy(t *testing.T) {
	key := []byte("Kx7pQ2mZ9vR4tL8w")
	tampered := reseal(t, capturedEnvelope, func(env *envelope.Envelope) {
		env.MAC = strings.Repeat("0", 64)
	}, key)

	if _, err := envelope.NewDecryptor(envelope.MACSkip).Decrypt(tampered); err != nil {
		t.Fatalf("expected skip policy to ignore mac, got %v", err)
	}
	_, err := envelope.NewDecryptor(envelope.MACVerify).Decrypt(tampered)
	if !errors.Is(err, envelope.ErrDecrypt) {
		t.Fatalf("expected ErrDecrypt for mac mismatch, got %v", err)
	}
	var decErr *envelope.DecryptError
	if !errors.As(err, &decErr) || decErr.Reason != "mac mismatch" {
		t.Fatalf("expected mac mismatch reason, got %v", err)
	}
}

func TestDecryptFailures(t *testing.T) {
	fixtureKey := []byte("Kx7pQ2mZ9vR4tL8w")
	tests := []struct {
		name  string
		input string
	}{
		{name: "too short", input: "eyJpdiI6"},
		{name: "bad base64", input: capturedEnvelope[:40] + "!!" + capturedEnvelope[42:]},
		{name: "not json", input: insertKey(base64.StdEncoding.EncodeToString([]byte("this is not a json envelope")), fixtureKey)},
		{name: "missing value", input: insertKey(base64.StdEncoding.EncodeToString([]byte(`{"iv":"AAECAwQFBgcICQoLDA0ODw==","mac":""}`)), fixtureKey)},
		{name: "short iv", input: reseal(t, capturedEnvelope, func(env *envelope.Envelope) {
			env.IV = base64.StdEncoding.EncodeToString([]byte("short"))
		}, fixtureKey)},
		{name: "ciphertext not block aligned", input: reseal(t, capturedEnvelope, func(env *envelope.Envelope) {
			env.Value = base64.StdEncoding.EncodeToString([]byte("seventeen bytes!!"))
		}, fixtureKey)},
		{name: "wrong key breaks padding", input: swapKey(capturedEnvelope, []byte("AAAAAAAAAAAAAAAA"))},
	}

	decryptor := envelope.NewDecryptor(envelope.MACSkip)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decryptor.Decrypt(tt.input)
			if err == nil {
				t.Fatalf("expected error, got plaintext %q", got)
			}
			if !errors.Is(err, envelope.ErrDecrypt) {
				t.Fatalf("expected ErrDecrypt, got %v", err)
			}
			if got != "" {
				t.Fatalf("expected no partial plaintext, got %q", got)
			}
		})
	}
}

func TestPolicyFromConfig(t *testing.T) {
	if envelope.PolicyFromConfig(false) != envelope.MACSkip {
		t.Fatal("expected skip policy when verification disabled")
	}
	if envelope.PolicyFromConfig(true) != envelope.MACVerify {
		t.Fatal("expected verify policy when verification enabled")
	}
}

func reseal(t *testing.T, source string, mutate func(*envelope.Envelope), key []byte) string {
	t.Helper()
	_, env, err := envelope.Open(source)
	if err != nil {
		t.Fatalf("open source envelope: %v", err)
	}
	mutate(&env)
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return insertKey(base64.StdEncoding.EncodeToString(raw), key)
}

func insertKey(encoded string, key []byte) string {
	return encoded[:envelope.KeyOffset] + string(key) + encoded[envelope.KeyOffset:]
}

func swapKey(sealed string, key []byte) string {
	return sealed[:envelope.KeyOffset] + string(key) + sealed[envelope.KeyOffset+envelope.KeySize:]
}
