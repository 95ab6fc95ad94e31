// Package envelope recovers chapter plaintext from the remote service's
// encryption envelope.
//
// An envelope string embeds a 16-character AES-128 key at byte offset 17 of
// an otherwise standard base64 document. Once the key is cut out, the
// remainder decodes to a JSON object carrying the IV, the CBC ciphertext, and
// an HMAC-SHA256 tag. Decryptor reverses that scheme and classifies every
// failure as ErrDecrypt; Seal builds envelopes for fixtures and fake servers.
package envelope
