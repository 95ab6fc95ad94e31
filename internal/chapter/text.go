package chapter

import (
	"strings"
	"unicode/utf8"
)

// Text is decrypted chapter content split into its parts.
type Text struct {
	Title     string
	Body      string
	WordCount uint32
}

// Split treats the first line of plaintext as the title. Leading blank lines
// and a single line repeating the title are dropped from the body.
func Split(plaintext string) Text {
	plaintext = strings.ReplaceAll(plaintext, "\r\n", "\n")
	plaintext = strings.TrimLeft(plaintext, "\n")

	title, rest, _ := strings.Cut(plaintext, "\n")
	title = strings.TrimSpace(title)

	lines := strings.Split(rest, "\n")
	lines = skipBlank(lines)
	if len(lines) > 0 && title != "" && strings.TrimSpace(lines[0]) == title {
		lines = skipBlank(lines[1:])
	}

	body := strings.TrimRight(strings.Join(lines, "\n"), " \t\n")
	return Text{
		Title:     title,
		Body:      body,
		WordCount: WordCount(body),
	}
}

// WordCount returns the number of whitespace-delimited tokens in body.
func WordCount(body string) uint32 {
	return uint32(len(strings.Fields(body)))
}

// TruncateUTF8 shortens s to at most max bytes without splitting a rune.
func TruncateUTF8(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func skipBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	return lines
}
