package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// AuthorID is a normalized author identifier. The API sends either a bare
// integer or a string of lowercase letters followed by digits ("c1000024").
type AuthorID struct {
	Prefix string
	Num    uint64
}

// AuthorIDParseError reports an author identifier of unrecognized shape.
type AuthorIDParseError struct {
	Raw string
}

func (e *AuthorIDParseError) Error() string {
	return fmt.Sprintf("unrecognized author id %s", e.Raw)
}

// ParseAuthorID parses the string form of an author identifier.
func ParseAuthorID(s string) (AuthorID, error) {
	split := 0
	for split < len(s) && s[split] >= 'a' && s[split] <= 'z' {
		split++
	}
	digits := s[split:]
	if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
		return AuthorID{}, &AuthorIDParseError{Raw: strconv.Quote(s)}
	}
	num, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return AuthorID{}, &AuthorIDParseError{Raw: strconv.Quote(s)}
	}
	return AuthorID{Prefix: s[:split], Num: num}, nil
}

// String renders the identifier in its canonical string form.
func (a AuthorID) String() string {
	return a.Prefix + strconv.FormatUint(a.Num, 10)
}

// IsZero reports whether the identifier is unset.
func (a AuthorID) IsZero() bool {
	return a.Prefix == "" && a.Num == 0
}

// UnmarshalJSON accepts a JSON integer or a prefixed string.
func (a *AuthorID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = AuthorID{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return &AuthorIDParseError{Raw: string(data)}
		}
		parsed, err := ParseAuthorID(s)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	}
	num, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return &AuthorIDParseError{Raw: string(data)}
	}
	*a = AuthorID{Num: num}
	return nil
}

// MarshalJSON writes integers back as numbers and prefixed IDs as strings.
func (a AuthorID) MarshalJSON() ([]byte, error) {
	if a.Prefix == "" {
		return []byte(strconv.FormatUint(a.Num, 10)), nil
	}
	return json.Marshal(a.String())
}
