package files

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DecodeContent decodes base64 file content as returned by the documents
// API. A data: URL prefix and embedded whitespace are dropped, and missing
// '=' padding is restored before decoding.
func DecodeContent(content string) ([]byte, error) {
	s := content
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
	s = Pad(s)

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.URLEncoding.DecodeString(s)
	}
	if err != nil {
		return nil, fmt.Errorf("decode file content: %w", err)
	}
	return data, nil
}

// Pad appends '=' until len(s) is a multiple of four.
func Pad(s string) string {
	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}
	return s
}
