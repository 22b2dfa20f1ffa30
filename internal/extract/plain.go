package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// extractPlain decodes text files. A byte order mark selects UTF-16 and is dropped;
// without one the content is read as UTF-8 with invalid sequences replaced by U+FFFD.
func extractPlain(content []byte) (string, error) {
	decoded, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), content)
	if err != nil {
		return "", fmt.Errorf("decode text: %w", err)
	}
	if !utf8.Valid(decoded) {
		return strings.ToValidUTF8(string(decoded), "�"), nil
	}
	return string(decoded), nil
}
