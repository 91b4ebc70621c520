package filter

import (
	"strings"

	"github.com/pkg/errors"
)

// tokenize splits a filter expression into raw tokens. Tokens are separated by commas and/or
// whitespace. Single or double quotes group characters that would otherwise act as separators,
// allowing patterns that embed spaces or commas. Quotes may appear mid-token ("sub dir"/x).
func tokenize(expr string) ([]string, error) {
	var tokens []string
	var current strings.Builder
	var quote rune
	inToken := false

	flush := func() {
		if inToken {
			tokens = append(tokens, current.String())
			current.Reset()
			inToken = false
		}
	}

	for _, r := range expr {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inToken = true
		case r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r':
			flush()
		default:
			current.WriteRune(r)
			inToken = true
		}
	}

	if quote != 0 {
		return nil, errors.Errorf("unterminated quote in filter expression %q", expr)
	}

	flush()
	return tokens, nil
}
