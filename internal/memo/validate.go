package memo

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMemoInvalid is the base error for structural memo validation
// failures: bad key charset or dirty signable fields in strict mode.
var ErrMemoInvalid = errors.New("memo failed validation")

// keyRE is the allowed memo key charset: lowercase letters and underscores.
var keyRE = regexp.MustCompile(`^[a-z_]+$`)

// signableFields are string values a user may sign via their node CLI. A
// stray newline or space added while copy-pasting changes the signature,
// so leading/trailing whitespace is either stripped (lax) or rejected
// (strict).
var signableFields = []string{"title", "content", "sig"}

const signableCutset = " \t\n\r\x0b\x0c"

// ValidateMemo checks the structure of a decoded memo mapping and returns
// a cleaned copy.
//
// Rules:
//   - every key must match ^[a-z_]+$;
//   - signable string fields must not carry leading/trailing whitespace.
//
// With strict=false, dirty signable fields are auto-trimmed (the encoding
// path, where the value has not been signed yet). With strict=true a dirty
// field is an error (the settlement path, where trimming would invalidate
// the signature).
func ValidateMemo(m map[string]any, strict bool) (map[string]any, error) {
	clean := make(map[string]any, len(m))
	for k, v := range m {
		if !keyRE.MatchString(k) {
			return nil, fmt.Errorf("%w: key %q may only contain letters and underscores", ErrMemoInvalid, k)
		}
		clean[k] = v
	}

	for _, key := range signableFields {
		v, ok := clean[key]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: field %q must be a string", ErrMemoInvalid, key)
		}
		trimmed := strings.Trim(s, signableCutset)
		if trimmed != s {
			if strict {
				return nil, fmt.Errorf("%w: field %q has leading or trailing whitespace", ErrMemoInvalid, key)
			}
			clean[key] = trimmed
		}
	}

	return clean, nil
}
