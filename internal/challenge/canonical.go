// Package challenge is the Challenge Generator & Verifier: deterministic
// derivation of the bytes a wallet must sign to authorize an intent, and
// the check-and-set verification that consumes a signed response exactly
// once.
package challenge

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// CanonicalJSON serializes v (expected to be a JSON-compatible map or
// struct) with object keys sorted and no insignificant whitespace, then
// normalizes the result to Unicode NFC. This resolves the spec's open
// question on canonicalization by choosing NFC explicitly.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to decode value for canonicalization: %w", err)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, generic); err != nil {
		return nil, err
	}

	if !utf8.Valid(buf.Bytes()) {
		return nil, fmt.Errorf("canonical payload is not valid UTF-8")
	}
	return norm.NFC.Bytes(buf.Bytes()), nil
}

// PayloadRef computes the SHA-256 hex digest of a canonical payload.
func PayloadRef(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(keyJSON)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	default:
		leaf, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(leaf)
		return nil
	}
}
