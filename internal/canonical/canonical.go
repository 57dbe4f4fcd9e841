// Package canonical produces deterministic JSON for ledger fingerprints and
// event envelopes.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// MarshalCanonical encodes v with object keys sorted and array order kept.
// Values other than []string and decoded JSON trees are first passed through
// encoding/json.
func MarshalCanonical(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// HashHex returns the hex-encoded SHA-256 of b.
func HashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func encode(buf *bytes.Buffer, v interface{}) error {
	switch vv := v.(type) {
	case nil, bool, string, json.Number:
		return writeScalar(buf, vv)
	case []string:
		buf.WriteByte('[')
		for i, s := range vv {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeScalar(buf, s); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range vv {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeScalar(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encode(buf, vv[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		tree, err := toTree(v)
		if err != nil {
			return err
		}
		return encode(buf, tree)
	}
	return nil
}

func writeScalar(buf *bytes.Buffer, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("canonical scalar: %w", err)
	}
	buf.Write(b)
	return nil
}

// toTree round-trips v through encoding/json. Numbers stay json.Number so
// their text is preserved.
func toTree(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var tree interface{}
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("canonical decode: %w", err)
	}
	return tree, nil
}
