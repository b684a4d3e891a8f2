// Package canonical renders run data as deterministic JSON: object keys
// sorted, array order kept, integers kept digit for digit. The IR hash in the
// ir_generated audit event and the archived run documents both use it.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/optiforge/platform/optiforge/internal/models"
)

// IRHash returns the hex sha256 of the canonical IR. Two IRs that differ only
// in how a generator ordered object keys hash the same.
func IRHash(ir models.OptimizationModelIR) (string, error) {
	b, err := document(ir)
	if err != nil {
		return "", fmt.Errorf("canonicalize ir %q: %w", ir.Name, err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Run returns the canonical archive document for a run record.
func Run(rec models.RunRecord) ([]byte, error) {
	b, err := document(rec)
	if err != nil {
		return nil, fmt.Errorf("canonicalize run %s: %w", rec.ID, err)
	}
	return b, nil
}

// document lets the json tags of the models decide field names, then rewrites
// the decoded tree with sorted keys.
func document(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := write(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func write(buf *bytes.Buffer, node any) error {
	switch n := node.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(fmt.Sprint(n))
	case json.Number:
		buf.WriteString(n.String())
	case string:
		writeString(buf, n)
	case []any:
		buf.WriteByte('[')
		for i, elem := range n {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := write(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, k)
			buf.WriteByte(':')
			if err := write(buf, n[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unexpected %T in decoded document", node)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}
