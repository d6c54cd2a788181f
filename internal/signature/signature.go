// Package signature computes deterministic identities for outbound calls.
//
// Two calls with the same target and structurally equal parameters hash to
// the same Signature regardless of map key ordering at any nesting depth.
// The caller's context never participates in the hash, so calls differing
// only in their cancellation handle still coalesce.
package signature

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Signature is the coalescing key for a call.
type Signature string

// maxDepth bounds recursion over nested parameters. Self-referential
// map/slice structures would otherwise recurse forever.
const maxDepth = 64

// Hash computes the signature for a call to target with the given parameters.
// params may be nil. Values that cannot be serialized deterministically
// (functions, channels, cycles) return an error and must not reach the
// batch registry.
func Hash(target string, params map[string]any) (Signature, error) {
	h := xxhash.New()
	_, _ = h.WriteString(target)
	_, _ = h.WriteString("\x00")

	if err := writeValue(h, params, 0); err != nil {
		return "", fmt.Errorf("hash params for %q: %w", target, err)
	}

	return Signature(strconv.FormatUint(h.Sum64(), 16)), nil
}

// writeValue writes a canonical byte form of v into the digest.
// Map keys are sorted so key order never changes the hash. Each branch
// carries a distinct type prefix to keep e.g. "1" and 1 from colliding,
// and every caller-controlled byte sequence (strings, map keys, encoded
// fallbacks) is length-prefixed so the encoding stays prefix-free: no
// value can forge the delimiters of a neighboring value.
func writeValue(h *xxhash.Digest, v any, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("parameters nested deeper than %d levels", maxDepth)
	}

	switch val := v.(type) {
	case nil:
		_, _ = h.WriteString("z;")
	case bool:
		_, _ = h.WriteString("b:" + strconv.FormatBool(val) + ";")
	case string:
		writeBytes(h, "s", val)
	case float64:
		_, _ = h.WriteString("n:" + strconv.FormatFloat(val, 'g', -1, 64) + ";")
	case int:
		_, _ = h.WriteString("n:" + strconv.FormatInt(int64(val), 10) + ";")
	case int64:
		_, _ = h.WriteString("n:" + strconv.FormatInt(val, 10) + ";")
	case json.Number:
		_, _ = h.WriteString("n:" + val.String() + ";")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		_, _ = h.WriteString("{")
		for _, k := range keys {
			writeBytes(h, "k", k)
			_, _ = h.WriteString("=")
			if err := writeValue(h, val[k], depth+1); err != nil {
				return err
			}
		}
		_, _ = h.WriteString("}")
	case []any:
		_, _ = h.WriteString("[")
		for _, e := range val {
			if err := writeValue(h, e, depth+1); err != nil {
				return err
			}
		}
		_, _ = h.WriteString("]")
	default:
		// Anything else (structs, typed slices) goes through encoding/json,
		// which sorts map keys itself and rejects funcs, channels and cycles.
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("unhashable value of type %T: %w", val, err)
		}
		writeBytes(h, "j", string(raw))
	}

	return nil
}

// writeBytes writes prefix:<len>:<bytes>; so arbitrary content cannot be
// confused with the encoding's own structure.
func writeBytes(h *xxhash.Digest, prefix, s string) {
	_, _ = h.WriteString(prefix + ":" + strconv.Itoa(len(s)) + ":")
	_, _ = h.WriteString(s)
	_, _ = h.WriteString(";")
}
