package value

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint hashes a canonical encoding of v. Object keys are visited in
// sorted order, so equal trees always produce equal fingerprints regardless of
// map iteration order. Different trees may collide; callers confirm with Equal.
func Fingerprint(v any) uint64 {
	d := xxhash.New()
	writeCanonical(d, v)
	return d.Sum64()
}

func writeCanonical(d *xxhash.Digest, v any) {
	switch t := v.(type) {
	case nil:
		_, _ = d.WriteString("n")
	case bool:
		if t {
			_, _ = d.WriteString("t")
		} else {
			_, _ = d.WriteString("f")
		}
	case string:
		_, _ = d.WriteString("s")
		_, _ = d.WriteString(strconv.Itoa(len(t)))
		_, _ = d.WriteString(":")
		_, _ = d.WriteString(t)
	case json.Number:
		writeNumber(d, t.String())
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			writeNumber(d, strconv.FormatInt(int64(t), 10))
		} else {
			writeNumber(d, strconv.FormatFloat(t, 'g', -1, 64))
		}
	case int:
		writeNumber(d, strconv.Itoa(t))
	case int64:
		writeNumber(d, strconv.FormatInt(t, 10))
	case []any:
		_, _ = d.WriteString("[")
		for _, item := range t {
			writeCanonical(d, item)
			_, _ = d.WriteString(",")
		}
		_, _ = d.WriteString("]")
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		_, _ = d.WriteString("{")
		for _, k := range keys {
			writeCanonical(d, k)
			writeCanonical(d, t[k])
			_, _ = d.WriteString(",")
		}
		_, _ = d.WriteString("}")
	default:
		_, _ = d.WriteString("?")
		_, _ = d.WriteString(fmt.Sprintf("%T:%v", v, v))
	}
}

func writeNumber(d *xxhash.Digest, s string) {
	_, _ = d.WriteString("d")
	_, _ = d.WriteString(s)
	_, _ = d.WriteString(";")
}
