package store

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

func init() {
	RegisterType("StringKey", func() interface{} { return &StringKey{} })
	RegisterType("GuidKey", func() interface{} { return &GuidKey{} })
	RegisterType("StringArrayValue", func() interface{} { return &StringArrayValue{} })
	RegisterType("BytesValue", func() interface{} { return &BytesValue{} })
}

// StringKey orders its payload lexicographically. CaseInsensitive is a
// per-instance query flag (spec §4.7: "per-query, not persisted") that
// affects Compare/PrefixCompare but is never written to disk.
type StringKey struct {
	S               string
	CaseInsensitive bool
}

func NewStringKey(s string) *StringKey {
	return &StringKey{S: s}
}

func (k *StringKey) compareValue(a, b string) int {
	if k.CaseInsensitive {
		a, b = strings.ToLower(a), strings.ToLower(b)
	}
	return strings.Compare(a, b)
}

func (k *StringKey) Compare(other Key) int {
	o := other.(*StringKey)
	return k.compareValue(k.S, o.S)
}

// PrefixCompare returns 0 iff other begins with k's bytes.
func (k *StringKey) PrefixCompare(other Key) int {
	o := other.(*StringKey)
	prefix, full := k.S, o.S
	if k.CaseInsensitive {
		prefix, full = strings.ToLower(prefix), strings.ToLower(full)
	}
	if len(full) < len(prefix) {
		return strings.Compare(prefix, full)
	}
	return strings.Compare(prefix, full[:len(prefix)])
}

func (k *StringKey) Type() string    { return "StringKey" }
func (k *StringKey) Version() uint16 { return 1 }
func (k *StringKey) Size() int       { return len(k.S) }

func (k *StringKey) Write(buf []byte) error {
	if len(buf) < len(k.S) {
		return fmt.Errorf("store: StringKey.Write: buffer too small")
	}
	copy(buf, k.S)
	return nil
}

func (k *StringKey) Read(buf []byte) error {
	k.S = string(buf)
	return nil
}

// GuidKey is a 16-byte identifier ordered by its canonical hex
// encoding (spec §4.7).
type GuidKey struct {
	ID uuid.UUID
	// PrefixHexLen bounds how many leading hex characters
	// PrefixCompare considers; 0 means compare the full 32 characters.
	PrefixHexLen int
}

func NewGuidKey(id uuid.UUID) *GuidKey {
	return &GuidKey{ID: id}
}

func (k *GuidKey) Compare(other Key) int {
	o := other.(*GuidKey)
	return bytes.Compare(k.ID[:], o.ID[:])
}

func (k *GuidKey) PrefixCompare(other Key) int {
	o := other.(*GuidKey)
	n := k.PrefixHexLen
	if n <= 0 || n > 32 {
		n = 32
	}
	a := k.ID.String()
	a = strings.ReplaceAll(a, "-", "")
	b := o.ID.String()
	b = strings.ReplaceAll(b, "-", "")
	if n > len(a) {
		n = len(a)
	}
	if len(b) < n {
		return strings.Compare(a[:n], b)
	}
	return strings.Compare(a[:n], b[:n])
}

func (k *GuidKey) Type() string    { return "GuidKey" }
func (k *GuidKey) Version() uint16 { return 1 }
func (k *GuidKey) Size() int       { return 16 }

func (k *GuidKey) Write(buf []byte) error {
	if len(buf) < 16 {
		return fmt.Errorf("store: GuidKey.Write: buffer too small")
	}
	copy(buf, k.ID[:])
	return nil
}

func (k *GuidKey) Read(buf []byte) error {
	if len(buf) < 16 {
		return fmt.Errorf("store: GuidKey.Read: buffer too small")
	}
	copy(k.ID[:], buf[:16])
	return nil
}

// StringArrayValue is an ordered, set-semantic list of strings (spec
// §4.7), stored opaquely by BTree2 as a length-prefixed run of
// sized strings.
type StringArrayValue struct {
	Items []string
}

func NewStringArrayValue() *StringArrayValue {
	return &StringArrayValue{}
}

// Add inserts s if not already present, keeping Items sorted.
func (v *StringArrayValue) Add(s string) bool {
	i, found := v.search(s)
	if found {
		return false
	}
	v.Items = append(v.Items, "")
	copy(v.Items[i+1:], v.Items[i:])
	v.Items[i] = s
	return true
}

// Delete removes s if present.
func (v *StringArrayValue) Delete(s string) bool {
	i, found := v.search(s)
	if !found {
		return false
	}
	v.Items = append(v.Items[:i], v.Items[i+1:]...)
	return true
}

func (v *StringArrayValue) Contains(s string) bool {
	_, found := v.search(s)
	return found
}

func (v *StringArrayValue) search(s string) (int, bool) {
	lo, hi := 0, len(v.Items)
	for lo < hi {
		mid := (lo + hi) / 2
		if v.Items[mid] < s {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, lo < len(v.Items) && v.Items[lo] == s
}

func (v *StringArrayValue) Type() string    { return "StringArrayValue" }
func (v *StringArrayValue) Version() uint16 { return 1 }

func (v *StringArrayValue) Size() int {
	n := varintSize(uint64(len(v.Items)))
	for _, s := range v.Items {
		n += varintSize(uint64(len(s))) + len(s)
	}
	return n
}

func (v *StringArrayValue) Write(buf []byte) error {
	out := appendUvarint(nil, uint64(len(v.Items)))
	for _, s := range v.Items {
		out = appendSizedString(out, s)
	}
	if len(buf) < len(out) {
		return fmt.Errorf("store: StringArrayValue.Write: buffer too small")
	}
	copy(buf, out)
	return nil
}

func (v *StringArrayValue) Read(buf []byte) error {
	count, rest, err := readUvarint(buf)
	if err != nil {
		return err
	}
	items := make([]string, 0, count)
	for i := uint64(0); i < count; i++ {
		var s string
		s, rest, err = readSizedString(rest)
		if err != nil {
			return err
		}
		items = append(items, s)
	}
	v.Items = items
	return nil
}

// BytesValue is an opaque byte payload, the Value type arborctl and the
// benchmark harness use to store caller-supplied blobs without
// interpreting them.
type BytesValue struct {
	Data []byte
}

func NewBytesValue(b []byte) *BytesValue { return &BytesValue{Data: b} }

func (v *BytesValue) Type() string    { return "BytesValue" }
func (v *BytesValue) Version() uint16 { return 1 }
func (v *BytesValue) Size() int       { return len(v.Data) }

func (v *BytesValue) Write(buf []byte) error {
	if len(buf) < len(v.Data) {
		return fmt.Errorf("store: BytesValue.Write: buffer too small")
	}
	copy(buf, v.Data)
	return nil
}

func (v *BytesValue) Read(buf []byte) error {
	v.Data = append([]byte(nil), buf...)
	return nil
}
