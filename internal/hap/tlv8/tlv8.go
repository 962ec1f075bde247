// Package tlv8 implements the item-oriented TLV8 codec (spec §3, §4.C2)
// used by every pairing sub-protocol. Items are {type, length, value}
// triples; a value longer than 255 bytes is split into consecutive
// same-type fragments whose lengths are all 255 except the last.
//
// Per the Design Notes, this implementation does not borrow and mutate
// the caller's buffer in place (the source's zero-allocation aliasing
// trick); Reader parses once, at construction, into an owned slice of
// reassembled Items. The external contract — each logical item delivered
// exactly once, any order — is preserved.
package tlv8

import (
	"fmt"

	"github.com/hkadk/hapcore/internal/hap/herr"
)

const maxFragmentLen = 255

// Item is one fully reassembled TLV8 value (fragments already merged).
type Item struct {
	Type  byte
	Value []byte
}

// Reader enumerates the logical items in a TLV8 byte stream. Requesting an
// item by type removes it from further enumeration, matching the source's
// "delivered exactly once" contract.
type Reader struct {
	items []Item
	taken map[int]bool
}

// NewReader parses buf into logical items, merging consecutive same-type
// fragments (a fragment's declared length of exactly 255 means "another
// fragment of the same type follows").
func NewReader(buf []byte) (*Reader, error) {
	var items []Item
	lastFragmentLen := -1 // length of the most recently appended raw fragment, -1 if none open
	i := 0
	for i < len(buf) {
		if i+2 > len(buf) {
			return nil, herr.New("tlv8.NewReader", herr.KindInvalidData, "truncated item header")
		}
		typ := buf[i]
		length := int(buf[i+1])
		i += 2
		if i+length > len(buf) {
			return nil, herr.New("tlv8.NewReader", herr.KindInvalidData, "item value runs past buffer end")
		}
		value := append([]byte(nil), buf[i:i+length]...)
		i += length

		if n := len(items); n > 0 && items[n-1].Type == typ && lastFragmentLen == maxFragmentLen {
			// Continuation: the preceding raw fragment was exactly 255
			// bytes, so this fragment merges into the same logical item.
			items[n-1].Value = append(items[n-1].Value, value...)
			lastFragmentLen = length
			continue
		}
		items = append(items, Item{Type: typ, Value: value})
		lastFragmentLen = length
	}
	return &Reader{items: items, taken: make(map[int]bool, len(items))}, nil
}

// All returns every item that has not yet been consumed by Get, in
// encounter order.
func (r *Reader) All() []Item {
	out := make([]Item, 0, len(r.items))
	for idx, it := range r.items {
		if !r.taken[idx] {
			out = append(out, it)
		}
	}
	return out
}

// Get returns the first not-yet-consumed item of the given type and
// removes it from further enumeration. ok is false if no such item exists.
func (r *Reader) Get(typ byte) (value []byte, ok bool) {
	for idx, it := range r.items {
		if r.taken[idx] || it.Type != typ {
			continue
		}
		r.taken[idx] = true
		return it.Value, true
	}
	return nil, false
}

// GetByte is a convenience wrapper over Get for single-byte items (flags,
// status codes, method identifiers).
func (r *Reader) GetByte(typ byte) (value byte, ok bool) {
	v, ok := r.Get(typ)
	if !ok || len(v) != 1 {
		return 0, false
	}
	return v[0], true
}

// Writer accumulates items into a caller-provided buffer, splitting values
// over 255 bytes into consecutive same-type fragments.
type Writer struct {
	buf []byte
	n   int
}

// NewWriter wraps buf; Append fails with herr.KindOutOfResources once buf
// is exhausted.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

// Append writes one logical item, fragmenting as needed.
func (w *Writer) Append(typ byte, value []byte) error {
	if len(value) == 0 {
		return w.appendFragment(typ, nil)
	}
	off := 0
	for off < len(value) {
		end := off + maxFragmentLen
		if end > len(value) {
			end = len(value)
		}
		if err := w.appendFragment(typ, value[off:end]); err != nil {
			return err
		}
		off = end
	}
	if len(value)%maxFragmentLen == 0 {
		// A value whose length is an exact multiple of 255 needs a trailing
		// empty fragment, otherwise the last 255-byte fragment would read
		// as "more fragments follow".
		if err := w.appendFragment(typ, nil); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) appendFragment(typ byte, chunk []byte) error {
	need := 2 + len(chunk)
	if w.n+need > len(w.buf) {
		return herr.New("tlv8.Writer.Append", herr.KindOutOfResources, fmt.Sprintf("need %d more bytes, have %d", need, len(w.buf)-w.n))
	}
	w.buf[w.n] = typ
	w.buf[w.n+1] = byte(len(chunk))
	w.n += 2
	copy(w.buf[w.n:], chunk)
	w.n += len(chunk)
	return nil
}

// Bytes returns the portion of the destination buffer written so far.
func (w *Writer) Bytes() []byte {
	return w.buf[:w.n]
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return w.n
}
