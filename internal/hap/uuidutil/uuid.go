// Package uuidutil handles HAP service/characteristic type UUIDs: the
// short (2-byte) form used for well-known HAP types and the full 16-byte
// form used for vendor-defined types, normalized the way the reference
// BLE tooling normalizes GATT UUIDs.
package uuidutil

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// baseUUID is the HAP/Bluetooth SIG base UUID. A full UUID that differs
// from this base only in the first 4 bytes has a 2-byte short form.
var baseUUID = uuid.MustParse("00000000-0000-1000-8000-0026BB765291")

// NormalizeUUID lowercases and strips dashes, matching the reference BLE
// library's internal UUID representation.
func NormalizeUUID(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "-", ""))
}

// ShortForm returns the 2-byte little-endian short form of full and true
// if full shares the HAP base UUID; otherwise it returns a zero short form
// and false, and full remains the only form of the UUID.
func ShortForm(full uuid.UUID) (short [2]byte, isShort bool) {
	candidate := full
	candidate[0], candidate[1], candidate[2], candidate[3] = 0, 0, 0, 0
	if candidate != baseUUID {
		return [2]byte{}, false
	}
	v := binary.BigEndian.Uint32(full[0:4])
	binary.LittleEndian.PutUint16(short[:], uint16(v))
	return short, true
}

// ExpandShortForm builds the full 16-byte HAP UUID from a 2-byte short
// form (little-endian, as carried on the wire per the BLE PDU IID-width
// and characteristic-type TLV encodings).
func ExpandShortForm(short [2]byte) uuid.UUID {
	v := binary.LittleEndian.Uint16(short[:])
	full := baseUUID
	binary.BigEndian.PutUint32(full[0:4], uint32(v))
	return full
}

// FullForm returns the canonical dash-formatted string for u.
func FullForm(u uuid.UUID) string {
	return u.String()
}

// Parse parses s (with or without dashes) into a uuid.UUID.
func Parse(s string) (uuid.UUID, error) {
	normalized := NormalizeUUID(s)
	if len(normalized) == 4 {
		// Bare short form, e.g. "0f25".
		b, err := decodeHex2(normalized)
		if err != nil {
			return uuid.UUID{}, fmt.Errorf("uuidutil: parse short form %q: %w", s, err)
		}
		return ExpandShortForm(b), nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("uuidutil: parse %q: %w", s, err)
	}
	return u, nil
}

func decodeHex2(s string) ([2]byte, error) {
	var out [2]byte
	var v uint16
	_, err := fmt.Sscanf(s, "%04x", &v)
	if err != nil {
		return out, err
	}
	binary.LittleEndian.PutUint16(out[:], v)
	return out, nil
}
