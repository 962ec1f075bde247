// Package pairproto holds the TLV8 type tags, state/method/error/flag
// constants shared by Pair Setup (C5), Pair Verify (C6), and the Pairings
// sub-protocol (C7) — the HAP "kTLVType_*" family.
package pairproto

// TLV item types, shared across all three pairing sub-protocols.
const (
	TypeMethod        byte = 0x00
	TypeIdentifier    byte = 0x01
	TypeSalt          byte = 0x02
	TypePublicKey     byte = 0x03
	TypeProof         byte = 0x04
	TypeEncryptedData byte = 0x05
	TypeState         byte = 0x06
	TypeError         byte = 0x07
	TypeRetryDelay    byte = 0x08
	TypeCertificate   byte = 0x09
	TypeSignature     byte = 0x0A
	TypePermissions   byte = 0x0B
	TypeFragmentData  byte = 0x0C
	TypeFragmentLast  byte = 0x0D
	TypeFlags         byte = 0x0E
	TypeSeparator     byte = 0xFF
)

// ErrorCode is the TLV error code surfaced to the controller on failure.
type ErrorCode byte

const (
	ErrorUnknown        ErrorCode = 0x01
	ErrorAuthentication ErrorCode = 0x02
	ErrorBackoff        ErrorCode = 0x03
	ErrorMaxPeers       ErrorCode = 0x04
	ErrorMaxTries       ErrorCode = 0x05
	ErrorUnavailable    ErrorCode = 0x06
	ErrorBusy           ErrorCode = 0x07
)

// Method is the value of TypeMethod in an M1/Add/Remove/List request.
type Method byte

const (
	MethodPairSetup         Method = 0x00
	MethodPairSetupWithAuth Method = 0x01
	MethodPairVerify        Method = 0x02
	MethodAddPairing        Method = 0x03
	MethodRemovePairing     Method = 0x04
	MethodListPairings      Method = 0x05
)

// Flags, carried in TypeFlags on M1 (spec §4.C5).
const (
	FlagTransient uint32 = 0x10
	FlagSplit     uint32 = 0x01
)

// HasFlag reports whether bit is set in flags.
func HasFlag(flags uint32, bit uint32) bool {
	return flags&bit != 0
}

// EncodeFlags serializes a 32-bit flags value as little-endian bytes,
// trimmed to the shortest form that round-trips (HAP encodes flags TLVs
// at variable length: 0, 1, or 4 bytes).
func EncodeFlags(flags uint32) []byte {
	if flags == 0 {
		return nil
	}
	if flags <= 0xFF {
		return []byte{byte(flags)}
	}
	return []byte{byte(flags), byte(flags >> 8), byte(flags >> 16), byte(flags >> 24)}
}

// DecodeFlags parses a 0/1/4-byte little-endian flags TLV value.
func DecodeFlags(v []byte) uint32 {
	var out uint32
	for i, b := range v {
		out |= uint32(b) << (8 * i)
	}
	return out
}
