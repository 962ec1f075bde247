// Package pdu implements the HAP-BLE PDU wire format (spec §3, §4.C8): the
// request/response envelope GATT writes and reads carry, layered underneath
// the TLV8 body handled by internal/hap/tlv8.
package pdu

import (
	"encoding/binary"
	"fmt"

	"github.com/hkadk/hapcore/internal/hap/herr"
)

// MaxBodyLength is the largest body a single HAP-BLE PDU may declare.
const MaxBodyLength = 65535

// Opcode is the HAP-BLE PDU operation code (spec §4.C10).
type Opcode byte

const (
	OpcodeServiceSignatureRead        Opcode = 0x01
	OpcodeCharacteristicSignatureRead Opcode = 0x02
	OpcodeCharacteristicWrite         Opcode = 0x03
	OpcodeCharacteristicRead          Opcode = 0x04
	OpcodeCharacteristicTimedWrite    Opcode = 0x05
	OpcodeCharacteristicExecuteWrite  Opcode = 0x06
	OpcodeCharacteristicConfiguration Opcode = 0x07
	OpcodeProtocolConfiguration       Opcode = 0x08
	OpcodeToken                       Opcode = 0x09
	OpcodeTokenUpdate                 Opcode = 0x0A
	OpcodeInfo                        Opcode = 0x0B
)

// Status is the HAP-BLE PDU response status byte.
type Status byte

const (
	StatusSuccess                    Status = 0x00
	StatusUnsupportedPDU             Status = 0x01
	StatusMaxProcedures              Status = 0x02
	StatusInsufficientAuthorization  Status = 0x03
	StatusInvalidInstanceID          Status = 0x04
	StatusInsufficientAuthentication Status = 0x05
	StatusInvalidRequest             Status = 0x06
)

// control field bit layout (spec §3 "HAP-BLE PDU"):
//
//	bit 7   fragmentation (0 = first, 1 = continuation)
//	bit 4   IID width (0 = 16-bit, 1 = 64-bit)
//	bits 1-3 PDU type (0 = request, 1 = response)
//	bit 0   length (0 = 1-byte control field)
const (
	controlBitContinuation = 1 << 7
	controlBitIID64        = 1 << 4
	controlTypeShift       = 1
	controlTypeMask        = 0x7
)

// Type distinguishes a request PDU from a response PDU.
type Type uint8

const (
	TypeRequest  Type = 0
	TypeResponse Type = 1
)

// Header is the decoded fixed-size portion of one HAP-BLE PDU fragment.
type Header struct {
	Continuation bool
	Type         Type
	IID64        bool

	// Request fields (first fragment only).
	Opcode Opcode
	TID    byte
	IID    uint64

	// Response fields (first fragment only).
	Status Status
}

// PDU is one fully-decoded, reassembled HAP-BLE transaction side (request
// or response), with its body already defragmented by the caller (spec
// §4.C9 owns reassembly; this package only frames a single fragment at a
// time).
type PDU struct {
	Header Header
	Body   []byte
}

func controlField(h Header) byte {
	c := byte(h.Type&controlTypeMask) << controlTypeShift
	if h.Continuation {
		c |= controlBitContinuation
	}
	if h.IID64 {
		c |= controlBitIID64
	}
	return c
}

// EncodeRequestFirst serializes the first fragment of a request PDU:
// control, opcode, tid, iid, then the 2-byte total body length (if body is
// non-empty) and as much of body as fits in maxFragment.
func EncodeRequestFirst(opcode Opcode, tid byte, iid uint16, body []byte, maxFragment int) (frame []byte, bodyOffset int, err error) {
	if len(body) > MaxBodyLength {
		return nil, 0, herr.New("pdu.EncodeRequestFirst", herr.KindInvalidData, "body exceeds 65535 bytes")
	}
	h := Header{Type: TypeRequest, Opcode: opcode, TID: tid, IID: uint64(iid)}
	head := []byte{controlField(h), byte(opcode), tid, byte(iid), byte(iid >> 8)}
	return encodeFirstFragment(head, body, maxFragment)
}

// EncodeResponseFirst serializes the first fragment of a response PDU:
// control, tid, status, then the 2-byte total body length (if body is
// non-empty) and as much of body as fits in maxFragment.
func EncodeResponseFirst(tid byte, status Status, body []byte, maxFragment int) (frame []byte, bodyOffset int, err error) {
	if len(body) > MaxBodyLength {
		return nil, 0, herr.New("pdu.EncodeResponseFirst", herr.KindInvalidData, "body exceeds 65535 bytes")
	}
	h := Header{Type: TypeResponse, TID: tid, Status: status}
	head := []byte{controlField(h), tid, byte(status)}
	return encodeFirstFragment(head, body, maxFragment)
}

func encodeFirstFragment(head, body []byte, maxFragment int) (frame []byte, bodyOffset int, err error) {
	if len(body) == 0 {
		return head, 0, nil
	}
	lenPrefix := []byte{byte(len(body)), byte(len(body) >> 8)}
	frame = append(append([]byte{}, head...), lenPrefix...)
	room := maxFragment - len(frame)
	if room < 0 {
		room = 0
	}
	n := len(body)
	if n > room {
		n = room
	}
	frame = append(frame, body[:n]...)
	return frame, n, nil
}

// EncodeContinuation serializes a body-only continuation fragment: control
// byte with the continuation bit set, followed by tid, followed by as much
// of the remaining body as fits in maxFragment.
func EncodeContinuation(tid byte, remaining []byte, maxFragment int) (frame []byte, consumed int) {
	h := Header{Continuation: true}
	head := []byte{controlField(h), tid}
	room := maxFragment - len(head)
	if room < 0 {
		room = 0
	}
	n := len(remaining)
	if n > room {
		n = room
	}
	frame = append(head, remaining[:n]...)
	return frame, n
}

// DecodeFirst parses the first fragment of either a request or a response,
// returning the header, the embedded body slice, and the PDU's declared
// total body length (0 if no length prefix is present). Deserialization
// rejects a declared total body length shorter than the embedded slice —
// an internally-inconsistent fragment (spec §4.C8).
func DecodeFirst(frame []byte) (h Header, body []byte, totalBodyLen int, err error) {
	if len(frame) < 1 {
		return Header{}, nil, 0, herr.New("pdu.DecodeFirst", herr.KindInvalidData, "empty frame")
	}
	control := frame[0]
	h.Continuation = control&controlBitContinuation != 0
	h.Type = Type((control >> controlTypeShift) & controlTypeMask)
	h.IID64 = control&controlBitIID64 != 0
	if h.Continuation {
		return Header{}, nil, 0, herr.New("pdu.DecodeFirst", herr.KindInvalidData, "continuation fragment passed to DecodeFirst")
	}

	i := 1
	switch h.Type {
	case TypeRequest:
		if len(frame) < i+4 {
			return Header{}, nil, 0, herr.New("pdu.DecodeFirst", herr.KindInvalidData, "truncated request header")
		}
		h.Opcode = Opcode(frame[i])
		h.TID = frame[i+1]
		h.IID = uint64(binary.LittleEndian.Uint16(frame[i+2 : i+4]))
		i += 4
	case TypeResponse:
		if len(frame) < i+2 {
			return Header{}, nil, 0, herr.New("pdu.DecodeFirst", herr.KindInvalidData, "truncated response header")
		}
		h.TID = frame[i]
		h.Status = Status(frame[i+1])
		i += 2
	default:
		return Header{}, nil, 0, herr.New("pdu.DecodeFirst", herr.KindInvalidData, fmt.Sprintf("invalid PDU type %d", h.Type))
	}

	if i == len(frame) {
		return h, nil, 0, nil
	}
	if len(frame) < i+2 {
		return Header{}, nil, 0, herr.New("pdu.DecodeFirst", herr.KindInvalidData, "truncated body length prefix")
	}
	totalBodyLen = int(binary.LittleEndian.Uint16(frame[i : i+2]))
	i += 2
	body = frame[i:]
	if totalBodyLen < len(body) {
		return Header{}, nil, 0, herr.New("pdu.DecodeFirst", herr.KindInvalidData, "declared body length shorter than embedded fragment")
	}
	return h, body, totalBodyLen, nil
}

// DecodeContinuation parses a body-only continuation fragment, returning
// its tid and the embedded body bytes.
func DecodeContinuation(frame []byte) (tid byte, body []byte, err error) {
	if len(frame) < 2 {
		return 0, nil, herr.New("pdu.DecodeContinuation", herr.KindInvalidData, "truncated continuation")
	}
	control := frame[0]
	if control&controlBitContinuation == 0 {
		return 0, nil, herr.New("pdu.DecodeContinuation", herr.KindInvalidData, "not a continuation fragment")
	}
	return frame[1], frame[2:], nil
}
