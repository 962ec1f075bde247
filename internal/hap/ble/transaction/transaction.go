// Package transaction implements one BLE HAP-PDU request/response exchange
// (spec §4.C9): assembling a possibly-fragmented GATT write into a single
// request, then serving a possibly-fragmented GATT read of the response.
package transaction

import (
	"github.com/hkadk/hapcore/internal/hap/ble/pdu"
	"github.com/hkadk/hapcore/internal/hap/herr"
)

// State is a Transaction's position in its request/response lifecycle.
type State uint8

const (
	WaitingForInitialWrite State = iota
	ReadingRequest
	HandlingRequest
	WaitingForInitialRead
	WritingResponse
)

// Transaction reassembles one fragmented request and serves one
// fragmented response. Not safe for concurrent use.
type Transaction struct {
	state State
	tid   byte

	reqHeader      pdu.Header
	reqBody        []byte
	reqTotalLen    int

	respStatus     pdu.Status
	respBody       []byte
	respBodyOffset int
	respStarted    bool
}

// New creates a transaction awaiting its first GATT write.
func New() *Transaction {
	return &Transaction{state: WaitingForInitialWrite}
}

// State returns the transaction's current lifecycle state.
func (t *Transaction) State() State { return t.state }

// HandleWrite feeds one GATT write frame to the transaction. ready is true
// once the full request body has been assembled and HandlingRequest has
// been entered.
func (t *Transaction) HandleWrite(frame []byte) (ready bool, err error) {
	switch t.state {
	case WaitingForInitialWrite:
		h, body, totalLen, err := pdu.DecodeFirst(frame)
		if err != nil {
			return false, err
		}
		if h.Type != pdu.TypeRequest {
			return false, herr.New("transaction.HandleWrite", herr.KindInvalidData, "initial write is not a request PDU")
		}
		t.tid = h.TID
		t.reqHeader = h
		t.reqBody = append([]byte{}, body...)
		t.reqTotalLen = totalLen
		if len(t.reqBody) >= totalLen {
			t.state = HandlingRequest
			return true, nil
		}
		t.state = ReadingRequest
		return false, nil

	case ReadingRequest:
		gotTID, body, err := pdu.DecodeContinuation(frame)
		if err != nil {
			return false, err
		}
		if gotTID != t.tid {
			return false, herr.New("transaction.HandleWrite", herr.KindInvalidData, "continuation tid does not match request tid")
		}
		if len(t.reqBody)+len(body) > t.reqTotalLen {
			return false, herr.New("transaction.HandleWrite", herr.KindInvalidData, "continuation exceeds declared body length")
		}
		t.reqBody = append(t.reqBody, body...)
		if len(t.reqBody) >= t.reqTotalLen {
			t.state = HandlingRequest
			return true, nil
		}
		return false, nil

	case HandlingRequest:
		return false, herr.New("transaction.HandleWrite", herr.KindInvalidState, "write received while handling the previous request")

	case WaitingForInitialRead:
		// Empty-body writes sharing the request tid are keepalives between
		// request completion and the first read (spec §4.C9).
		gotTID, body, err := pdu.DecodeContinuation(frame)
		if err != nil || gotTID != t.tid || len(body) != 0 {
			return false, herr.New("transaction.HandleWrite", herr.KindInvalidData, "unexpected write while awaiting the first response read")
		}
		return false, nil

	case WritingResponse:
		return false, herr.New("transaction.HandleWrite", herr.KindInvalidState, "writes during WritingResponse are rejected")

	default:
		return false, herr.New("transaction.HandleWrite", herr.KindInvalidState, "unreachable transaction state")
	}
}

// Request returns the fully reassembled request, valid once HandleWrite has
// returned ready == true.
func (t *Transaction) Request() (pdu.Header, []byte) {
	return t.reqHeader, t.reqBody
}

// SetResponse records the handler's result. Must be called exactly once,
// from HandlingRequest.
func (t *Transaction) SetResponse(status pdu.Status, body []byte) error {
	if t.state != HandlingRequest {
		return herr.New("transaction.SetResponse", herr.KindInvalidState, "response set outside HandlingRequest")
	}
	t.respStatus = status
	t.respBody = body
	t.state = WaitingForInitialRead
	return nil
}

// ReadChunk serves the next GATT read, returning up to maxBytes of the
// serialized response. done is true once the entire response has been
// delivered.
func (t *Transaction) ReadChunk(maxBytes int) (frame []byte, done bool, err error) {
	switch t.state {
	case WaitingForInitialRead:
		frame, n, err := pdu.EncodeResponseFirst(t.tid, t.respStatus, t.respBody, maxBytes)
		if err != nil {
			return nil, false, err
		}
		t.respBodyOffset = n
		t.respStarted = true
		t.state = WritingResponse
		done = t.respBodyOffset >= len(t.respBody)
		return frame, done, nil

	case WritingResponse:
		if !t.respStarted {
			return nil, false, herr.New("transaction.ReadChunk", herr.KindInvalidState, "read before response header was sent")
		}
		frame, n := pdu.EncodeContinuation(t.tid, t.respBody[t.respBodyOffset:], maxBytes)
		t.respBodyOffset += n
		done = t.respBodyOffset >= len(t.respBody)
		return frame, done, nil

	default:
		return nil, false, herr.New("transaction.ReadChunk", herr.KindInvalidState, "read requested before a response is ready")
	}
}
