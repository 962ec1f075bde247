package transaction_test

import (
	"testing"

	"github.com/hkadk/hapcore/internal/hap/ble/pdu"
	"github.com/hkadk/hapcore/internal/hap/ble/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleFragmentRequestAndResponse(t *testing.T) {
	// GOAL: a request and response that each fit in one fragment complete
	// the transaction in a single write + single read
	tx := transaction.New()
	frame, _, err := pdu.EncodeRequestFirst(pdu.OpcodeCharacteristicRead, 5, 0x10, nil, 512)
	require.NoError(t, err)

	ready, err := tx.HandleWrite(frame)
	require.NoError(t, err)
	assert.True(t, ready)
	assert.Equal(t, transaction.HandlingRequest, tx.State())

	h, body := tx.Request()
	assert.Equal(t, pdu.OpcodeCharacteristicRead, h.Opcode)
	assert.Empty(t, body)

	require.NoError(t, tx.SetResponse(pdu.StatusSuccess, []byte("hello")))
	assert.Equal(t, transaction.WaitingForInitialRead, tx.State())

	respFrame, done, err := tx.ReadChunk(512)
	require.NoError(t, err)
	assert.True(t, done)

	rh, rbody, _, err := pdu.DecodeFirst(respFrame)
	require.NoError(t, err)
	assert.Equal(t, pdu.StatusSuccess, rh.Status)
	assert.Equal(t, []byte("hello"), rbody)
}

func TestFragmentedRequestReassemblesAcrossWrites(t *testing.T) {
	// GOAL: a request body larger than the first fragment's room is
	// reassembled from continuation writes sharing its tid
	tx := transaction.New()
	body := make([]byte, 40)
	for i := range body {
		body[i] = byte(i)
	}
	first, _, err := pdu.EncodeRequestFirst(pdu.OpcodeCharacteristicWrite, 2, 0x20, body, 10)
	require.NoError(t, err)

	ready, err := tx.HandleWrite(first)
	require.NoError(t, err)
	assert.False(t, ready, "body does not fit in the first fragment")
	assert.Equal(t, transaction.ReadingRequest, tx.State())

	_, partial := tx.Request()
	offset := len(partial)
	for offset < len(body) {
		frame, n := pdu.EncodeContinuation(2, body[offset:], 10)
		ready, err = tx.HandleWrite(frame)
		require.NoError(t, err)
		offset += n
	}
	assert.True(t, ready)
	_, full := tx.Request()
	assert.Equal(t, body, full)
}

func TestContinuationWithMismatchedTIDIsRejected(t *testing.T) {
	// GOAL: a continuation naming a different tid than the in-progress
	// request is rejected rather than silently merged
	tx := transaction.New()
	first, _, err := pdu.EncodeRequestFirst(pdu.OpcodeCharacteristicWrite, 2, 0x20, make([]byte, 20), 10)
	require.NoError(t, err)
	_, err = tx.HandleWrite(first)
	require.NoError(t, err)

	badFrame, _ := pdu.EncodeContinuation(99, make([]byte, 5), 10)
	_, err = tx.HandleWrite(badFrame)
	assert.Error(t, err)
}

func TestWriteWhileHandlingRequestIsRejected(t *testing.T) {
	// GOAL: a write arriving before the handler has produced a response is
	// rejected rather than silently accepted
	tx := transaction.New()
	first, _, err := pdu.EncodeRequestFirst(pdu.OpcodeCharacteristicRead, 1, 1, nil, 512)
	require.NoError(t, err)
	ready, err := tx.HandleWrite(first)
	require.NoError(t, err)
	require.True(t, ready)

	_, err = tx.HandleWrite(first)
	assert.Error(t, err)
}

func TestEmptyKeepaliveWriteToleratedBeforeFirstRead(t *testing.T) {
	// GOAL: an empty-body write sharing the request tid between request
	// completion and the first read is tolerated as a keepalive
	tx := transaction.New()
	first, _, err := pdu.EncodeRequestFirst(pdu.OpcodeCharacteristicRead, 4, 1, nil, 512)
	require.NoError(t, err)
	_, err = tx.HandleWrite(first)
	require.NoError(t, err)
	require.NoError(t, tx.SetResponse(pdu.StatusSuccess, []byte("x")))

	keepalive, _ := pdu.EncodeContinuation(4, nil, 512)
	ready, err := tx.HandleWrite(keepalive)
	assert.NoError(t, err)
	assert.False(t, ready)
	assert.Equal(t, transaction.WaitingForInitialRead, tx.State())
}

func TestResponseFragmentsAcrossMultipleReads(t *testing.T) {
	// GOAL: a response body larger than one read's MTU is served across
	// multiple ReadChunk calls until done
	tx := transaction.New()
	first, _, err := pdu.EncodeRequestFirst(pdu.OpcodeCharacteristicRead, 6, 1, nil, 512)
	require.NoError(t, err)
	_, err = tx.HandleWrite(first)
	require.NoError(t, err)

	body := make([]byte, 100)
	require.NoError(t, tx.SetResponse(pdu.StatusSuccess, body))

	var reassembled []byte
	frame, done, err := tx.ReadChunk(30)
	require.NoError(t, err)
	_, part, _, err := pdu.DecodeFirst(frame)
	require.NoError(t, err)
	reassembled = append(reassembled, part...)

	for !done {
		frame, done, err = tx.ReadChunk(30)
		require.NoError(t, err)
		_, part, err := pdu.DecodeContinuation(frame)
		require.NoError(t, err)
		reassembled = append(reassembled, part...)
	}
	assert.Equal(t, body, reassembled)
	assert.Equal(t, transaction.WritingResponse, tx.State())
}

func TestWriteDuringWritingResponseIsRejected(t *testing.T) {
	// GOAL: once response fragments have started, writes are rejected
	tx := transaction.New()
	first, _, err := pdu.EncodeRequestFirst(pdu.OpcodeCharacteristicRead, 1, 1, nil, 512)
	require.NoError(t, err)
	_, err = tx.HandleWrite(first)
	require.NoError(t, err)
	require.NoError(t, tx.SetResponse(pdu.StatusSuccess, make([]byte, 100)))
	_, _, err = tx.ReadChunk(10)
	require.NoError(t, err)

	_, err = tx.HandleWrite(first)
	assert.Error(t, err)
}
