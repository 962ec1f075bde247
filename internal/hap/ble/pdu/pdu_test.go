package pdu_test

import (
	"testing"

	"github.com/hkadk/hapcore/internal/hap/ble/pdu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestRoundTripNoBody(t *testing.T) {
	// GOAL: deserialize(serialize(P)) == P for a bodyless request
	frame, bodyOffset, err := pdu.EncodeRequestFirst(pdu.OpcodeCharacteristicRead, 7, 0x0042, nil, 512)
	require.NoError(t, err)
	assert.Equal(t, 0, bodyOffset)

	h, body, totalLen, err := pdu.DecodeFirst(frame)
	require.NoError(t, err)
	assert.Equal(t, pdu.TypeRequest, h.Type)
	assert.Equal(t, pdu.OpcodeCharacteristicRead, h.Opcode)
	assert.Equal(t, byte(7), h.TID)
	assert.Equal(t, uint64(0x0042), h.IID)
	assert.Empty(t, body)
	assert.Equal(t, 0, totalLen)
}

func TestRequestRoundTripWithBodyFitsInOneFragment(t *testing.T) {
	// GOAL: a short body round-trips entirely in the first fragment
	body := []byte("write-value")
	frame, bodyOffset, err := pdu.EncodeRequestFirst(pdu.OpcodeCharacteristicWrite, 3, 0x0010, body, 512)
	require.NoError(t, err)
	assert.Equal(t, len(body), bodyOffset)

	h, gotBody, totalLen, err := pdu.DecodeFirst(frame)
	require.NoError(t, err)
	assert.Equal(t, pdu.OpcodeCharacteristicWrite, h.Opcode)
	assert.Equal(t, body, gotBody)
	assert.Equal(t, len(body), totalLen)
}

func TestResponseFragmentsAcrossContinuations(t *testing.T) {
	// GOAL: a response body larger than one MTU fragments into continuations
	// that reassemble to the original body, all sharing the response tid
	body := make([]byte, 300)
	for i := range body {
		body[i] = byte(i)
	}
	tid := byte(9)

	frame1, n1, err := pdu.EncodeResponseFirst(tid, pdu.StatusSuccess, body, 64)
	require.NoError(t, err)
	h1, part1, totalLen, err := pdu.DecodeFirst(frame1)
	require.NoError(t, err)
	assert.Equal(t, pdu.TypeResponse, h1.Type)
	assert.Equal(t, tid, h1.TID)
	assert.Equal(t, pdu.StatusSuccess, h1.Status)
	assert.Equal(t, len(body), totalLen)
	assert.Equal(t, body[:n1], part1)

	reassembled := append([]byte{}, part1...)
	offset := n1
	for offset < len(body) {
		frame2, n2 := pdu.EncodeContinuation(tid, body[offset:], 64)
		gotTID, part2, err := pdu.DecodeContinuation(frame2)
		require.NoError(t, err)
		assert.Equal(t, tid, gotTID)
		reassembled = append(reassembled, part2...)
		offset += n2
	}
	assert.Equal(t, body, reassembled)
}

func TestDecodeFirstRejectsDeclaredLengthShorterThanEmbeddedBody(t *testing.T) {
	// GOAL: an internally-inconsistent first fragment (declared total body
	// length less than the bytes actually present) is rejected
	frame, _, err := pdu.EncodeRequestFirst(pdu.OpcodeCharacteristicRead, 1, 1, []byte("hello"), 512)
	require.NoError(t, err)
	// Corrupt the 2-byte length prefix (immediately after the 5-byte fixed
	// header) to declare fewer bytes than are actually embedded.
	frame[5] = 1
	frame[6] = 0

	_, _, _, err = pdu.DecodeFirst(frame)
	assert.Error(t, err)
}

func TestDecodeContinuationRejectsNonContinuationFrame(t *testing.T) {
	frame, _, err := pdu.EncodeRequestFirst(pdu.OpcodeCharacteristicRead, 1, 1, nil, 512)
	require.NoError(t, err)

	_, _, err = pdu.DecodeContinuation(frame)
	assert.Error(t, err)
}
