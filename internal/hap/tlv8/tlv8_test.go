package tlv8_test

import (
	"bytes"
	"testing"

	"github.com/hkadk/hapcore/internal/hap/herr"
	"github.com/hkadk/hapcore/internal/hap/tlv8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTripSmallItems(t *testing.T) {
	buf := make([]byte, 64)
	w := tlv8.NewWriter(buf)
	require.NoError(t, w.Append(0x01, []byte("method")))
	require.NoError(t, w.Append(0x06, []byte{0x01}))

	r, err := tlv8.NewReader(w.Bytes())
	require.NoError(t, err)

	v, ok := r.Get(0x01)
	require.True(t, ok)
	assert.Equal(t, "method", string(v))

	v, ok = r.GetByte(0x06)
	require.True(t, ok)
	assert.Equal(t, byte(1), v)

	assert.Empty(t, r.All())
}

func TestFragmentationRoundTripOverThreshold(t *testing.T) {
	// GOAL: For a value over 255 bytes, writer fragments and reader reassembles
	value := bytes.Repeat([]byte{0xAB}, 600)
	buf := make([]byte, 700)
	w := tlv8.NewWriter(buf)
	require.NoError(t, w.Append(0x09, value))

	r, err := tlv8.NewReader(w.Bytes())
	require.NoError(t, err)
	got, ok := r.Get(0x09)
	require.True(t, ok)
	assert.Equal(t, value, got)
}

func TestFragmentationExactMultipleOf255NeedsTrailingFragment(t *testing.T) {
	value := bytes.Repeat([]byte{0x5A}, 510) // exactly 2 * 255
	buf := make([]byte, 600)
	w := tlv8.NewWriter(buf)
	require.NoError(t, w.Append(0x02, value))

	// Expect 3 raw fragments on the wire: 255, 255, 0.
	raw := w.Bytes()
	assert.Equal(t, byte(255), raw[1])
	assert.Equal(t, byte(255), raw[2+255+1])
	assert.Equal(t, byte(0), raw[2+255+2+255+1])

	r, err := tlv8.NewReader(w.Bytes())
	require.NoError(t, err)
	got, ok := r.Get(0x02)
	require.True(t, ok)
	assert.Equal(t, value, got)
}

func TestSameTypeItemsAdjacentButNotContinuationAreSeparate(t *testing.T) {
	// Two short (non-255) items of the same type are independent items, not
	// fragments of one logical item.
	buf := make([]byte, 32)
	w := tlv8.NewWriter(buf)
	require.NoError(t, w.Append(0x01, []byte{1}))
	require.NoError(t, w.Append(0x01, []byte{2}))

	r, err := tlv8.NewReader(w.Bytes())
	require.NoError(t, err)
	items := r.All()
	require.Len(t, items, 2)
	assert.Equal(t, []byte{1}, items[0].Value)
	assert.Equal(t, []byte{2}, items[1].Value)
}

func TestWriterOutOfResources(t *testing.T) {
	buf := make([]byte, 4)
	w := tlv8.NewWriter(buf)
	err := w.Append(0x01, []byte("too long for this buffer"))
	require.Error(t, err)
	assert.Equal(t, herr.KindOutOfResources, herr.KindOf(err))
}

func TestReaderRejectsTruncatedHeader(t *testing.T) {
	_, err := tlv8.NewReader([]byte{0x01})
	require.Error(t, err)
	assert.Equal(t, herr.KindInvalidData, herr.KindOf(err))
}

func TestReaderRejectsOverrunValue(t *testing.T) {
	_, err := tlv8.NewReader([]byte{0x01, 0x05, 0x00})
	require.Error(t, err)
	assert.Equal(t, herr.KindInvalidData, herr.KindOf(err))
}

func TestGetRemovesItemFromFurtherEnumeration(t *testing.T) {
	buf := make([]byte, 32)
	w := tlv8.NewWriter(buf)
	require.NoError(t, w.Append(0x01, []byte{1}))
	require.NoError(t, w.Append(0x02, []byte{2}))

	r, err := tlv8.NewReader(w.Bytes())
	require.NoError(t, err)

	_, ok := r.Get(0x01)
	require.True(t, ok)
	assert.Len(t, r.All(), 1)
	assert.Equal(t, byte(0x02), r.All()[0].Type)
}
