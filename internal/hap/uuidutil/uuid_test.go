package uuidutil_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/hkadk/hapcore/internal/hap/uuidutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortFormHAPBaseUUID(t *testing.T) {
	// GOAL: A HAP-base UUID folds to its 2-byte short form
	//
	// TEST SCENARIO: 00000F25-0000-1000-8000-0026BB765291 -> {0x25, 0x0F}

	u := uuid.MustParse("00000F25-0000-1000-8000-0026BB765291")
	short, ok := uuidutil.ShortForm(u)
	require.True(t, ok)
	assert.Equal(t, [2]byte{0x25, 0x0F}, short)

	back := uuidutil.ExpandShortForm(short)
	assert.Equal(t, u, back)
}

func TestShortFormNonHAPBaseUUIDStaysFull(t *testing.T) {
	// GOAL: A non-HAP-base UUID has no short form
	//
	// TEST SCENARIO: 34AB8811-AC7F-4340-BAC3-FD6A85F9943B -> full 16-byte form retained

	u := uuid.MustParse("34AB8811-AC7F-4340-BAC3-FD6A85F9943B")
	_, ok := uuidutil.ShortForm(u)
	assert.False(t, ok)
	assert.Equal(t, "34ab8811-ac7f-4340-bac3-fd6a85f9943b", uuidutil.FullForm(u))
}

func TestParseAcceptsBareShortForm(t *testing.T) {
	u, err := uuidutil.Parse("0f25")
	require.NoError(t, err)
	assert.Equal(t, uuid.MustParse("00000F25-0000-1000-8000-0026BB765291"), u)
}
