package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDAllocatorSequential(t *testing.T) {
	a := NewIDAllocator(1)
	assert.Equal(t, int64(1), a.Next())
	assert.Equal(t, int64(2), a.Next())
	assert.Equal(t, int64(3), a.Next())
	assert.Equal(t, int64(4), a.Peek())
}

func TestIDAllocatorResumesFromHighWaterMark(t *testing.T) {
	a := NewIDAllocator(101)
	assert.Equal(t, int64(101), a.Next())
	assert.Equal(t, int64(102), a.Next())
}

func TestIDAllocatorRejectsNonPositiveStart(t *testing.T) {
	a := NewIDAllocator(0)
	assert.Equal(t, int64(1), a.Next())
}

func TestIDScramblerRoundTrip(t *testing.T) {
	s, err := NewIDScrambler()
	require.NoError(t, err)

	ids := []int64{1, 2, 42, 1000, 1 << 20, (1 << 48) - 2}
	for _, id := range ids {
		encoded, err := s.Encode(id)
		require.NoError(t, err)
		assert.Equal(t, id, s.Decode(encoded), "round trip must recover the original id")
	}
}

func TestIDScramblerTamperedEncodingIsRejected(t *testing.T) {
	s, err := NewIDScrambler()
	require.NoError(t, err)

	encoded, err := s.Encode(12345)
	require.NoError(t, err)

	tampered := encoded ^ 1
	assert.LessOrEqual(t, s.Decode(tampered), int64(0), "a flipped bit must not decode to a valid id")
}

func TestIDScramblerForeignEncodingIsRejected(t *testing.T) {
	s1, err := NewIDScrambler()
	require.NoError(t, err)
	s2, err := NewIDScrambler()
	require.NoError(t, err)

	encoded, err := s1.Encode(99)
	require.NoError(t, err)
	assert.LessOrEqual(t, s2.Decode(encoded), int64(0), "a value scrambled by a different process key must not decode")
}

func TestIDScramblerRejectsOutOfRangeIDs(t *testing.T) {
	s, err := NewIDScrambler()
	require.NoError(t, err)

	_, err = s.Encode(0)
	assert.Error(t, err)
	_, err = s.Encode(-5)
	assert.Error(t, err)
	_, err = s.Encode(1 << 48)
	assert.Error(t, err)
}
