package core

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressorsRoundTrip(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog, repeated repeated repeated repeated")

	types := []CompressionType{CompressionNone, CompressionSnappy, CompressionLZ4, CompressionZSTD}
	for _, ct := range types {
		c, err := CompressorFor(ct)
		require.NoError(t, err, "CompressorFor(%v)", ct)
		assert.Equal(t, ct, c.Type())

		compressed, err := c.Compress(payload)
		require.NoError(t, err)

		rc, err := c.Decompress(compressed)
		require.NoError(t, err)
		defer rc.Close()

		decoded, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, payload, decoded)
	}
}

func TestCompressorForUnknownType(t *testing.T) {
	_, err := CompressorFor(CompressionType(99))
	assert.Error(t, err)
	assert.Equal(t, ErrKindInvalidRequest, KindOf(err))
}
