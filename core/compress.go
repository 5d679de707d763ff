package core

import (
	"bytes"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// NoopCompressor stores data uncompressed. Used for CompressionNone.
type NoopCompressor struct{}

func (NoopCompressor) Compress(data []byte) ([]byte, error) { return data, nil }

func (NoopCompressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	_, err := dst.Write(src)
	return err
}

func (NoopCompressor) Decompress(data []byte) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (NoopCompressor) Type() CompressionType { return CompressionNone }

// SnappyCompressor wraps github.com/golang/snappy.
type SnappyCompressor struct{}

func (SnappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (SnappyCompressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	dst.Write(snappy.Encode(nil, src))
	return nil
}

func (SnappyCompressor) Decompress(data []byte) (io.ReadCloser, error) {
	decoded, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(decoded)), nil
}

func (SnappyCompressor) Type() CompressionType { return CompressionSnappy }

// LZ4Compressor wraps github.com/pierrec/lz4/v4.
type LZ4Compressor struct{}

func (LZ4Compressor) Compress(data []byte) ([]byte, error) {
	buf := BufferPool.Get()
	defer BufferPool.Put(buf)
	if err := (LZ4Compressor{}).CompressTo(buf, data); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func (LZ4Compressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	w := lz4.NewWriter(dst)
	if _, err := w.Write(src); err != nil {
		return err
	}
	return w.Close()
}

func (LZ4Compressor) Decompress(data []byte) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(bytes.NewReader(data))), nil
}

func (LZ4Compressor) Type() CompressionType { return CompressionLZ4 }

// ZSTDCompressor wraps github.com/klauspost/compress/zstd.
type ZSTDCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZSTDCompressor builds a reusable encoder/decoder pair. zstd's encoders
// and decoders are safe for concurrent use per-object, so one pair is shared
// across all observations compressed with this data stream's encoding.
func NewZSTDCompressor() (*ZSTDCompressor, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &ZSTDCompressor{encoder: enc, decoder: dec}, nil
}

func (z *ZSTDCompressor) Compress(data []byte) ([]byte, error) {
	return z.encoder.EncodeAll(data, nil), nil
}

func (z *ZSTDCompressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	dst.Write(z.encoder.EncodeAll(src, nil))
	return nil
}

func (z *ZSTDCompressor) Decompress(data []byte) (io.ReadCloser, error) {
	decoded, err := z.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(decoded)), nil
}

func (*ZSTDCompressor) Type() CompressionType { return CompressionZSTD }

// CompressorFor returns the Compressor implementation for a CompressionType,
// as chosen by a data stream's RecordEncoding (spec §4.3).
func CompressorFor(ct CompressionType) (Compressor, error) {
	switch ct {
	case CompressionNone:
		return NoopCompressor{}, nil
	case CompressionSnappy:
		return SnappyCompressor{}, nil
	case CompressionLZ4:
		return LZ4Compressor{}, nil
	case CompressionZSTD:
		return NewZSTDCompressor()
	default:
		return nil, NewError(ErrKindInvalidRequest, "unknown compression type")
	}
}
