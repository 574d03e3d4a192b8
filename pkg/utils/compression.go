package utils

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression algorithms accepted for segments
const (
	CompressionNone = "none"
	CompressionLZ4  = "lz4"
	CompressionZstd = "zstd"
)

// DefaultZstdLevel matches the CRD default
const DefaultZstdLevel = 3

// Codec compresses and decompresses whole segment payloads.
type Codec interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// NewCodec returns the codec for algorithm. level only applies to zstd
// (1-22); zero selects the default.
func NewCodec(algorithm string, level int) (Codec, error) {
	switch algorithm {
	case "", CompressionNone:
		return noneCodec{}, nil
	case CompressionLZ4:
		return lz4Codec{}, nil
	case CompressionZstd:
		if level == 0 {
			level = DefaultZstdLevel
		}
		if level < 1 || level > 22 {
			return nil, fmt.Errorf("invalid zstd compression level %d: must be between 1 and 22", level)
		}
		return zstdCodec{level: zstd.EncoderLevelFromZstd(level)}, nil
	default:
		return nil, fmt.Errorf("unsupported compression %q", algorithm)
	}
}

// Extension is appended to segment keys so a listing shows the encoding.
func Extension(algorithm string) string {
	switch algorithm {
	case CompressionLZ4:
		return ".lz4"
	case CompressionZstd:
		return ".zst"
	default:
		return ""
	}
}

type noneCodec struct{}

func (noneCodec) Name() string { return CompressionNone }

func (noneCodec) Compress(data []byte) ([]byte, error) { return data, nil }

func (noneCodec) Decompress(data []byte) ([]byte, error) { return data, nil }

type lz4Codec struct{}

func (lz4Codec) Name() string { return CompressionLZ4 }

func (lz4Codec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := lz4.NewWriter(&buf)

	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write compressed data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close lz4 writer: %w", err)
	}

	return buf.Bytes(), nil
}

func (lz4Codec) Decompress(data []byte) ([]byte, error) {
	result, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to read decompressed data: %w", err)
	}
	return result, nil
}

type zstdCodec struct {
	level zstd.EncoderLevel
}

func (zstdCodec) Name() string { return CompressionZstd }

func (c zstdCodec) Compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(c.level))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

func (zstdCodec) Decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer decoder.Close()

	result, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read decompressed data: %w", err)
	}
	return result, nil
}
