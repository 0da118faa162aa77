package store

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the spill payload compressor.
type Compression uint8

const (
	// CompressionZstd is the default: best ratio for path-list payloads.
	CompressionZstd Compression = iota
	// CompressionLZ4 trades ratio for lower CPU cost.
	CompressionLZ4
	// CompressionNone stores payloads uncompressed.
	CompressionNone
)

func (c Compression) String() string {
	switch c {
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	case CompressionNone:
		return "none"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdInitErr error
)

func zstdInit() error {
	zstdOnce.Do(func() {
		zstdEncoder, zstdInitErr = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1),
		)
		if zstdInitErr != nil {
			return
		}
		zstdDecoder, zstdInitErr = zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
		)
	})
	return zstdInitErr
}

// compress returns the encoded form of data for the given compression.
func compress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case CompressionZstd:
		if err := zstdInit(); err != nil {
			return nil, err
		}
		return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil

	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	case CompressionNone:
		return data, nil

	default:
		return nil, fmt.Errorf("unknown compression: %d", c)
	}
}

// decompress reverses compress.
func decompress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case CompressionZstd:
		if err := zstdInit(); err != nil {
			return nil, err
		}
		return zstdDecoder.DecodeAll(data, nil)

	case CompressionLZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))

	case CompressionNone:
		return data, nil

	default:
		return nil, fmt.Errorf("unknown compression: %d", c)
	}
}
