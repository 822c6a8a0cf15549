// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// compressionTag identifies the compression algorithm of a record
// payload. Tags are stored in record file headers (1 byte) — changing
// the values breaks record format compatibility.
type compressionTag uint8

const (
	// compressionNone stores the payload raw. Selected when probing
	// finds the record effectively incompressible.
	compressionNone compressionTag = 0

	// compressionLZ4 is LZ4 block compression: fast, modest ratio.
	// Selected when the probe ratio is marginal.
	compressionLZ4 compressionTag = 1

	// compressionZstd is zstd at its default level. The usual choice:
	// session transcripts are text and compress well.
	compressionZstd compressionTag = 2
)

// String returns the tag name used in index entries.
func (tag compressionTag) String() string {
	switch tag {
	case compressionNone:
		return "none"
	case compressionLZ4:
		return "lz4"
	case compressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// zstdEncoder and zstdDecoder are reused across calls; both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("archive: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("archive: zstd decoder initialization failed: " + err.Error())
	}
}

// errIncompressible is returned when compressed output would not be
// smaller than the input.
var errIncompressible = fmt.Errorf("data is incompressible")

// probeLimit bounds the bytes fed to the selection probe. Records are
// dominated by the transcript; its head predicts the whole.
const probeLimit = 256 * 1024

// selectCompression probes the head of the payload with zstd. A ratio
// of 1.5x or better selects zstd, between 1.1x and 1.5x selects LZ4
// (faster with an acceptable ratio), below 1.1x the payload is
// considered incompressible.
func selectCompression(data []byte) compressionTag {
	if len(data) == 0 {
		return compressionNone
	}
	probe := data
	if len(probe) > probeLimit {
		probe = probe[:probeLimit]
	}

	compressed := zstdEncoder.EncodeAll(probe, nil)
	ratio := float64(len(probe)) / float64(len(compressed))

	switch {
	case ratio >= 1.5:
		return compressionZstd
	case ratio >= 1.1:
		return compressionLZ4
	default:
		return compressionNone
	}
}

// compressRecord compresses plaintext record bytes with the probed
// algorithm, falling back to raw storage when the winner still cannot
// beat the input size.
func compressRecord(data []byte) ([]byte, compressionTag, error) {
	switch tag := selectCompression(data); tag {
	case compressionNone:
		return data, compressionNone, nil

	case compressionLZ4:
		compressed, err := compressLZ4(data)
		if err == errIncompressible {
			return data, compressionNone, nil
		}
		if err != nil {
			return nil, 0, err
		}
		return compressed, tag, nil

	case compressionZstd:
		compressed, err := compressZstd(data)
		if err == errIncompressible {
			return data, compressionNone, nil
		}
		if err != nil {
			return nil, 0, err
		}
		return compressed, tag, nil

	default:
		return nil, 0, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

// decompressRecord reverses compressRecord. The uncompressedSize must
// match the original length exactly; a mismatch is an error.
func decompressRecord(payload []byte, tag compressionTag, uncompressedSize int) ([]byte, error) {
	switch tag {
	case compressionNone:
		if len(payload) != uncompressedSize {
			return nil, fmt.Errorf("uncompressed payload: size %d does not match expected %d",
				len(payload), uncompressedSize)
		}
		return payload, nil

	case compressionLZ4:
		return decompressLZ4(payload, uncompressedSize)

	case compressionZstd:
		return decompressZstd(payload, uncompressedSize)

	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	destination := make([]byte, bound)

	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	// CompressBlock returns 0 when it determines the data is
	// incompressible; a result no smaller than the input is treated
	// the same way.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, uncompressedSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != uncompressedSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
	}
	return destination, nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, 0, uncompressedSize)
	result, err := zstdDecoder.DecodeAll(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != uncompressedSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
	}
	return result, nil
}
