package wire

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	lz4 "github.com/pierrec/lz4/v4"
)

// CompressionAlgorithm selects the codec used to shrink an AppendEntries
// batch's entries section before it hits the wire.
type CompressionAlgorithm int

const (
	CompressionNone CompressionAlgorithm = iota
	CompressionSnappy
	CompressionLZ4
	CompressionZstd
)

func (a CompressionAlgorithm) String() string {
	switch a {
	case CompressionSnappy:
		return "snappy"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return "none"
	}
}

// ParseCompressionAlgorithm parses a compression algorithm name, defaulting
// to CompressionNone for an empty string.
func ParseCompressionAlgorithm(s string) (CompressionAlgorithm, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "snappy":
		return CompressionSnappy, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return CompressionNone, fmt.Errorf("wire: unknown compression algorithm %q", s)
	}
}

// Compressor compresses and decompresses an AppendEntries entries section.
// A nil Compressor (or MinSize() == 0 with no configured algorithm) means
// "never compress", matching the default off-by-design behavior.
type Compressor interface {
	MinSize() int
	Compress(data []byte) []byte
	Decompress(data []byte) ([]byte, error)
}

// NewCompressor builds a Compressor for the given algorithm. minSize is the
// smallest entries-section length worth compressing; below it the overhead
// of the codec isn't worth paying.
func NewCompressor(algo CompressionAlgorithm, minSize int) (Compressor, error) {
	switch algo {
	case CompressionNone:
		return nil, nil
	case CompressionSnappy:
		return snappyCompressor{minSize: minSize}, nil
	case CompressionLZ4:
		return lz4Compressor{minSize: minSize}, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		return &zstdCompressor{minSize: minSize, enc: enc, dec: dec}, nil
	default:
		return nil, fmt.Errorf("wire: unknown compression algorithm %d", algo)
	}
}

type snappyCompressor struct{ minSize int }

func (c snappyCompressor) MinSize() int { return c.minSize }

func (c snappyCompressor) Compress(data []byte) []byte {
	return snappy.Encode(nil, data)
}

func (c snappyCompressor) Decompress(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}

type lz4Compressor struct{ minSize int }

func (c lz4Compressor) MinSize() int { return c.minSize }

func (c lz4Compressor) Compress(data []byte) []byte {
	buf := make([]byte, lz4.CompressBlockBound(len(data)))
	var compressor lz4.Compressor
	n, err := compressor.CompressBlock(data, buf)
	if err != nil || n == 0 {
		// Incompressible or too small for a block; fall back to storing
		// the raw bytes with a zero-length prefix sentinel so Decompress
		// can tell the two cases apart.
		return append([]byte{0, 0, 0, 0}, data...)
	}
	out := make([]byte, 4+n)
	putUint32(out[0:4], uint32(len(data)))
	copy(out[4:], buf[:n])
	return out
}

func (c lz4Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, ErrDecompressFailed
	}
	origLen := getUint32(data[0:4])
	if origLen == 0 {
		return data[4:], nil
	}
	out := make([]byte, origLen)
	n, err := lz4.UncompressBlock(data[4:], out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

type zstdCompressor struct {
	minSize int
	enc     *zstd.Encoder
	dec     *zstd.Decoder
}

func (c *zstdCompressor) MinSize() int { return c.minSize }

func (c *zstdCompressor) Compress(data []byte) []byte {
	return c.enc.EncodeAll(data, nil)
}

func (c *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	return c.dec.DecodeAll(data, nil)
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
