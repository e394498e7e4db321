package protocol

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/pierrec/lz4/v4"
)

var (
	ErrIncompressible      = errors.New("protocol: payload does not compress")
	ErrDecompressionFailed = errors.New("protocol: decompression failed")
)

// CompressionLevel selects the LZ4 block compressor.
type CompressionLevel int

const (
	CompressionFast CompressionLevel = iota
	CompressionDefault
	CompressionBest
)

// sizePrefix bytes in front of every block hold the uncompressed length,
// so readers can refuse oversized payloads before inflating them.
const sizePrefix = 4

var fastCompressors = sync.Pool{
	New: func() interface{} { return new(lz4.Compressor) },
}

// Compress encodes data as its big endian length followed by one LZ4
// block. Data the block format cannot shrink yields ErrIncompressible.
func Compress(data []byte, level CompressionLevel) ([]byte, error) {
	out := make([]byte, sizePrefix+lz4.CompressBlockBound(len(data)))
	binary.BigEndian.PutUint32(out, uint32(len(data)))

	var (
		n   int
		err error
	)
	switch level {
	case CompressionFast:
		c := fastCompressors.Get().(*lz4.Compressor)
		n, err = c.CompressBlock(data, out[sizePrefix:])
		fastCompressors.Put(c)
	case CompressionBest:
		hc := lz4.CompressorHC{Level: lz4.Level9}
		n, err = hc.CompressBlock(data, out[sizePrefix:])
	default:
		hc := lz4.CompressorHC{Level: lz4.Level4}
		n, err = hc.CompressBlock(data, out[sizePrefix:])
	}
	if err != nil {
		return nil, err
	}
	if n == 0 || sizePrefix+n >= len(data) {
		return nil, ErrIncompressible
	}
	return out[:sizePrefix+n], nil
}

// Decompress decodes a block written by Compress. A declared length above
// limit is rejected with ErrFrameTooLarge without decoding.
func Decompress(data []byte, limit int) ([]byte, error) {
	if len(data) < sizePrefix {
		return nil, ErrDecompressionFailed
	}
	size := binary.BigEndian.Uint32(data)
	if uint64(size) > uint64(limit) {
		return nil, ErrFrameTooLarge
	}
	out := make([]byte, size)
	n, err := lz4.UncompressBlock(data[sizePrefix:], out)
	if err != nil || n != len(out) {
		return nil, ErrDecompressionFailed
	}
	return out, nil
}
