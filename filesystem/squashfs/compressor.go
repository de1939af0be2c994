package squashfs

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// Compressor is implemented by every codec registered for squashfs metadata
// and data blocks. loadOptions/optionsBytes round-trip the compressor-specific
// options block that may follow the superblock when the COMPRESSOR_OPTIONS
// flag is set; most codecs accept none.
type Compressor interface {
	compress(b []byte) ([]byte, error)
	decompress(b []byte) ([]byte, error)
	loadOptions(b []byte) error
	optionsBytes() []byte
	flavour() compression
}

// newCompressor returns the registered Compressor for the on-disk algorithm
// id. An id with no wired codec (lzo, or an unknown id) gets a
// compressorUnsupported, so opening succeeds and ErrUnsupportedCompressor
// is returned only when a compressed block is actually read.
func newCompressor(c compression) (Compressor, error) {
	switch c {
	case compressionNone:
		return &CompressorNone{}, nil
	case compressionGzip:
		return &CompressorGzip{}, nil
	case compressionLzma:
		return &CompressorLzma{}, nil
	case compressionXz:
		return &CompressorXz{}, nil
	case compressionLz4:
		return &CompressorLz4{}, nil
	case compressionZstd:
		return &CompressorZstd{}, nil
	default:
		return &compressorUnsupported{c: c}, nil
	}
}

// compressorUnsupported stands in for an algorithm with no wired codec.
// Blocks stored uncompressed never reach it; compress and decompress fail
// with ErrUnsupportedCompressor.
type compressorUnsupported struct{ c compression }

func (u *compressorUnsupported) compress(b []byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompressor, u.c)
}
func (u *compressorUnsupported) decompress(b []byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompressor, u.c)
}
func (u *compressorUnsupported) loadOptions(b []byte) error { return nil }
func (u *compressorUnsupported) optionsBytes() []byte       { return nil }
func (u *compressorUnsupported) flavour() compression       { return u.c }

// CompressorNone passes data through unchanged. Used when the UNCOMPRESSED_*
// superblock flags mark a given table as stored raw, or when the archive was
// built without compression at all.
type CompressorNone struct{}

func (c *CompressorNone) compress(b []byte) ([]byte, error)   { return b, nil }
func (c *CompressorNone) decompress(b []byte) ([]byte, error) { return b, nil }
func (c *CompressorNone) loadOptions(b []byte) error          { return nil }
func (c *CompressorNone) optionsBytes() []byte                { return nil }
func (c *CompressorNone) flavour() compression                { return compressionNone }

// CompressorGzip wraps compress/gzip (with a zlib fallback, since mksquashfs
// writes a raw zlib/deflate stream rather than the gzip container some
// tooling expects).
type CompressorGzip struct {
	CompressionLevel int
}

func (c *CompressorGzip) compress(b []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	level := c.CompressionLevel
	if level == 0 {
		level = gzip.DefaultCompression
	}
	w, err := gzip.NewWriterLevel(buf, level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailure, err)
	}
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *CompressorGzip) decompress(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, nil
	}
	// squashfs stores a raw zlib stream (header byte 0x78), not the
	// gzip container; fall back to zlib if the gzip magic is absent.
	var r io.ReadCloser
	var err error
	if len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b {
		r, err = gzip.NewReader(bytes.NewReader(b))
	} else {
		r, err = zlib.NewReader(bytes.NewReader(b))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailure, err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailure, err)
	}
	return out, nil
}
func (c *CompressorGzip) loadOptions(b []byte) error { return nil }
func (c *CompressorGzip) optionsBytes() []byte       { return nil }
func (c *CompressorGzip) flavour() compression       { return compressionGzip }

// CompressorLzma wraps github.com/ulikunitz/xz/lzma. squashfs's lzma
// compressor is legacy (superseded by xz in practice) but still appears in
// the wild, predominantly in OpenWrt images.
type CompressorLzma struct{}

func (c *CompressorLzma) compress(b []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	w, err := lzma.NewWriter(buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *CompressorLzma) decompress(b []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailure, err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailure, err)
	}
	return out, nil
}
func (c *CompressorLzma) loadOptions(b []byte) error { return nil }
func (c *CompressorLzma) optionsBytes() []byte       { return nil }
func (c *CompressorLzma) flavour() compression       { return compressionLzma }

// CompressorXz wraps github.com/ulikunitz/xz, the default mksquashfs
// compressor on most modern distributions.
type CompressorXz struct{}

func (c *CompressorXz) compress(b []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	w, err := xz.NewWriter(buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *CompressorXz) decompress(b []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailure, err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailure, err)
	}
	return out, nil
}
func (c *CompressorXz) loadOptions(b []byte) error { return nil }
func (c *CompressorXz) optionsBytes() []byte       { return nil }
func (c *CompressorXz) flavour() compression       { return compressionXz }

// CompressorLz4 wraps github.com/pierrec/lz4's block-level (not frame-level)
// API, matching squashfs's use of bare LZ4 block compression per metadata
// block rather than the LZ4 frame format.
type CompressorLz4 struct{}

func (c *CompressorLz4) compress(b []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(b)))
	var ht [1 << 16]int
	n, err := lz4.CompressBlock(b, dst, ht[:])
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// incompressible input: lz4.CompressBlock returns 0 rather
		// than an expanded block.
		return b, nil
	}
	return dst[:n], nil
}

func (c *CompressorLz4) decompress(b []byte) ([]byte, error) {
	dst := make([]byte, metadataBlockSize*16)
	n, err := lz4.UncompressBlock(b, dst)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailure, err)
	}
	return dst[:n], nil
}
func (c *CompressorLz4) loadOptions(b []byte) error { return nil }
func (c *CompressorLz4) optionsBytes() []byte       { return nil }
func (c *CompressorLz4) flavour() compression       { return compressionLz4 }

// CompressorZstd wraps github.com/klauspost/compress/zstd.
type CompressorZstd struct{}

func (c *CompressorZstd) compress(b []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(b, nil), nil
}

func (c *CompressorZstd) decompress(b []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailure, err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailure, err)
	}
	return out, nil
}
func (c *CompressorZstd) loadOptions(b []byte) error { return nil }
func (c *CompressorZstd) optionsBytes() []byte       { return nil }
func (c *CompressorZstd) flavour() compression       { return compressionZstd }
