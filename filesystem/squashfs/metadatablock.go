package squashfs

import (
	"encoding/binary"
	"fmt"
	"io"
)

// getMetadataSize decodes a metadata block's 2-byte header: the low 15 bits
// are the size in bytes of the data that follows, the top bit is clear when
// that data is compressed (set means stored raw).
func getMetadataSize(b []byte) (uint16, bool, error) {
	if len(b) < 2 {
		return 0, false, fmt.Errorf("Cannot read size of metadata block with %d bytes, must have minimum 2", len(b))
	}
	header := binary.LittleEndian.Uint16(b[0:2])
	size := header &^ 0x8000
	compressed := header&0x8000 == 0
	return size, compressed, nil
}

// metadatablock is one decoded metadata block: up to 8KiB of logical
// content, optionally compressed on disk.
type metadatablock struct {
	compressed bool
	data       []byte
}

// parseMetadata reads a single metadata block from the head of b, which must
// contain at least the 2-byte header plus the announced payload.
func parseMetadata(b []byte, c Compressor) (*metadatablock, error) {
	if len(b) < 3 {
		return nil, fmt.Errorf("Metadata block was of len %d", len(b))
	}
	size, compressed, err := getMetadataSize(b)
	if err != nil {
		return nil, err
	}
	available := len(b) - 2
	if available < int(size) {
		return nil, fmt.Errorf("Metadata header said size should be %d but was only %d", size, available)
	}
	payload := b[2 : 2+size]
	data := payload
	if compressed {
		if c == nil {
			return nil, fmt.Errorf("Metadata block compressed, but no compressor provided")
		}
		data, err = c.decompress(payload)
		if err != nil {
			return nil, fmt.Errorf("decompress error: %v", err)
		}
	}
	return &metadatablock{compressed: compressed, data: data}, nil
}

// toBytes re-serializes the block, compressing its logical data if c is
// non-nil and the block was marked compressed, and prefixing the 2-byte
// on-disk header.
func (m *metadatablock) toBytes(c Compressor) ([]byte, error) {
	payload := m.data
	var header uint16
	if m.compressed && c != nil {
		compressed, err := c.compress(m.data)
		if err != nil {
			return nil, fmt.Errorf("Compression error: %v", err)
		}
		payload = compressed
	} else {
		header = 0x8000
	}
	header |= uint16(len(payload)) &^ 0x8000
	b := make([]byte, 2+len(payload))
	binary.LittleEndian.PutUint16(b[0:2], header)
	copy(b[2:], payload)
	return b, nil
}

// readMetaBlock reads one metadata block from src at the given absolute byte
// offset, decompressing it if needed, and returns its logical data along
// with the number of on-disk bytes consumed by the header+payload (NOT the
// decompressed size) -- callers must advance their cursor by onDiskSize,
// never by len(data).
func readMetaBlock(src io.ReaderAt, c Compressor, location int64) (data []byte, onDiskSize uint16, err error) {
	header := make([]byte, 2)
	if _, err := src.ReadAt(header, location); err != nil && err != io.EOF {
		return nil, 0, fmt.Errorf("%w: could not read metadata header at %d: %v", ErrUnexpectedEnd, location, err)
	}
	size, compressed, err := getMetadataSize(header)
	if err != nil {
		return nil, 0, err
	}
	payload := make([]byte, size)
	var n int
	if size > 0 {
		if n, err = src.ReadAt(payload, location+2); err != nil && err != io.EOF {
			return nil, 0, fmt.Errorf("%w: could not read metadata payload at %d: %v", ErrUnexpectedEnd, location+2, err)
		}
	}
	if n != int(size) {
		return nil, 0, fmt.Errorf("Read %d instead of expected %d bytes for metadata block at location %d", n, size, location)
	}
	if compressed {
		if c == nil {
			return nil, 0, fmt.Errorf("Metadata block at %d compressed, but no compressor provided", location)
		}
		data, err = c.decompress(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("decompress error: %v", err)
		}
	} else {
		data = payload
	}
	return data, 2 + size, nil
}
