package squashfs

import (
	"encoding/binary"
	"fmt"
	"io"
)

// xAttrIndex is one 16-byte record of the xattr id table: pos locates the
// start of this inode's run of key/value pairs, count is how many pairs
// follow, size is their total on-disk byte length (informational only).
//
// As read straight off disk, pos is packed the same way as an inodeRef:
// the high bits are a metadata-block offset relative to the xattr value
// table's start, the low 16 bits are the in-block byte offset. Once the
// value table's metadata blocks have all been decompressed and
// concatenated, readXattrsTable rewrites pos in place to a flat byte offset
// into that concatenated buffer, so xAttrTable.find can index it directly.
type xAttrIndex struct {
	pos   uint64
	count uint32
	size  uint32
}

func parseXAttrIndex(b []byte) (*xAttrIndex, error) {
	if len(b) < xAttrIDEntrySize {
		return nil, fmt.Errorf("Cannot parse xAttr Index of size %d less than minimum %d", len(b), xAttrIDEntrySize)
	}
	return &xAttrIndex{
		pos:   binary.LittleEndian.Uint64(b[0:8]),
		count: binary.LittleEndian.Uint32(b[8:12]),
		size:  binary.LittleEndian.Uint32(b[12:16]),
	}, nil
}

// xAttrTable is the fully assembled xattr subsystem: data is the
// concatenation of every decompressed xattr-value metadata block, list is
// one xAttrIndex per inode that carries extended attributes, with pos
// already flattened to index directly into data.
type xAttrTable struct {
	list []*xAttrIndex
	data []byte
}

// find decodes the key/value pairs for list[pos], the pos-th entry of the
// xattr id table (the index an inode stores), starting at that entry's
// flattened data offset. Each pair is encoded as: type(u16) keySize(u16)
// key(keySize bytes) valSize(u32) val(valSize bytes), repeated count times.
func (t *xAttrTable) find(pos int) (map[string]string, error) {
	if pos < 0 || pos >= len(t.list) {
		return nil, fmt.Errorf("Position %d is greater than list size %d", pos, len(t.list))
	}
	idx := t.list[pos]
	out := make(map[string]string, idx.count)
	off := int(idx.pos)
	for i := uint32(0); i < idx.count; i++ {
		if off+4 > len(t.data) {
			return nil, fmt.Errorf("%w: xattr entry %d truncated", ErrTruncated, i)
		}
		keySize := int(binary.LittleEndian.Uint16(t.data[off+2 : off+4]))
		off += 4
		if off+keySize+4 > len(t.data) {
			return nil, fmt.Errorf("%w: xattr key %d truncated", ErrTruncated, i)
		}
		key := string(t.data[off : off+keySize])
		off += keySize
		valSize := int(binary.LittleEndian.Uint32(t.data[off : off+4]))
		off += 4
		if off+valSize > len(t.data) {
			return nil, fmt.Errorf("%w: xattr value %d truncated", ErrTruncated, i)
		}
		out[key] = string(t.data[off : off+valSize])
		off += valSize
	}
	return out, nil
}

// parseXattrsTable assembles an xAttrTable from the already-read xattr
// value bytes (bUIDXattr, raw concatenated metadata blocks including their
// 2-byte headers) and the id-table bytes (bIndex, same format holding
// xAttrIndex records). offsetMap maps each value-table metadata block's
// on-disk byte offset to that block's starting position within the
// flattened, header-stripped data this function returns.
func parseXattrsTable(bUIDXattr, bIndex []byte, offsetMap map[uint32]uint32, c Compressor) (*xAttrTable, error) {
	data := make([]byte, 0, len(bUIDXattr))
	for off := 0; off < len(bUIDXattr); {
		block, err := parseMetadata(bUIDXattr[off:], c)
		if err != nil {
			return nil, fmt.Errorf("could not parse xattr value block at %d: %w", off, err)
		}
		size, _, err := getMetadataSize(bUIDXattr[off:])
		if err != nil {
			return nil, err
		}
		data = append(data, block.data...)
		off += 2 + int(size)
	}

	var list []*xAttrIndex
	for off := 0; off < len(bIndex); {
		block, err := parseMetadata(bIndex[off:], c)
		if err != nil {
			return nil, fmt.Errorf("could not parse xattr id block at %d: %w", off, err)
		}
		size, _, err := getMetadataSize(bIndex[off:])
		if err != nil {
			return nil, err
		}
		for eoff := 0; eoff+xAttrIDEntrySize <= len(block.data); eoff += xAttrIDEntrySize {
			entry, err := parseXAttrIndex(block.data[eoff : eoff+xAttrIDEntrySize])
			if err != nil {
				return nil, err
			}
			blockRel := uint32(entry.pos >> 16)
			inBlock := entry.pos & 0xffff
			base, ok := offsetMap[blockRel]
			if !ok {
				base = 0
			}
			entry.pos = uint64(base) + inBlock
			list = append(list, entry)
		}
		off += 2 + int(size)
	}
	return &xAttrTable{list: list, data: data}, nil
}

// readXattrsTable reads the three-part xattr subsystem described at
// s.xattrTableStart: a 16-byte header (value-table location, id count,
// padding), followed immediately by the pointer list for the id table.
func readXattrsTable(s *superblock, src blockSource, c Compressor) (*xAttrTable, error) {
	if s.noXattrs || s.xattrTableStart == noXattrSB {
		return nil, nil
	}
	header := make([]byte, xAttrHeaderSize)
	if _, err := src.ReadAt(header, int64(s.xattrTableStart)); err != nil && err != io.EOF {
		return nil, fmt.Errorf("could not read xattr table header: %w", err)
	}
	valueTableStart := binary.LittleEndian.Uint64(header[0:8])
	idCount := binary.LittleEndian.Uint32(header[8:12])
	if idCount == 0 {
		return &xAttrTable{}, nil
	}

	idBytes := int(idCount) * xAttrIDEntrySize
	blockCount := (idBytes-1)/metadataBlockSize + 1
	ptrBytes := make([]byte, blockCount*8)
	if _, err := src.ReadAt(ptrBytes, int64(s.xattrTableStart)+xAttrHeaderSize); err != nil && err != io.EOF {
		return nil, fmt.Errorf("could not read xattr id index: %w", err)
	}

	xc := c
	if s.uncompressedXattrs {
		xc = &CompressorNone{}
	}

	// The value table runs from valueTableStart up to wherever the id
	// table's first metadata block begins; that boundary is only known
	// once the id-table pointer list has been read, not from any field
	// in the superblock itself.
	firstIDBlock := binary.LittleEndian.Uint64(ptrBytes[0:8])

	// Read every value-table metadata block between valueTableStart and
	// the id index, tracking where each one lands in the flattened
	// buffer so xAttrIndex.pos can be rewritten from its on-disk packed
	// form to a flat offset.
	offsetMap := map[uint32]uint32{}
	var bUIDXattr []byte
	var flat uint32
	for loc := valueTableStart; loc < firstIDBlock; {
		header := make([]byte, 2)
		if _, err := src.ReadAt(header, int64(loc)); err != nil && err != io.EOF {
			return nil, fmt.Errorf("could not read xattr value block header at %d: %w", loc, err)
		}
		size, _, err := getMetadataSize(header)
		if err != nil {
			return nil, err
		}
		raw := make([]byte, 2+int(size))
		if _, err := src.ReadAt(raw, int64(loc)); err != nil && err != io.EOF {
			return nil, fmt.Errorf("could not read xattr value block at %d: %w", loc, err)
		}
		offsetMap[uint32(loc-valueTableStart)] = flat
		bUIDXattr = append(bUIDXattr, raw...)
		flat += uint32(size)
		loc += 2 + uint64(size)
	}

	var bIndex []byte
	for i := 0; i < blockCount; i++ {
		ptr := int64(binary.LittleEndian.Uint64(ptrBytes[i*8 : i*8+8]))
		header := make([]byte, 2)
		if _, err := src.ReadAt(header, ptr); err != nil && err != io.EOF {
			return nil, fmt.Errorf("could not read xattr id block header: %w", err)
		}
		size, _, err := getMetadataSize(header)
		if err != nil {
			return nil, err
		}
		raw := make([]byte, 2+int(size))
		if _, err := src.ReadAt(raw, ptr); err != nil && err != io.EOF {
			return nil, fmt.Errorf("could not read xattr id block: %w", err)
		}
		bIndex = append(bIndex, raw...)
	}

	return parseXattrsTable(bUIDXattr, bIndex, offsetMap, xc)
}
