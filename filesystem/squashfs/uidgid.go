package squashfs

import (
	"encoding/binary"
	"fmt"
)

// parseIDTable splits a decoded metadata block's contents into its 32-bit
// uid/gid lookup entries.
func parseIDTable(b []byte) []uint32 {
	ids := make([]uint32, 0, len(b)/idEntrySize)
	for off := 0; off+idEntrySize <= len(b); off += idEntrySize {
		ids = append(ids, binary.LittleEndian.Uint32(b[off:off+idEntrySize]))
	}
	return ids
}

// readUidsGids reads the uid/gid lookup table: idCount 32-bit ids packed
// into metadata blocks, themselves pointed to by an index of 8-byte
// pointers starting at s.idTableStart.
func readUidsGids(s *superblock, src blockSource, c Compressor) ([]uint32, error) {
	if s.idCount == 0 {
		return nil, nil
	}
	idBytes := int(s.idCount) * idEntrySize
	blockCount := (idBytes-1)/metadataBlockSize + 1
	ptrBytes := make([]byte, blockCount*8)
	if _, err := src.ReadAt(ptrBytes, int64(s.idTableStart)); err != nil {
		return nil, fmt.Errorf("could not read id table index: %w", err)
	}
	ids := make([]uint32, 0, s.idCount)
	for i := 0; i < blockCount; i++ {
		ptr := int64(binary.LittleEndian.Uint64(ptrBytes[i*8 : i*8+8]))
		data, _, err := readMetaBlock(src, c, ptr)
		if err != nil {
			return nil, fmt.Errorf("could not read id metadata block %d: %w", i, err)
		}
		ids = append(ids, parseIDTable(data)...)
	}
	if len(ids) > int(s.idCount) {
		ids = ids[:s.idCount]
	}
	if len(ids) != int(s.idCount) {
		return nil, fmt.Errorf("%w: got %d ids, want %d", ErrIDCountMismatch, len(ids), s.idCount)
	}
	return ids, nil
}
