package squashfs

import (
	"encoding/binary"
	"fmt"
)

// fragmentEntry is one 16-byte record of the fragment table: the location
// and on-disk size of a fragment block holding the tail ends of multiple
// files packed together.
type fragmentEntry struct {
	start      uint64
	size       uint32
	compressed bool
}

func parseFragmentEntry(b []byte) (*fragmentEntry, error) {
	if len(b) < fragmentEntrySize {
		return nil, fmt.Errorf("Mismatched fragment entry size, received %d bytes, less than minimum %d", len(b), fragmentEntrySize)
	}
	rawSize := binary.LittleEndian.Uint32(b[8:12])
	return &fragmentEntry{
		start:      binary.LittleEndian.Uint64(b[0:8]),
		size:       rawSize &^ dataBlockCompressedFlag,
		compressed: rawSize&dataBlockCompressedFlag == 0,
	}, nil
}

func (f *fragmentEntry) toBytes() []byte {
	b := make([]byte, fragmentEntrySize)
	binary.LittleEndian.PutUint64(b[0:8], f.start)
	size := f.size
	if !f.compressed {
		size |= dataBlockCompressedFlag
	}
	binary.LittleEndian.PutUint32(b[8:12], size)
	return b
}

// readFragmentTable reads the fragment table: a list of pointers to
// metadata blocks, each of which packs several 16-byte fragmentEntry
// records. The pointer list itself lives at s.fragmentTableStart and is
// never compressed.
func readFragmentTable(s *superblock, src blockSource, c Compressor) ([]*fragmentEntry, error) {
	if s.fragmentCount == 0 {
		return nil, nil
	}
	blockCount := s.fragmentCount / fragmentsPerBlock
	if s.fragmentCount%fragmentsPerBlock != 0 {
		blockCount++
	}
	ptrBytes := make([]byte, int(blockCount)*8)
	if _, err := src.ReadAt(ptrBytes, int64(s.fragmentTableStart)); err != nil {
		return nil, fmt.Errorf("could not read fragment table index: %w", err)
	}
	entries := make([]*fragmentEntry, 0, s.fragmentCount)
	for i := uint32(0); i < blockCount; i++ {
		ptr := int64(binary.LittleEndian.Uint64(ptrBytes[i*8 : i*8+8]))
		data, _, err := readMetaBlock(src, c, ptr)
		if err != nil {
			return nil, fmt.Errorf("could not read fragment metadata block %d: %w", i, err)
		}
		for off := 0; off+fragmentEntrySize <= len(data) && len(entries) < int(s.fragmentCount); off += fragmentEntrySize {
			entry, err := parseFragmentEntry(data[off : off+fragmentEntrySize])
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}
	}
	if uint32(len(entries)) != s.fragmentCount {
		return nil, fmt.Errorf("%w: got %d entries, want %d", ErrFragmentCountMismatch, len(entries), s.fragmentCount)
	}
	return entries, nil
}
