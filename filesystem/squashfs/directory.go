package squashfs

import (
	"encoding/binary"
	"fmt"
)

// directoryHeader begins each run of directory entries sharing the same
// metadata-block start and a common base inode number that every entry's
// inodeNumber is a signed delta from. The on-disk count field is stored as
// (entry count - 1); parseDirectoryHeader already adds the 1 back.
type directoryHeader struct {
	count      uint32
	startBlock uint32
	inode      uint32
}

func parseDirectoryHeader(b []byte) (*directoryHeader, error) {
	if len(b) < dirHeaderSize {
		return nil, fmt.Errorf("header was %d bytes, less than minimum %d", len(b), dirHeaderSize)
	}
	return &directoryHeader{
		count:      binary.LittleEndian.Uint32(b[0:4]) + 1,
		startBlock: binary.LittleEndian.Uint32(b[4:8]),
		inode:      binary.LittleEndian.Uint32(b[8:12]),
	}, nil
}

func (h directoryHeader) toBytes() []byte {
	b := make([]byte, dirHeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.count-1)
	binary.LittleEndian.PutUint32(b[4:8], h.startBlock)
	binary.LittleEndian.PutUint32(b[8:12], h.inode)
	return b
}

// directoryEntryRaw is one entry of the directory table. parseDirectoryEntry
// turns the on-disk int16 inode delta into an absolute inodeNumber using the
// header's base; parseDirectory fills in startBlock from the header.
type directoryEntryRaw struct {
	offset         uint16
	inodeNumber    uint32
	inodeType      inodeType
	name           string
	isSubdirectory bool
	startBlock     uint32
}

func parseDirectoryEntry(b []byte, headerInode uint32) (*directoryEntryRaw, int, error) {
	if len(b) < dirEntryMinSize {
		return nil, 0, fmt.Errorf("directory entry was %d bytes, less than minimum %d", len(b), dirEntryMinSize)
	}
	offset := binary.LittleEndian.Uint16(b[0:2])
	inodeNumber := uint32(int64(headerInode) + int64(int16(binary.LittleEndian.Uint16(b[2:4]))))
	iType := inodeType(binary.LittleEndian.Uint16(b[4:6]))
	nameSize := int(binary.LittleEndian.Uint16(b[6:8])) + 1
	needed := dirEntryMinSize + nameSize
	if len(b) < needed {
		return nil, needed - len(b), nil
	}
	return &directoryEntryRaw{
		offset:         offset,
		inodeNumber:    inodeNumber,
		inodeType:      iType,
		name:           string(b[dirEntryMinSize:needed]),
		isSubdirectory: iType == inodeBasicDirectory || iType == inodeExtendedDirectory,
	}, 0, nil
}

func (e *directoryEntryRaw) toBytes(headerInode uint32) []byte {
	b := make([]byte, dirEntryMinSize+len(e.name))
	binary.LittleEndian.PutUint16(b[0:2], e.offset)
	binary.LittleEndian.PutUint16(b[2:4], uint16(int16(int64(e.inodeNumber)-int64(headerInode))))
	binary.LittleEndian.PutUint16(b[4:6], uint16(e.inodeType))
	binary.LittleEndian.PutUint16(b[6:8], uint16(len(e.name)-1))
	copy(b[8:], e.name)
	return b
}

// resolve returns the inodeRef locating this entry's inode in the inode
// table: the header's startBlock and the entry's own offset.
func (e *directoryEntryRaw) resolve(h *directoryHeader) *inodeRef {
	return &inodeRef{
		block:  h.startBlock,
		offset: e.offset,
	}
	// The entry's inodeNumber (header base plus the on-disk int16 delta)
	// identifies the inode for export-table lookups, not for locating
	// the inode body, which is addressed directly via startBlock+offset.
}

// directory is one fully-parsed run of entries sharing a single header.
type directory struct {
	entries []*directoryEntryRaw
}

func parseDirectory(b []byte) (*directory, error) {
	header, err := parseDirectoryHeader(b)
	if err != nil {
		return nil, fmt.Errorf("could not parse directory header: %w", err)
	}
	entries := make([]*directoryEntryRaw, 0, header.count)
	off := dirHeaderSize
	for i := uint32(0); i < header.count; i++ {
		if off >= len(b) {
			return nil, fmt.Errorf("%w: directory truncated after %d of %d entries", ErrTruncated, i, header.count)
		}
		entry, extra, err := parseDirectoryEntry(b[off:], header.inode)
		if err != nil {
			return nil, fmt.Errorf("could not parse directory entry %d: %w", i, err)
		}
		if extra > 0 {
			return nil, fmt.Errorf("%w: directory entry %d needs %d more bytes", ErrTruncated, i, extra)
		}
		entry.startBlock = header.startBlock
		entries = append(entries, entry)
		off += dirEntryMinSize + len(entry.name)
	}
	return &directory{entries: entries}, nil
}

func (d *directory) equal(o *directory) bool {
	if d == nil || o == nil {
		return d == o
	}
	if len(d.entries) != len(o.entries) {
		return false
	}
	for i, e := range d.entries {
		if *e != *o.entries[i] {
			return false
		}
	}
	return true
}

func (d *directory) toBytes(headerInode uint32) []byte {
	h := directoryHeader{count: uint32(len(d.entries)), inode: headerInode}
	b := h.toBytes()
	for _, e := range d.entries {
		b = append(b, e.toBytes(headerInode)...)
	}
	return b
}

// readDirectory reads size bytes of the directory table starting at the
// given cursor and groups them into one or more header-delimited runs,
// flattening the result into a single ordered slice of entries. A
// directory's listing may span several headers when it has more than 8KiB
// of entries packed across multiple metadata blocks.
func readDirectory(start cursor, size int) ([]*directoryEntryRaw, error) {
	if size <= 0 {
		return nil, nil
	}
	raw, _, err := start.read(size)
	if err != nil {
		return nil, fmt.Errorf("could not read directory table: %w", err)
	}
	var entries []*directoryEntryRaw
	off := 0
	for off < len(raw) {
		if off+dirHeaderSize > len(raw) {
			break
		}
		dir, err := parseDirectory(raw[off:])
		if err != nil {
			return nil, err
		}
		entries = append(entries, dir.entries...)
		consumed := dirHeaderSize
		for _, e := range dir.entries {
			consumed += dirEntryMinSize + len(e.name)
		}
		off += consumed
	}
	return entries, nil
}
