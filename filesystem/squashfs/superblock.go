package squashfs

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// superblockFlags unpacks the 16-bit flags field of the superblock. Each
// field corresponds to exactly one bit; the flag* constants below give the
// bit each one occupies.
type superblockFlags struct {
	uncompressedInodes    bool
	uncompressedData      bool
	check                 bool
	uncompressedFragments bool
	noFragments           bool
	alwaysFragments       bool
	dedup                 bool
	exportable            bool
	uncompressedXattrs    bool
	noXattrs              bool
	compressorOptions     bool
	uncompressedIds       bool
}

const (
	flagUncompressedInodes    uint16 = 1 << 0
	flagUncompressedData      uint16 = 1 << 1
	flagCheck                 uint16 = 1 << 2
	flagUncompressedFragments uint16 = 1 << 3
	flagNoFragments           uint16 = 1 << 4
	flagAlwaysFragments       uint16 = 1 << 5
	flagDuplicates            uint16 = 1 << 6
	flagExportable            uint16 = 1 << 7
	flagUncompressedXattrs    uint16 = 1 << 8
	flagNoXattrs              uint16 = 1 << 9
	flagCompressorOptions     uint16 = 1 << 10
	flagUncompressedIds       uint16 = 1 << 11
)

func parseFlags(b []byte) (*superblockFlags, error) {
	if len(b) != 2 {
		return nil, fmt.Errorf("Received %d bytes instead of expected 2 for flags", len(b))
	}
	f := binary.LittleEndian.Uint16(b[0:2])
	return &superblockFlags{
		uncompressedInodes:    f&flagUncompressedInodes != 0,
		uncompressedData:      f&flagUncompressedData != 0,
		check:                 f&flagCheck != 0,
		uncompressedFragments: f&flagUncompressedFragments != 0,
		noFragments:           f&flagNoFragments != 0,
		alwaysFragments:       f&flagAlwaysFragments != 0,
		dedup:                 f&flagDuplicates != 0,
		exportable:            f&flagExportable != 0,
		uncompressedXattrs:    f&flagUncompressedXattrs != 0,
		noXattrs:              f&flagNoXattrs != 0,
		compressorOptions:     f&flagCompressorOptions != 0,
		uncompressedIds:       f&flagUncompressedIds != 0,
	}, nil
}

func (f *superblockFlags) toUint16() uint16 {
	var v uint16
	if f.uncompressedInodes {
		v |= flagUncompressedInodes
	}
	if f.uncompressedData {
		v |= flagUncompressedData
	}
	if f.check {
		v |= flagCheck
	}
	if f.uncompressedFragments {
		v |= flagUncompressedFragments
	}
	if f.noFragments {
		v |= flagNoFragments
	}
	if f.alwaysFragments {
		v |= flagAlwaysFragments
	}
	if f.dedup {
		v |= flagDuplicates
	}
	if f.exportable {
		v |= flagExportable
	}
	if f.uncompressedXattrs {
		v |= flagUncompressedXattrs
	}
	if f.noXattrs {
		v |= flagNoXattrs
	}
	if f.compressorOptions {
		v |= flagCompressorOptions
	}
	if f.uncompressedIds {
		v |= flagUncompressedIds
	}
	return v
}

// inodeRef locates an inode within the metadata stream: block is the byte
// offset of the metadata block's on-disk header relative to the start of
// the inode table, offset is the byte offset of the inode within that
// block's decompressed contents.
type inodeRef struct {
	block  uint32
	offset uint16
}

// parseRootInode splits the superblock's packed 64-bit root_inode_ref into
// its block/offset halves: the low 16 bits are the in-block offset, bits
// 16..47 are the block's byte offset from the inode table start. Bits 48..63
// are not kept.
func parseRootInode(ref uint64) *inodeRef {
	return &inodeRef{
		block:  uint32(ref >> 16),
		offset: uint16(ref & 0xffff),
	}
}

func (i *inodeRef) toUint64() uint64 {
	return uint64(i.block)<<16 | uint64(i.offset)
}

// superblock is the parsed form of the archive's 96-byte header.
type superblock struct {
	inodes              uint32
	modTime             time.Time
	blocksize           uint32
	fragmentCount       uint32
	compression         compression
	idCount             uint16
	versionMajor        uint16
	versionMinor        uint16
	rootInode           *inodeRef
	size                uint64
	idTableStart        uint64
	xattrTableStart     uint64
	inodeTableStart     uint64
	directoryTableStart uint64
	fragmentTableStart  uint64
	exportTableStart    uint64
	superblockFlags
}

func parseSuperblock(b []byte) (*superblock, error) {
	if len(b) != superblockSize {
		return nil, fmt.Errorf("Superblock had %d bytes instead of expected %d", len(b), superblockSize)
	}
	m := binary.LittleEndian.Uint32(b[0:4])
	if m != magic {
		return nil, fmt.Errorf("Superblock had magic of 0x%x instead of expected 0x%x: %w", m, magic, ErrBadMagic)
	}
	blocksize := binary.LittleEndian.Uint32(b[12:16])
	if blocksize < minBlocksize || blocksize > maxBlocksize || blocksize&(blocksize-1) != 0 {
		return nil, fmt.Errorf("%w: block_size %d must be a power of two between %d and %d", ErrBadBlockSize, blocksize, minBlocksize, maxBlocksize)
	}
	blockLog := binary.LittleEndian.Uint16(b[22:24])
	if uint32(1)<<blockLog != blocksize {
		return nil, fmt.Errorf("%w: block_size %d disagrees with block_log %d", ErrBlockLogMismatch, blocksize, blockLog)
	}
	flags, err := parseFlags(b[24:26])
	if err != nil {
		return nil, fmt.Errorf("could not parse flags: %w", err)
	}
	versionMajor := binary.LittleEndian.Uint16(b[28:30])
	versionMinor := binary.LittleEndian.Uint16(b[30:32])
	if versionMajor != 4 || versionMinor != 0 {
		return nil, fmt.Errorf("%w: got %d.%d, only 4.0 is supported", ErrBadVersion, versionMajor, versionMinor)
	}
	return &superblock{
		inodes:              binary.LittleEndian.Uint32(b[4:8]),
		modTime:             time.Unix(int64(binary.LittleEndian.Uint32(b[8:12])), 0),
		blocksize:           blocksize,
		fragmentCount:       binary.LittleEndian.Uint32(b[16:20]),
		compression:         compression(binary.LittleEndian.Uint16(b[20:22])),
		idCount:             binary.LittleEndian.Uint16(b[26:28]),
		versionMajor:        versionMajor,
		versionMinor:        versionMinor,
		rootInode:           parseRootInode(binary.LittleEndian.Uint64(b[32:40])),
		size:                binary.LittleEndian.Uint64(b[40:48]),
		idTableStart:        binary.LittleEndian.Uint64(b[48:56]),
		xattrTableStart:     binary.LittleEndian.Uint64(b[56:64]),
		inodeTableStart:     binary.LittleEndian.Uint64(b[64:72]),
		directoryTableStart: binary.LittleEndian.Uint64(b[72:80]),
		fragmentTableStart:  binary.LittleEndian.Uint64(b[80:88]),
		exportTableStart:    binary.LittleEndian.Uint64(b[88:96]),
		superblockFlags:     *flags,
	}, nil
}

func (s *superblock) toBytes() []byte {
	b := make([]byte, superblockSize)
	binary.LittleEndian.PutUint32(b[0:4], magic)
	binary.LittleEndian.PutUint32(b[4:8], s.inodes)
	binary.LittleEndian.PutUint32(b[8:12], uint32(s.modTime.Unix()))
	binary.LittleEndian.PutUint32(b[12:16], s.blocksize)
	binary.LittleEndian.PutUint32(b[16:20], s.fragmentCount)
	binary.LittleEndian.PutUint16(b[20:22], uint16(s.compression))
	binary.LittleEndian.PutUint16(b[22:24], uint16(math.Log2(float64(s.blocksize))))
	binary.LittleEndian.PutUint16(b[24:26], s.superblockFlags.toUint16())
	binary.LittleEndian.PutUint16(b[26:28], s.idCount)
	binary.LittleEndian.PutUint16(b[28:30], s.versionMajor)
	binary.LittleEndian.PutUint16(b[30:32], s.versionMinor)
	binary.LittleEndian.PutUint64(b[32:40], s.rootInode.toUint64())
	binary.LittleEndian.PutUint64(b[40:48], s.size)
	binary.LittleEndian.PutUint64(b[48:56], s.idTableStart)
	binary.LittleEndian.PutUint64(b[56:64], s.xattrTableStart)
	binary.LittleEndian.PutUint64(b[64:72], s.inodeTableStart)
	binary.LittleEndian.PutUint64(b[72:80], s.directoryTableStart)
	binary.LittleEndian.PutUint64(b[80:88], s.fragmentTableStart)
	binary.LittleEndian.PutUint64(b[88:96], s.exportTableStart)
	return b
}

func (s *superblock) equal(o *superblock) bool {
	if s == nil || o == nil {
		return s == o
	}
	switch {
	case s.inodes != o.inodes,
		!s.modTime.Equal(o.modTime),
		s.blocksize != o.blocksize,
		s.fragmentCount != o.fragmentCount,
		s.compression != o.compression,
		s.idCount != o.idCount,
		s.versionMajor != o.versionMajor,
		s.versionMinor != o.versionMinor,
		s.size != o.size,
		s.idTableStart != o.idTableStart,
		s.xattrTableStart != o.xattrTableStart,
		s.inodeTableStart != o.inodeTableStart,
		s.directoryTableStart != o.directoryTableStart,
		s.fragmentTableStart != o.fragmentTableStart,
		s.exportTableStart != o.exportTableStart,
		s.superblockFlags != o.superblockFlags:
		return false
	}
	if (s.rootInode == nil) != (o.rootInode == nil) {
		return false
	}
	if s.rootInode != nil && *s.rootInode != *o.rootInode {
		return false
	}
	return true
}
