// Package squashfs implements a read-only decoder for SquashFS v4.0
// archives: a compressed, read-only filesystem image format widely used for
// live CDs, embedded root filesystems and container layers.
//
// This package only reads existing archives; it cannot create or modify
// one. See cmd/squashfs-info for end-to-end usage.
package squashfs

import (
	"fmt"
	"io"
	iofs "io/fs"
	"math"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kofj/go-squashfs/backend"
	"github.com/kofj/go-squashfs/filesystem"
	"github.com/sirupsen/logrus"
)

// log is the package logger, silent by default; SetLogger lets a caller
// wire it to its own logrus instance to see block-level decode tracing.
var log = logrus.New()

func init() {
	log.SetOutput(io.Discard)
}

// SetLogger replaces the package-wide logger. Pass nil to restore silence.
func SetLogger(l *logrus.Logger) {
	if l == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
		return
	}
	log = l
}

// FileSystem represents a single mounted (read-only) squashfs archive.
type FileSystem struct {
	workspace  string
	superblock *superblock
	size       int64
	start      int64
	backend    backend.Storage
	blocksize  int64
	compressor Compressor
	fragments  []*fragmentEntry
	uidsGids   []uint32
	xattrs     *xAttrTable
	rootDir    inode
	cache      *lru
	sessionID  uuid.UUID
}

// Read opens an existing squashfs archive from b, which must have size
// bytes available starting at byte offset start.
func Read(b backend.Storage, size, start, blocksize int64) (*FileSystem, error) {
	if b == nil {
		return nil, fmt.Errorf("cannot read squashfs from nil backend")
	}
	var view blockSource = b
	if start != 0 {
		view = backend.Sub(b, start, size)
	}

	header := make([]byte, superblockSize)
	if _, err := view.ReadAt(header, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("could not read superblock: %w", err)
	}
	sb, err := parseSuperblock(header)
	if err != nil {
		return nil, fmt.Errorf("invalid superblock: %w", err)
	}

	compressor, err := newCompressor(sb.compression)
	if err != nil {
		return nil, err
	}

	fragments, err := readFragmentTable(sb, view, compressor)
	if err != nil {
		return nil, fmt.Errorf("could not read fragment table: %w", err)
	}

	var xattrs *xAttrTable
	if !sb.noXattrs && sb.xattrTableStart != noXattrSB {
		xattrs, err = readXattrsTable(sb, view, compressor)
		if err != nil {
			return nil, fmt.Errorf("could not read xattr table: %w", err)
		}
	}

	uidsGids, err := readUidsGids(sb, view, compressor)
	if err != nil {
		return nil, fmt.Errorf("could not read id table: %w", err)
	}

	fs := &FileSystem{
		workspace:  "",
		superblock: sb,
		size:       size,
		start:      start,
		backend:    b,
		blocksize:  int64(sb.blocksize),
		compressor: compressor,
		fragments:  fragments,
		uidsGids:   uidsGids,
		xattrs:     xattrs,
		cache:      newLRU(defaultCacheSize / metadataBlockSize),
		sessionID:  uuid.New(),
	}

	mr := newMetadataReader(view, compressor, int64(sb.inodeTableStart), fs.cache)
	rootInode, err := fs.getInode(mr, sb.rootInode.block, sb.rootInode.offset)
	if err != nil {
		return nil, fmt.Errorf("could not read root inode: %w", err)
	}
	fs.rootDir = rootInode

	log.WithFields(logrus.Fields{
		"inodes":      sb.inodes,
		"compression": sb.compression,
		"blocksize":   sb.blocksize,
	}).Debug("opened squashfs archive")

	return fs, nil
}

// SetCacheSize resizes the decoded-metadata-block cache, in bytes. A larger
// cache trades memory for fewer repeat decompressions when the same
// directories or inodes are visited repeatedly.
func (fs *FileSystem) SetCacheSize(bytes int) {
	if fs.cache == nil {
		fs.cache = newLRU(bytes / metadataBlockSize)
		return
	}
	fs.cache.setMaxBlocks(bytes / metadataBlockSize)
}

// Workspace returns the temporary workspace directory, always empty for a
// read-only archive. It is not part of the filesystem.FileSystem interface.
func (fs *FileSystem) Workspace() string {
	return fs.workspace
}

// Type returns the type of filesystem this represents.
func (fs *FileSystem) Type() filesystem.Type {
	return filesystem.TypeSquashfs
}

// Label always returns "": the SquashFS superblock carries no volume-label
// field, unlike FAT32's boot sector or ISO9660's primary volume descriptor.
func (fs *FileSystem) Label() string {
	return ""
}

// SessionID returns a random identifier generated once when this archive
// was opened. It has no on-disk meaning; it exists purely so that log
// lines from two FileSystem instances opened against the same path (e.g.
// in a long-running server) can be told apart.
func (fs *FileSystem) SessionID() uuid.UUID {
	return fs.sessionID
}

// Info is a read-only snapshot of the superblock fields a caller might
// want to print or log, without exposing the unexported superblock type.
type Info struct {
	Inodes            uint32
	ModTime           time.Time
	Blocksize         uint32
	FragmentCount     uint32
	Compression       string
	IDCount           uint16
	VersionMajor      uint16
	VersionMinor      uint16
	Size              uint64
	Exportable        bool
	DuplicatesRemoved bool
}

// Info returns a summary of this archive's superblock.
func (fs *FileSystem) Info() Info {
	sb := fs.superblock
	return Info{
		Inodes:            sb.inodes,
		ModTime:           sb.modTime,
		Blocksize:         sb.blocksize,
		FragmentCount:     sb.fragmentCount,
		Compression:       sb.compression.String(),
		IDCount:           sb.idCount,
		VersionMajor:      sb.versionMajor,
		VersionMinor:      sb.versionMinor,
		Size:              sb.size,
		Exportable:        sb.exportable,
		DuplicatesRemoved: sb.dedup,
	}
}

var (
	_ filesystem.FileSystem = (*FileSystem)(nil)
	_ iofs.ReadDirFS        = (*FileSystem)(nil)
	_ iofs.FS               = (*FileSystem)(nil)
)

func validateBlocksize(size int64) error {
	if size < minBlocksize {
		return fmt.Errorf("blocksize %d too small, must be at least %d", size, minBlocksize)
	}
	if size > maxBlocksize {
		return fmt.Errorf("blocksize %d too large, must be no more than %d", size, maxBlocksize)
	}
	log2 := math.Log2(float64(size))
	if log2 != math.Trunc(log2) {
		return fmt.Errorf("blocksize %d is not a power of 2", size)
	}
	return nil
}

// getInode reads and decodes the inode located at the given block/offset
// within the inode table reachable through mr. It reads the fixed header,
// then the body's minimum fixed size, extending the read (and re-parsing)
// until the body's variable-length tail (block list, symlink target,
// directory index) is fully consumed.
func (fs *FileSystem) getInode(mr *metadataReader, blockOffset uint32, byteOffset uint16) (inode, error) {
	cur := mr.newCursor(int64(blockOffset), int(byteOffset))

	headerBytes, cur, err := cur.read(inodeHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("could not read inode header: %w", err)
	}
	header, err := parseInodeHeader(headerBytes)
	if err != nil {
		return nil, err
	}

	minSize := bodyMinSize(header.inodeType)
	bodyBytes, bodyCur, err := cur.read(minSize)
	if err != nil {
		return nil, fmt.Errorf("could not read inode %s body: %w", header.inodeType, err)
	}
	body, extra, err := parseInodeBody(bodyBytes, int(fs.blocksize), header.inodeType)
	if err != nil {
		return nil, fmt.Errorf("could not parse inode %s body: %w", header.inodeType, err)
	}
	for extra > 0 {
		more, nextCur, err := bodyCur.read(extra)
		if err != nil {
			return nil, fmt.Errorf("could not read inode %s body tail: %w", header.inodeType, err)
		}
		bodyBytes = append(bodyBytes, more...)
		bodyCur = nextCur
		body, extra, err = parseInodeBody(bodyBytes, int(fs.blocksize), header.inodeType)
		if err != nil {
			return nil, fmt.Errorf("could not parse inode %s body: %w", header.inodeType, err)
		}
	}

	return &inodeImpl{header: header, body: body}, nil
}

// readBlock returns the decompressed contents of a single data block at the
// given absolute offset. A size of 0 denotes a sparse (all-zero) block.
func (fs *FileSystem) readBlock(location int64, compressed bool, size uint32) ([]byte, error) {
	if size == 0 {
		return make([]byte, fs.blocksize), nil
	}
	raw := make([]byte, size)
	n, err := fs.backend.ReadAt(raw, fs.start+location)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("could not read data block at %d: %w", location, err)
	}
	if n != int(size) {
		return nil, fmt.Errorf("read %d bytes instead of expected %d", n, size)
	}
	if !compressed {
		return raw, nil
	}
	data, err := fs.compressor.decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailure, err)
	}
	return data, nil
}

// readFragment returns the decompressed bytes of the tail-packing fragment
// block at fragments[index], trimmed to the fragmentSize bytes belonging to
// one particular file starting at offset within it.
func (fs *FileSystem) readFragment(index, offset uint32, fragmentSize int64) ([]byte, error) {
	if int(index) >= len(fs.fragments) {
		return nil, fmt.Errorf("cannot find fragment block with index %d", index)
	}
	entry := fs.fragments[index]
	fetch := func() ([]byte, uint16, error) {
		raw := make([]byte, entry.size)
		n, err := fs.backend.ReadAt(raw, fs.start+int64(entry.start))
		if err != nil && err != io.EOF {
			return nil, 0, err
		}
		if n != int(entry.size) {
			return nil, 0, fmt.Errorf("read %d bytes instead of expected %d", n, entry.size)
		}
		if !entry.compressed {
			return raw, uint16(entry.size), nil
		}
		if fs.compressor == nil {
			return nil, 0, fmt.Errorf("fragment compressed but do not have valid compressor")
		}
		dec, err := fs.compressor.decompress(raw)
		if err != nil {
			return nil, 0, fmt.Errorf("decompress error: %v", err)
		}
		return dec, uint16(len(dec)), nil
	}
	var data []byte
	var err error
	if fs.cache != nil {
		data, _, err = fs.cache.get(fs.start+int64(entry.start), fetch)
	} else {
		data, _, err = fetch()
	}
	if err != nil {
		return nil, err
	}
	end := int64(offset) + fragmentSize
	if end > int64(len(data)) {
		return nil, fmt.Errorf("%w: fragment %d too short for requested range", ErrTruncated, index)
	}
	return data[offset:end], nil
}

// dirMetadataReader returns a metadataReader rooted at the directory table.
func (fs *FileSystem) dirMetadataReader() *metadataReader {
	return newMetadataReader(fs.backend, fs.compressor, fs.start+int64(fs.superblock.directoryTableStart), fs.cache)
}

func (fs *FileSystem) inodeMetadataReader() *metadataReader {
	return newMetadataReader(fs.backend, fs.compressor, fs.start+int64(fs.superblock.inodeTableStart), fs.cache)
}

// idFor resolves an id-table index to its uid/gid value.
func (fs *FileSystem) idFor(idx uint16) uint32 {
	if int(idx) >= len(fs.uidsGids) {
		return 0
	}
	return fs.uidsGids[idx]
}

// xattrsFor resolves an inode's xattr index to its key/value pairs, if any.
func (fs *FileSystem) xattrsFor(idx uint32) map[string]string {
	if fs.xattrs == nil || idx == noXattrInode {
		return nil
	}
	m, err := fs.xattrs.find(int(idx))
	if err != nil {
		return nil
	}
	return m
}

// hydrate builds a public directoryEntry for one directory-table entry,
// reading the entry's inode to fill in size, mode and xattrs.
func (fs *FileSystem) hydrate(name string, e *directoryEntryRaw) (*directoryEntry, error) {
	in, err := fs.getInode(fs.inodeMetadataReader(), e.startBlock, e.offset)
	if err != nil {
		return nil, fmt.Errorf("could not read inode for %q: %w", name, err)
	}
	header := in.getHeader()
	de := &directoryEntry{
		isSubdirectory: e.isSubdirectory,
		name:           name,
		size:           in.size(),
		modTime:        header.modTime,
		mode:           os.FileMode(header.mode),
		inode:          in,
		uid:            fs.idFor(header.uidIdx),
		gid:            fs.idFor(header.gidIdx),
	}
	switch body := in.getBody().(type) {
	case *basicFile:
		de.xattrs = fs.xattrsFor(noXattrInode)
		_ = body
	case *extendedFile:
		de.xattrs = fs.xattrsFor(body.xAttrIndex)
	case *basicDirectory:
		de.xattrs = fs.xattrsFor(noXattrInode)
	case *extendedDirectory:
		de.xattrs = fs.xattrsFor(body.xAttrIndex)
	case *extendedSymlink:
		de.xattrs = fs.xattrsFor(body.xAttrIndex)
	}
	return de, nil
}

// entriesForDirInode returns the hydrated entries of the directory named by
// a basicDirectory/extendedDirectory inode.
func (fs *FileSystem) entriesForDirInode(in inode) ([]*directoryEntry, error) {
	var block uint32
	var offset uint16
	var size int
	switch body := in.getBody().(type) {
	case *basicDirectory:
		block, offset, size = body.startBlock, body.offset, int(body.fileSize)
	case *extendedDirectory:
		block, offset, size = body.startBlock, body.offset, int(body.fileSize)
	default:
		return nil, fmt.Errorf("%w: inode is not a directory", ErrNotADirectory)
	}
	if size <= dirHeaderSize {
		return nil, nil
	}
	mr := fs.dirMetadataReader()
	cur := mr.newCursor(int64(block), int(offset))
	raw, err := readDirectory(cur, size-3)
	if err != nil {
		return nil, err
	}
	entries := make([]*directoryEntry, 0, len(raw))
	for _, e := range raw {
		de, err := fs.hydrate(e.name, e)
		if err != nil {
			return nil, err
		}
		entries = append(entries, de)
	}
	return entries, nil
}

// readDirectory resolves p to a directory inode and returns its hydrated
// entries.
func (fs *FileSystem) readDirectory(p string) ([]*directoryEntry, error) {
	in, err := fs.resolve(p)
	if err != nil {
		return nil, err
	}
	return fs.entriesForDirInode(in)
}

// ReadDir reads the directory named by p and returns its immediate entries
// as fs.DirEntry, matching io/fs.ReadDirFS. p follows the io/fs convention:
// "." names the archive root, and a leading "/" is rejected rather than
// silently treated as root.
func (fs *FileSystem) ReadDir(p string) ([]iofs.DirEntry, error) {
	if strings.HasPrefix(p, "/") {
		return nil, fmt.Errorf("path %q must not begin with /, use \".\" for the archive root", p)
	}
	entries, err := fs.readDirectory(p)
	if err != nil {
		return nil, err
	}
	out := make([]iofs.DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	return out, nil
}

// resolve walks p component by component from the root inode. Leading and
// trailing slashes are stripped rather than rejected here; callers exposed
// through io/fs (ReadDir, Open) reject a leading slash themselves before
// reaching this point.
func (fs *FileSystem) resolve(p string) (inode, error) {
	clean := strings.Trim(path.Clean("/"+p), "/")
	if clean == "" || clean == "." {
		return fs.rootDir, nil
	}
	current := fs.rootDir
	for _, part := range strings.Split(clean, "/") {
		entries, err := fs.entriesForDirInode(current)
		if err != nil {
			return nil, err
		}
		var next inode
		for _, e := range entries {
			if e.name == part {
				next = e.inode
				break
			}
		}
		if next == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoSuchFile, p)
		}
		current = next
	}
	return current, nil
}

// Stat returns the os.FileInfo for the given path.
func (fs *FileSystem) Stat(p string) (os.FileInfo, error) {
	dir, base := path.Split(path.Clean("/" + p))
	if base == "" || base == "/" {
		in, err := fs.resolve(p)
		if err != nil {
			return nil, err
		}
		header := in.getHeader()
		return &directoryEntry{
			isSubdirectory: true,
			name:           "/",
			size:           in.size(),
			modTime:        header.modTime,
			mode:           os.FileMode(header.mode),
			inode:          in,
		}, nil
	}
	parent, err := fs.resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := fs.entriesForDirInode(parent)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.name == base {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoSuchFile, p)
}

// OpenFile opens the regular file at p for reading.
func (fs *FileSystem) OpenFile(p string, flag int) (filesystem.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		return nil, filesystem.ErrReadonlyFilesystem
	}
	in, err := fs.resolve(p)
	if err != nil {
		return nil, err
	}
	var ef *extendedFile
	switch body := in.getBody().(type) {
	case *extendedFile:
		ef = body
	case *basicFile:
		e := body.toExtended()
		ef = &e
	default:
		return nil, fmt.Errorf("%s is not a regular file", p)
	}
	return &File{
		extendedFile: ef,
		filesystem:   fs,
	}, nil
}

// Open opens the named file for reading, matching io/fs.FS.
func (fs *FileSystem) Open(name string) (iofs.File, error) {
	if strings.HasPrefix(name, "/") {
		return nil, fmt.Errorf("path %q must not begin with /, io/fs names are always relative", name)
	}
	f, err := fs.OpenFile(name, os.O_RDONLY)
	if err != nil {
		return nil, err
	}
	return f.(iofs.File), nil
}
