package squashfs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/kofj/go-squashfs/filesystem"
)

// File represents a single open regular file inside a squashfs archive.
// squashfs is always read-only, so Write is implemented only to satisfy
// filesystem.File and always fails.
type File struct {
	extendedFile *extendedFile
	isReadWrite  bool
	isAppend     bool
	offset       int64
	filesystem   *FileSystem
}

// Read reads up to len(b) bytes starting at the file's current offset,
// resolving them out of the archive's block list and, for the final
// partial block, its tail-packing fragment.
func (f *File) Read(b []byte) (int, error) {
	if f == nil || f.extendedFile == nil {
		return 0, os.ErrClosed
	}
	size := int64(f.extendedFile.fileSize)
	if f.offset >= size {
		return 0, io.EOF
	}
	content, err := f.readAll()
	if err != nil {
		return 0, err
	}
	n := copy(b, content[f.offset:])
	f.offset += int64(n)
	var retErr error
	if f.offset >= size {
		retErr = io.EOF
	}
	return n, retErr
}

// readAll assembles the full decompressed content of the file: every entry
// of its block list in order, followed by its fragment tail, if any.
func (f *File) readAll() ([]byte, error) {
	ef := f.extendedFile
	fs := f.filesystem
	out := make([]byte, 0, ef.fileSize)
	loc := int64(ef.startBlock)
	for _, bd := range ef.blockSizes {
		data, err := fs.readBlock(loc, bd.compressed, bd.size)
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
		loc += int64(bd.size)
	}
	if ef.fragmentBlockIndex != noFragment {
		remaining := int64(ef.fileSize) - int64(len(out))
		frag, err := fs.readFragment(ef.fragmentBlockIndex, ef.fragmentOffset, remaining)
		if err != nil {
			return nil, err
		}
		out = append(out, frag...)
	}
	if int64(len(out)) > int64(ef.fileSize) {
		out = out[:ef.fileSize]
	}
	return out, nil
}

// Write always fails: squashfs archives are read-only.
func (f *File) Write(b []byte) (int, error) {
	return 0, filesystem.ErrReadonlyFilesystem
}

// Seek repositions the file's offset. Seeking from the end walks backward
// from fileSize by offset, matching this package's existing behavior;
// seeking before the start of the file is an error.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f == nil || f.extendedFile == nil {
		return 0, os.ErrClosed
	}
	var newOffset int64
	switch whence {
	case io.SeekStart:
		newOffset = offset
	case io.SeekCurrent:
		newOffset = f.offset + offset
	case io.SeekEnd:
		newOffset = int64(f.extendedFile.fileSize) - offset
	default:
		return f.offset, fmt.Errorf("invalid whence %d", whence)
	}
	if newOffset < 0 {
		return f.offset, fmt.Errorf("Cannot set offset %d before start of file", offset)
	}
	f.offset = newOffset
	return f.offset, nil
}

// Close drops the file's reference to its FileSystem; a squashfs.File holds
// no OS-level resource of its own.
func (f *File) Close() error {
	f.filesystem = nil
	return nil
}

// Stat returns basic file metadata. squashfs.File does not retain the name
// or permission bits of its directory entry, so callers that need those
// should use FileSystem.Stat on the file's path instead.
func (f *File) Stat() (fs.FileInfo, error) {
	if f == nil || f.extendedFile == nil {
		return nil, os.ErrClosed
	}
	return &fileStat{size: int64(f.extendedFile.fileSize)}, nil
}

// ReadDir satisfies fs.ReadDirFile; regular files are never directories.
func (f *File) ReadDir(n int) ([]fs.DirEntry, error) {
	return nil, fmt.Errorf("%w: not a directory", ErrNotADirectory)
}

type fileStat struct {
	size int64
}

func (s *fileStat) Name() string       { return "" }
func (s *fileStat) Size() int64        { return s.size }
func (s *fileStat) Mode() os.FileMode  { return 0o444 }
func (s *fileStat) ModTime() time.Time { return time.Time{} }
func (s *fileStat) IsDir() bool        { return false }
func (s *fileStat) Sys() any           { return nil }
