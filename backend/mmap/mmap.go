//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris
// +build aix darwin dragonfly freebsd linux netbsd openbsd solaris

// Package mmap provides a backend.Storage backed by a memory-mapped file.
// A squashfs archive is read over and over at essentially random offsets
// (table pointers, inode lookups, directory walks), which is exactly the
// access pattern mmap is for: the kernel pages in blocks on first touch and
// keeps hot ones resident, with no read syscall on a cache hit; ReadAt
// still copies the requested bytes out of the mapping.
package mmap

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"

	"github.com/kofj/go-squashfs/backend"
)

// Storage is a backend.Storage backed by a read-only mmap of a file.
type Storage struct {
	f      *os.File
	data   []byte
	offset int64
}

// Open mmaps the file at pathName read-only and returns a backend.Storage
// over its full contents.
func Open(pathName string) (backend.Storage, error) {
	f, err := os.Open(pathName)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", pathName, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("could not stat %s: %w", pathName, err)
	}
	if info.Size() == 0 {
		f.Close()
		return nil, errors.New("cannot mmap an empty file")
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", pathName, err)
	}
	return &Storage{f: f, data: data}, nil
}

// backend.Storage interface guard
var _ backend.Storage = (*Storage)(nil)

func (s *Storage) Stat() (fs.FileInfo, error) {
	return s.f.Stat()
}

func (s *Storage) Read(b []byte) (int, error) {
	n, err := s.ReadAt(b, s.offset)
	s.offset += int64(n)
	return n, err
}

func (s *Storage) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *Storage) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = s.offset + offset
	case io.SeekEnd:
		pos = int64(len(s.data)) + offset
	default:
		return -1, backend.ErrNotSuitable
	}
	if pos < 0 {
		return -1, fmt.Errorf("invalid seek to negative offset %d", pos)
	}
	s.offset = pos
	return pos, nil
}

// Close unmaps the file and closes its descriptor.
func (s *Storage) Close() error {
	err := unix.Munmap(s.data)
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Sys returns the underlying *os.File, for ioctl-style callers.
func (s *Storage) Sys() (*os.File, error) {
	return s.f, nil
}

// Writable always fails: a read-only mmap offers no WritableFile.
func (s *Storage) Writable() (backend.WritableFile, error) {
	return nil, backend.ErrIncorrectOpenMode
}
