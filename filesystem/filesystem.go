// Package filesystem provides interfaces and constants required for filesystem implementations.
// The implementation lives in github.com/kofj/go-squashfs/filesystem/squashfs.
package filesystem

import (
	"errors"
	iofs "io/fs"
)

var (
	ErrNotSupported       = errors.New("method not supported by this filesystem")
	ErrNotImplemented     = errors.New("method not implemented (patches are welcome)")
	ErrReadonlyFilesystem = errors.New("read-only filesystem")
)

// FileSystem is a reference to a single read-only filesystem on a disk.
// Mutating operations (Mkdir, Chmod, Rename, ...) are not part of this
// surface: a squashfs archive cannot be modified in place, so a generic
// interface built around write support has nothing to offer here.
type FileSystem interface {
	// Type return the type of filesystem
	Type() Type
	// ReadDir reads the contents of a directory, matching io/fs.ReadDirFS
	ReadDir(pathname string) ([]iofs.DirEntry, error)
	// OpenFile opens a handle to read a file; write flags return ErrReadonlyFilesystem
	OpenFile(pathname string, flag int) (File, error)
	// Label get the label for the filesystem, or "" if none. Be careful to trim it, as it may contain
	// leading or following whitespace. The label is passed as-is and not cleaned up at all.
	Label() string
}

// Type represents the type of disk this is
type Type int

const (
	// TypeFat32 is a FAT32 compatible filesystem
	TypeFat32 Type = iota
	// TypeISO9660 is an iso filesystem
	TypeISO9660
	// TypeSquashfs is a squashfs filesystem
	TypeSquashfs
	// TypeExt4 is an ext4 compatible filesystem
	TypeExt4
)
