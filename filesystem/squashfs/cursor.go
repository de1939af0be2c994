package squashfs

import "fmt"

// cursor is an immutable position within a metadata stream (the inode table
// or the directory table): blockStart is the byte offset, relative to the
// table's base offset, of the metadata block's on-disk header; offset is the
// byte offset within that block's decompressed contents. Every read returns
// a new cursor rather than mutating the receiver, so callers can freely
// fork, save and retry reads from a known-good position.
type cursor struct {
	r          *metadataReader
	blockStart int64
	offset     int
}

// metadataReader resolves metadata blocks for a cursor on demand, caching
// decoded blocks when a cache is attached.
type metadataReader struct {
	src        blockSource
	compressor Compressor
	base       int64
	cache      *lru
}

// blockSource is the minimal byte-source a metadataReader needs; satisfied
// by backend.Storage and by plain *os.File.
type blockSource interface {
	ReadAt(p []byte, off int64) (int, error)
}

func newMetadataReader(src blockSource, c Compressor, base int64, cache *lru) *metadataReader {
	return &metadataReader{src: src, compressor: c, base: base, cache: cache}
}

func (r *metadataReader) newCursor(blockStart int64, offset int) cursor {
	return cursor{r: r, blockStart: blockStart, offset: offset}
}

// block returns the decoded contents of the metadata block at c.blockStart
// and the number of on-disk bytes (header+payload) it occupies.
func (c cursor) block() ([]byte, uint16, error) {
	absolute := c.r.base + c.blockStart
	if c.r.cache != nil {
		return c.r.cache.get(absolute, func() ([]byte, uint16, error) {
			return readMetaBlock(c.r.src, c.r.compressor, absolute)
		})
	}
	return readMetaBlock(c.r.src, c.r.compressor, absolute)
}

// read returns the next n bytes starting at the cursor, along with the
// cursor positioned immediately after them. It transparently spans as many
// metadata blocks as needed.
func (c cursor) read(n int) ([]byte, cursor, error) {
	out := make([]byte, 0, n)
	cur := c
	for len(out) < n {
		data, onDiskSize, err := cur.block()
		if err != nil {
			return nil, cursor{}, err
		}
		if cur.offset > len(data) {
			return nil, cursor{}, fmt.Errorf("%w: offset %d beyond block of %d bytes", ErrOffsetBeyondBlock, cur.offset, len(data))
		}
		avail := data[cur.offset:]
		need := n - len(out)
		if need <= len(avail) {
			out = append(out, avail[:need]...)
			cur = cur.r.newCursor(cur.blockStart, cur.offset+need)
			return out, cur, nil
		}
		out = append(out, avail...)
		cur = cur.r.newCursor(cur.blockStart+int64(onDiskSize), 0)
	}
	return out, cur, nil
}

// skip advances the cursor by n bytes without retaining the data read.
func (c cursor) skip(n int) (cursor, error) {
	_, next, err := c.read(n)
	return next, err
}
