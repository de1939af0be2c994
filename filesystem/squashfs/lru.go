package squashfs

// lruBlock is one decoded metadata block held in the cache, keyed by its
// absolute on-disk byte offset.
type lruBlock struct {
	pos        int64
	data       []byte
	size       uint16
	err        error
	next, prev *lruBlock
}

// lru is a fixed-capacity, most-recently-used-at-front cache of decoded
// metadata blocks, keyed by absolute byte offset. Decoding a metadata block
// requires decompressing it, which on a large archive read without caching
// dominates wall-clock time; the cache exists purely as a performance
// optimization and is never required for correctness.
type lru struct {
	root      lruBlock
	cache     map[int64]*lruBlock
	maxBlocks int
}

func newLRU(maxBlocks int) *lru {
	l := &lru{
		cache:     map[int64]*lruBlock{},
		maxBlocks: maxBlocks,
	}
	l.root.next = &l.root
	l.root.prev = &l.root
	return l
}

// push inserts block at the front of the list (most recently used).
func (l *lru) push(block *lruBlock) {
	block.next = l.root.next
	block.prev = &l.root
	l.root.next.prev = block
	l.root.next = block
}

// unlink removes block from the list, leaving it clear (next/prev nil).
func (l *lru) unlink(block *lruBlock) {
	block.prev.next = block.next
	block.next.prev = block.prev
	block.next = nil
	block.prev = nil
}

// pop removes and returns the least recently used block (the tail). It
// panics if the list is empty, matching the invariant that callers never
// pop an lru with zero blocks.
func (l *lru) pop() *lruBlock {
	if l.root.prev == &l.root {
		panic("lru: list empty")
	}
	block := l.root.prev
	l.unlink(block)
	return block
}

// add inserts block at the front, evicting from the tail until the cache is
// back within maxBlocks.
func (l *lru) add(block *lruBlock) {
	l.push(block)
	l.cache[block.pos] = block
	for len(l.cache) > l.maxBlocks {
		evict := l.pop()
		delete(l.cache, evict.pos)
	}
}

// trim evicts down to n blocks without changing maxBlocks.
func (l *lru) trim(n int) {
	for len(l.cache) > n {
		evict := l.pop()
		delete(l.cache, evict.pos)
	}
}

func (l *lru) setMaxBlocks(n int) {
	l.maxBlocks = n
	l.trim(n)
}

// get returns the cached block at pos if present, promoting it to
// most-recently-used; otherwise it calls fetch, caches the result
// (regardless of whether fetch returned an error, so a permanent decode
// failure isn't retried on every access), and returns it.
func (l *lru) get(pos int64, fetch func() (data []byte, size uint16, err error)) ([]byte, uint16, error) {
	if block, found := l.cache[pos]; found {
		l.unlink(block)
		l.push(block)
		return block.data, block.size, block.err
	}
	data, size, err := fetch()
	block := &lruBlock{pos: pos, data: data, size: size, err: err}
	l.add(block)
	return data, size, err
}
