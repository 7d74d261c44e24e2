package cache

// entry is a node of the recency list. The list is bounded by two sentinel
// nodes, oldest entries sit next to head.
type entry struct {
	key int
	val []byte

	prev *entry
	next *entry
}

// LRU keeps the most recently used encoded datagrams keyed by global chunk
// index. It is not safe for concurrent use.
type LRU struct {
	capacity int
	entries  map[int]*entry

	head *entry
	tail *entry

	hits   int
	misses int
}

func NewLRU(capacity int) *LRU {
	if capacity < 1 {
		capacity = 1
	}

	head, tail := &entry{}, &entry{}
	head.next = tail
	tail.prev = head

	return &LRU{
		capacity: capacity,
		entries:  make(map[int]*entry, capacity),
		head:     head,
		tail:     tail,
	}
}

func (l *LRU) Put(key int, value []byte) {
	if e, exists := l.entries[key]; exists {
		e.val = value
		l.moveToBack(e)
		return
	}

	e := &entry{key: key, val: value}
	l.entries[key] = e
	l.pushBack(e)

	if len(l.entries) > l.capacity {
		l.evict()
	}
}

func (l *LRU) Get(key int) ([]byte, bool) {
	e, exists := l.entries[key]
	if !exists {
		l.misses++
		return nil, false
	}

	l.hits++
	l.moveToBack(e)

	return e.val, true
}

func (l *LRU) Len() int {
	return len(l.entries)
}

// Stats returns cache hits and misses since creation.
func (l *LRU) Stats() (hits, misses int) {
	return l.hits, l.misses
}

func (l *LRU) evict() {
	oldest := l.head.next
	l.unlink(oldest)
	delete(l.entries, oldest.key)
}

func (l *LRU) moveToBack(e *entry) {
	l.unlink(e)
	l.pushBack(e)
}

func (l *LRU) pushBack(e *entry) {
	prev := l.tail.prev

	e.prev = prev
	e.next = l.tail

	prev.next = e
	l.tail.prev = e
}

func (l *LRU) unlink(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
}
