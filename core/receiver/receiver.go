// Package receiver buffers the chunks of the partition a client is currently
// collecting and detects gaps in it.
package receiver

import (
	"errors"
	"fmt"
)

var ErrIncomplete = errors.New("partition is incomplete")

type StoreResult int

const (
	Stored StoreResult = iota
	Duplicate
	OutOfWindow
)

func (r StoreResult) String() string {
	switch r {
	case Stored:
		return "stored"
	case Duplicate:
		return "duplicate"
	case OutOfWindow:
		return "out of window"
	default:
		return fmt.Sprintf("StoreResult(%d)", int(r))
	}
}

// Receiver holds one slot per chunk of the current partition. A nil slot
// has not been received yet. It is not safe for concurrent use.
type Receiver struct {
	slots  [][]byte
	filled int

	offset               int
	defaultPartitionSize int
}

func New() *Receiver {
	return &Receiver{}
}

// BeginPartition replaces the buffer with chunkCount empty slots.
func (r *Receiver) BeginPartition(chunkCount int) {
	if chunkCount < 0 {
		chunkCount = 0
	}

	r.slots = make([][]byte, chunkCount)
	r.filled = 0
}

// SetDefaultPartitionSize sets the chunk count of a full partition, used to
// translate global chunk indices into slot indices.
func (r *Receiver) SetDefaultPartitionSize(n int) {
	r.defaultPartitionSize = n
}

func (r *Receiver) SetPartitionOffset(offset int) {
	r.offset = offset
}

func (r *Receiver) PartitionOffset() int {
	return r.offset
}

// LocalIndex maps a global chunk index into the current partition.
func (r *Receiver) LocalIndex(globalIndex int) int {
	return globalIndex - r.offset*r.defaultPartitionSize
}

// Store writes data into the slot of globalIndex if the slot is still empty.
// The data is copied.
func (r *Receiver) Store(globalIndex int, data []byte) StoreResult {
	local := r.LocalIndex(globalIndex)
	if local < 0 || local >= len(r.slots) {
		return OutOfWindow
	}

	if r.slots[local] != nil {
		return Duplicate
	}

	r.slots[local] = append([]byte{}, data...)
	r.filled++

	return Stored
}

// FirstMissingIndex returns the lowest empty slot.
func (r *Receiver) FirstMissingIndex() (int, bool) {
	if r.filled == len(r.slots) {
		return 0, false
	}

	for i, s := range r.slots {
		if s == nil {
			return i, true
		}
	}

	return 0, false
}

func (r *Receiver) IsComplete() bool {
	return r.filled == len(r.slots)
}

// Drain returns the slots in order and empties the buffer. It fails with
// ErrIncomplete while any slot is empty.
func (r *Receiver) Drain() ([][]byte, error) {
	if !r.IsComplete() {
		missing, _ := r.FirstMissingIndex()
		return nil, fmt.Errorf("%w: slot %d of partition %d", ErrIncomplete, missing, r.offset)
	}

	slots := r.slots
	r.slots = nil
	r.filled = 0

	return slots, nil
}

// Len is the slot count of the current partition.
func (r *Receiver) Len() int {
	return len(r.slots)
}

func (r *Receiver) Filled() int {
	return r.filled
}
