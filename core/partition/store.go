// Package partition splits a file into fixed size chunks grouped into
// partitions of equal chunk count. Only the last partition may be shorter.
package partition

import (
	"errors"
	"fmt"
	"os"

	"github.com/pyropy/partstream/core/model"
	"github.com/pyropy/partstream/core/wire"
	"github.com/pyropy/partstream/lib/checksum"
)

var (
	ErrNotFound      = errors.New("chunk not found")
	ErrFileTooLarge  = errors.New("file has more chunks than the wire index can address")
	ErrInvalidLayout = errors.New("chunk size and partition count must be positive")
)

// Store holds the chunks of a file. It is immutable after construction and
// safe for concurrent reads.
type Store struct {
	chunks             []model.Chunk
	chunksPerPartition int
	partitionCount     int
	size               int
	checksum           int
}

func NewStore(data []byte, chunkSize, numPartitions int) (*Store, error) {
	if chunkSize <= 0 || numPartitions <= 0 {
		return nil, ErrInvalidLayout
	}

	if chunkSize > wire.MaxChunkSize {
		return nil, fmt.Errorf("%w: chunk size %d exceeds %d", ErrInvalidLayout, chunkSize, wire.MaxChunkSize)
	}

	numChunks := (len(data) + chunkSize - 1) / chunkSize
	if numChunks > wire.MaxIndex+1 {
		return nil, fmt.Errorf("%w: %d chunks", ErrFileTooLarge, numChunks)
	}

	perPartition := (numChunks + numPartitions - 1) / numPartitions
	if perPartition > wire.MaxIndex {
		return nil, fmt.Errorf("%w: %d chunks per partition", ErrFileTooLarge, perPartition)
	}

	s := &Store{
		chunks:             make([]model.Chunk, 0, numChunks),
		chunksPerPartition: perPartition,
		size:               len(data),
		checksum:           checksum.CalculateCheckSum(data),
	}

	if perPartition > 0 {
		s.partitionCount = (numChunks + perPartition - 1) / perPartition
	}

	for idx := 0; idx < numChunks; idx++ {
		start := idx * chunkSize
		end := min(start+chunkSize, len(data))

		s.chunks = append(s.chunks, model.Chunk{
			Index: idx,
			Data:  data[start:end:end],
		})
	}

	return s, nil
}

// Load reads the file at path into a Store.
func Load(path string, chunkSize, numPartitions int) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return NewStore(data, chunkSize, numPartitions)
}

func (s *Store) PartitionCount() int {
	return s.partitionCount
}

// ChunkCountPerPartition is the chunk count of every partition but the last.
func (s *Store) ChunkCountPerPartition() int {
	return s.chunksPerPartition
}

// ChunkCount returns the number of chunks in the partition at offset, or 0
// when offset is out of range.
func (s *Store) ChunkCount(offset int) int {
	if offset < 0 || offset >= s.partitionCount {
		return 0
	}

	start := offset * s.chunksPerPartition
	return min(s.chunksPerPartition, len(s.chunks)-start)
}

// Chunk returns the data of the chunk at localIndex within partition offset.
func (s *Store) Chunk(offset, localIndex int) ([]byte, error) {
	if localIndex < 0 || localIndex >= s.ChunkCount(offset) {
		return nil, fmt.Errorf("%w: partition %d index %d", ErrNotFound, offset, localIndex)
	}

	return s.chunks[s.GlobalIndex(offset, localIndex)].Data, nil
}

func (s *Store) GlobalIndex(offset, localIndex int) int {
	return offset*s.chunksPerPartition + localIndex
}

func (s *Store) IsLastPartition(offset int) bool {
	return offset == s.partitionCount-1
}

func (s *Store) NumChunks() int {
	return len(s.chunks)
}

// Size is the file size in bytes.
func (s *Store) Size() int {
	return s.size
}

func (s *Store) Checksum() int {
	return s.checksum
}

func min(x, y int) int {
	if x < y {
		return x
	}

	return y
}
