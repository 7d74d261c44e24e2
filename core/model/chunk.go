package model

// Chunk is a slice of the transferred file addressed by its global index.
type Chunk struct {
	Index int
	Data  []byte
}
