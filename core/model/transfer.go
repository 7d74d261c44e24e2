package model

import (
	"time"

	"github.com/google/uuid"
)

// Transfer describes a completed download.
type Transfer struct {
	ID         uuid.UUID
	Server     string
	OutputPath string
	Bytes      int
	Chunks     int
	Partitions int
	Checksum   int
	StartedAt  time.Time
	FinishedAt time.Time
}

func NewTransfer(server string) Transfer {
	return Transfer{
		ID:        uuid.New(),
		Server:    server,
		StartedAt: time.Now(),
	}
}

func (t Transfer) Duration() time.Duration {
	return t.FinishedAt.Sub(t.StartedAt)
}
