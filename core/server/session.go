package server

import (
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/pyropy/partstream/core/model"
	"github.com/pyropy/partstream/lib/schedule"
)

// session is the server side state of one peer. It is only touched from the
// event loop.
type session struct {
	ID    uuid.UUID
	Lease model.Lease

	// Partition is the last partition the peer requested.
	Partition int

	// last MISSING_PACKET coordinates, resent by the repair task
	MissingIndex     int
	MissingPartition int
	HasMissing       bool

	repair *schedule.Task
}

func newSession(peer net.Addr, ttl time.Duration) *session {
	return &session{
		ID:    uuid.New(),
		Lease: model.NewLease(peer, ttl),
	}
}

func (s *session) resetMissing() {
	s.MissingIndex = 0
	s.MissingPartition = 0
	s.HasMissing = false
}

func (s *session) cancelRepair() {
	s.repair.Cancel()
	s.repair = nil
}
