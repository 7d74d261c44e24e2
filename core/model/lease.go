package model

import (
	"net"
	"time"
)

// Lease marks how long the server keeps state for a peer without hearing
// from it.
type Lease struct {
	Peer       net.Addr
	ValidUntil time.Time
}

func NewLease(peer net.Addr, ttl time.Duration) Lease {
	return Lease{
		Peer:       peer,
		ValidUntil: time.Now().Add(ttl),
	}
}

func (l *Lease) Renew(ttl time.Duration) {
	l.ValidUntil = time.Now().Add(ttl)
}

func (l *Lease) IsExpired() bool {
	now := time.Now()

	return !l.ValidUntil.After(now)
}
