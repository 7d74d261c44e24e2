package model

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLeaseExpiry(t *testing.T) {
	peer := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 41236}

	l := NewLease(peer, -time.Second)
	require.True(t, l.IsExpired())

	l.Renew(time.Minute)
	require.False(t, l.IsExpired())
	require.Equal(t, peer, l.Peer)
}

func TestTransferDuration(t *testing.T) {
	tr := NewTransfer("127.0.0.1:41234")
	tr.FinishedAt = tr.StartedAt.Add(3 * time.Second)

	require.Equal(t, 3*time.Second, tr.Duration())
	require.NotEqual(t, tr.ID, NewTransfer("x").ID)
}
