package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/peer"
)

func TestPeerLimiter_Disabled(t *testing.T) {
	assert.Nil(t, newPeerLimiter(0, 5))
}

func TestPeerLimiter_SeparateBuckets(t *testing.T) {
	l := newPeerLimiter(1, 1)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"))

	now = now.Add(time.Second)
	assert.True(t, l.allow("10.0.0.1"))
}

func TestPeerLimiter_EvictsIdle(t *testing.T) {
	l := newPeerLimiter(1, 1)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < maxTrackedPeers; i++ {
		l.allow(net.IPv4(10, byte(i>>16), byte(i>>8), byte(i)).String())
	}
	require.Len(t, l.peers, maxTrackedPeers)

	now = now.Add(peerIdleTTL + time.Minute)
	l.allow("192.168.0.1")
	assert.Len(t, l.peers, 1)
}

func TestPeerKey(t *testing.T) {
	assert.Equal(t, "unknown", peerKey(context.Background()))

	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.IPv4(10, 1, 2, 3), Port: 5555}})
	assert.Equal(t, "10.1.2.3", peerKey(ctx))
}

func TestAccountIDFromContext(t *testing.T) {
	_, ok := accountIDFromContext(context.Background())
	assert.False(t, ok)

	id, ok := accountIDFromContext(context.WithValue(context.Background(), accountIDKey, "a1"))
	assert.True(t, ok)
	assert.Equal(t, "a1", id)
}
