package grpc

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/dmitrijs2005/adminvault/internal/common"
	"github.com/dmitrijs2005/adminvault/internal/identityrpc"
	"github.com/dmitrijs2005/adminvault/internal/server/auth"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type ctxKey string

const accountIDKey ctxKey = "accountID"

// authenticated lists the methods that require an access token.
var authenticated = map[string]bool{
	identityrpc.FullMethod("SignOut"): true,
}

func accountIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(accountIDKey).(string)
	return id, ok && id != ""
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !authenticated[info.FullMethod] {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AccessTokenHeaderName); len(values) > 0 {
			accessToken = values[0]
		}
	}
	if accessToken == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	accountID, err := auth.GetAccountIDFromToken(accessToken, s.jwtSecret)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
		}
		return nil, status.Error(codes.Unauthenticated, common.ErrInvalidToken.Error())
	}

	return handler(context.WithValue(ctx, accountIDKey, accountID), req)
}

// rateLimitInterceptor throttles each peer separately. Ping is exempt so
// health checks keep working while a peer is throttled.
func (s *GRPCServer) rateLimitInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if s.limiter == nil || info.FullMethod == identityrpc.FullMethod("Ping") {
		return handler(ctx, req)
	}
	if !s.limiter.allow(peerKey(ctx)) {
		s.logger.Warn(ctx, "rate limited", "peer", peerKey(ctx), "method", info.FullMethod)
		return nil, status.Error(codes.ResourceExhausted, "too many requests")
	}
	return handler(ctx, req)
}

func peerKey(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return p.Addr.String()
	}
	return host
}

const (
	maxTrackedPeers = 4096
	peerIdleTTL     = 10 * time.Minute
)

type peerEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type peerLimiter struct {
	mu    sync.Mutex
	rps   rate.Limit
	burst int
	peers map[string]*peerEntry
	now   func() time.Time
}

func newPeerLimiter(rps float64, burst int) *peerLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &peerLimiter{
		rps:   rate.Limit(rps),
		burst: burst,
		peers: make(map[string]*peerEntry),
		now:   time.Now,
	}
}

func (l *peerLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.peers[key]
	if !ok {
		if len(l.peers) >= maxTrackedPeers {
			l.evictIdle(now)
		}
		e = &peerEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.peers[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (l *peerLimiter) evictIdle(now time.Time) {
	for k, e := range l.peers {
		if now.Sub(e.lastSeen) > peerIdleTTL {
			delete(l.peers, k)
		}
	}
}
