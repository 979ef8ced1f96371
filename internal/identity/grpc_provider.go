package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/adminvault/internal/common"
	"github.com/dmitrijs2005/adminvault/internal/identityrpc"
	"github.com/dmitrijs2005/adminvault/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// TokenStore persists the refresh token between runs. Get returns
// (nil, nil) for a missing key.
type TokenStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type savedSession struct {
	UID          string `json:"uid"`
	Email        string `json:"email"`
	RefreshToken string `json:"refreshToken"`
}

// GRPCProvider talks to the identity daemon. Each instance is an
// independent context with its own tokens.
type GRPCProvider struct {
	notifier

	name   string
	conn   *grpc.ClientConn
	client identityrpc.IdentityClient
	tokens TokenStore
	logger logging.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// DialProvider connects to endpoint. name distinguishes persisted sessions
// of different contexts; tokens may be nil for a context that must not
// survive a restart.
func DialProvider(name, endpoint string, tokens TokenStore, logger logging.Logger) (*GRPCProvider, error) {
	p := newGRPCProvider(name, nil, tokens, logger)

	conn, err := identityrpc.Dial(endpoint, grpc.WithChainUnaryInterceptor(p.accessTokenInterceptor))
	if err != nil {
		return nil, fmt.Errorf("dial identity provider: %w", err)
	}
	p.conn = conn
	p.client = identityrpc.NewIdentityClient(conn)
	return p, nil
}

func newGRPCProvider(name string, client identityrpc.IdentityClient, tokens TokenStore, logger logging.Logger) *GRPCProvider {
	return &GRPCProvider{
		name:   name,
		client: client,
		tokens: tokens,
		logger: logger.With("module", "identity_provider", "context", name),
	}
}

func (p *GRPCProvider) sessionKey() string { return "session_" + p.name }

func (p *GRPCProvider) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

func (p *GRPCProvider) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	resp, err := p.client.SignIn(ctx, &identityrpc.SignInRequest{Email: email, Password: password})
	if err != nil {
		return nil, mapError(err)
	}
	return p.establish(ctx, resp), nil
}

func (p *GRPCProvider) CreateAccount(ctx context.Context, email, password string) (*Identity, error) {
	resp, err := p.client.SignUp(ctx, &identityrpc.SignUpRequest{Email: email, Password: password})
	if err != nil {
		return nil, mapError(err)
	}
	return p.establish(ctx, resp), nil
}

// SignOut ends the local session. Revoking the refresh token on the
// daemon is best effort.
func (p *GRPCProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	refresh := p.refreshToken
	p.mu.Unlock()

	if refresh != "" {
		if _, err := p.client.SignOut(ctx, &identityrpc.SignOutRequest{RefreshToken: refresh}); err != nil {
			p.logger.Warn(ctx, "failed to revoke refresh token", "error", err)
		}
	}

	p.mu.Lock()
	p.accessToken = ""
	p.refreshToken = ""
	p.mu.Unlock()

	if p.tokens != nil {
		p.forgetSession(ctx)
	}

	p.publish(nil)
	return nil
}

// Restore re-establishes a persisted session by exchanging its refresh
// token. It returns (nil, nil) when there is nothing to restore or the
// daemon no longer accepts the token.
func (p *GRPCProvider) Restore(ctx context.Context) (*Identity, error) {
	if p.tokens == nil {
		return nil, nil
	}

	raw, err := p.tokens.Get(ctx, p.sessionKey())
	if err != nil {
		return nil, fmt.Errorf("read persisted session: %w", err)
	}
	if raw == nil {
		return nil, nil
	}

	var saved savedSession
	if err := json.Unmarshal(raw, &saved); err != nil || saved.RefreshToken == "" {
		p.logger.Warn(ctx, "discarding malformed persisted session")
		p.forgetSession(ctx)
		return nil, nil
	}

	resp, err := p.client.Refresh(ctx, &identityrpc.RefreshRequest{RefreshToken: saved.RefreshToken})
	if err != nil {
		mapped := mapError(err)
		if errors.Is(mapped, ErrInvalidCredentials) {
			p.logger.Info(ctx, "persisted session rejected", "uid", saved.UID)
			p.forgetSession(ctx)
			return nil, nil
		}
		return nil, mapped
	}
	if resp.Email == "" {
		resp.Email = saved.Email
	}
	return p.establish(ctx, resp), nil
}

func (p *GRPCProvider) forgetSession(ctx context.Context) {
	if err := p.tokens.Delete(ctx, p.sessionKey()); err != nil {
		p.logger.Warn(ctx, "failed to forget persisted session", "error", err)
	}
}

func (p *GRPCProvider) Ping(ctx context.Context) error {
	resp, err := p.client.Ping(ctx, &identityrpc.PingRequest{})
	if err != nil {
		return mapError(err)
	}
	if resp.Status != "OK" {
		return fmt.Errorf("%w: status %q", ErrUnavailable, resp.Status)
	}
	return nil
}

func (p *GRPCProvider) establish(ctx context.Context, resp *identityrpc.SessionResponse) *Identity {
	p.mu.Lock()
	p.accessToken = resp.AccessToken
	p.refreshToken = resp.RefreshToken
	p.mu.Unlock()

	id := &Identity{UID: resp.UID, Email: resp.Email}
	p.persist(ctx, id, resp.RefreshToken)
	p.publish(id)
	return id
}

func (p *GRPCProvider) persist(ctx context.Context, id *Identity, refresh string) {
	if p.tokens == nil {
		return
	}
	data, err := json.Marshal(savedSession{UID: id.UID, Email: id.Email, RefreshToken: refresh})
	if err != nil {
		return
	}
	if err := p.tokens.Set(ctx, p.sessionKey(), data); err != nil {
		p.logger.Warn(ctx, "failed to persist session", "error", err)
	}
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

// accessTokenInterceptor attaches the access token and, when the daemon
// reports it expired, refreshes the token pair once and retries.
func (p *GRPCProvider) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	p.mu.Lock()
	access, refresh := p.accessToken, p.refreshToken
	p.mu.Unlock()

	if access != "" {
		ctx = withAccessToken(ctx, access)
	}

	err := invoker(ctx, method, req, reply, cc, opts...)
	if err == nil || method == identityrpc.FullMethod("Refresh") || refresh == "" {
		return err
	}

	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Unauthenticated || st.Message() != common.ErrTokenExpired.Error() {
		return err
	}

	resp, rerr := p.client.Refresh(ctx, &identityrpc.RefreshRequest{RefreshToken: refresh})
	if rerr != nil {
		return err
	}

	p.mu.Lock()
	p.accessToken = resp.AccessToken
	p.refreshToken = resp.RefreshToken
	p.mu.Unlock()
	p.persist(ctx, &Identity{UID: resp.UID, Email: resp.Email}, resp.RefreshToken)

	return invoker(withAccessToken(ctx, resp.AccessToken), method, req, reply, cc, opts...)
}

func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unauthenticated:
		return ErrInvalidCredentials
	case codes.AlreadyExists:
		return ErrEmailInUse
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidInput, st.Message())
	case codes.ResourceExhausted:
		return ErrRateLimited
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	default:
		return fmt.Errorf("identity provider: %w", err)
	}
}
