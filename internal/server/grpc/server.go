// Package grpc exposes the identity service over gRPC.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/adminvault/internal/identityrpc"
	"github.com/dmitrijs2005/adminvault/internal/logging"
	"github.com/dmitrijs2005/adminvault/internal/server/services"
	"google.golang.org/grpc"
)

// AccountService is the business logic behind the handlers.
type AccountService interface {
	SignUp(ctx context.Context, email, password string) (*services.Session, error)
	SignIn(ctx context.Context, email, password string) (*services.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*services.Session, error)
	SignOut(ctx context.Context, accountID, refreshToken string) error
}

type GRPCServer struct {
	address   string
	accounts  AccountService
	logger    logging.Logger
	jwtSecret []byte
	limiter   *peerLimiter
}

// NewGRPCServer builds a server for address. rps and burst bound the
// request rate of every peer; rps <= 0 disables limiting.
func NewGRPCServer(address string, l logging.Logger, accounts AccountService, secretKey string, rps float64, burst int) *GRPCServer {
	return &GRPCServer{
		address:   address,
		accounts:  accounts,
		logger:    l.With("module", "grpc_server"),
		jwtSecret: []byte(secretKey),
		limiter:   newPeerLimiter(rps, burst),
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.rateLimitInterceptor, s.accessTokenInterceptor))
	identityrpc.RegisterIdentityServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled, then stops
// gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	return srv.Serve(lis)
}
