package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/adminvault/internal/common"
	"github.com/dmitrijs2005/adminvault/internal/cryptox"
	"github.com/dmitrijs2005/adminvault/internal/identityrpc"
	"github.com/dmitrijs2005/adminvault/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ identityrpc.IdentityServer = (*GRPCServer)(nil)

func (s *GRPCServer) SignUp(ctx context.Context, req *identityrpc.SignUpRequest) (*identityrpc.SessionResponse, error) {
	sess, err := s.accounts.SignUp(ctx, req.Email, req.Password)
	if err != nil {
		return nil, s.toStatus(ctx, "sign up", err)
	}

	s.logger.Info(ctx, "Account created", "uid", sess.AccountID, "email_hash", cryptox.EmailHash(sess.Email))
	return toResponse(sess), nil
}

func (s *GRPCServer) SignIn(ctx context.Context, req *identityrpc.SignInRequest) (*identityrpc.SessionResponse, error) {
	sess, err := s.accounts.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		return nil, s.toStatus(ctx, "sign in", err)
	}
	return toResponse(sess), nil
}

func (s *GRPCServer) Refresh(ctx context.Context, req *identityrpc.RefreshRequest) (*identityrpc.SessionResponse, error) {
	sess, err := s.accounts.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return nil, s.toStatus(ctx, "refresh", err)
	}
	return toResponse(sess), nil
}

func (s *GRPCServer) SignOut(ctx context.Context, req *identityrpc.SignOutRequest) (*identityrpc.SignOutResponse, error) {
	accountID, ok := accountIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	if err := s.accounts.SignOut(ctx, accountID, req.RefreshToken); err != nil {
		return nil, s.toStatus(ctx, "sign out", err)
	}
	return &identityrpc.SignOutResponse{}, nil
}

func (s *GRPCServer) Ping(context.Context, *identityrpc.PingRequest) (*identityrpc.PingResponse, error) {
	return &identityrpc.PingResponse{Status: "OK"}, nil
}

func toResponse(sess *services.Session) *identityrpc.SessionResponse {
	return &identityrpc.SessionResponse{
		UID:          sess.AccountID,
		Email:        sess.Email,
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
	}
}

// toStatus maps service errors to gRPC codes. Unexpected errors are logged
// and surface as a bare Internal.
func (s *GRPCServer) toStatus(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidEmail), errors.Is(err, services.ErrWeakPassword):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorAlreadyExists):
		return status.Error(codes.AlreadyExists, "email already in use")
	case errors.Is(err, common.ErrRefreshTokenExpired):
		return status.Error(codes.Unauthenticated, common.ErrRefreshTokenExpired.Error())
	case errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.Unauthenticated, "invalid credentials")
	default:
		s.logger.Error(ctx, op+" failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}
