// Package services contains the identity daemon's business logic. This file
// implements AccountService, which handles sign-up, sign-in and the issuing,
// rotation and revocation of token pairs.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/dmitrijs2005/adminvault/internal/common"
	"github.com/dmitrijs2005/adminvault/internal/cryptox"
	"github.com/dmitrijs2005/adminvault/internal/dbx"
	"github.com/dmitrijs2005/adminvault/internal/server/auth"
	"github.com/dmitrijs2005/adminvault/internal/server/config"
	"github.com/dmitrijs2005/adminvault/internal/server/models"
	"github.com/dmitrijs2005/adminvault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// MinPasswordLength is the shortest password SignUp accepts.
const MinPasswordLength = 6

var (
	ErrInvalidEmail = errors.New("invalid email address")
	ErrWeakPassword = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
)

// Session is what a successful SignUp, SignIn or Refresh hands back.
type Session struct {
	AccountID    string
	Email        string
	AccessToken  string
	RefreshToken string
}

type AccountService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	now                          func() time.Time

	// dummyHash is verified against when the email is unknown, so a miss
	// costs as much as a wrong password.
	dummyHash string
}

func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) (*AccountService, error) {
	dummy, err := cryptox.HashPassword(string(common.GenerateRandByteArray(16)))
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &AccountService{
		db:                           db,
		repomanager:                  m,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		now:                          time.Now,
		dummyHash:                    dummy,
	}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// SignUp creates an account and signs it in. A taken email yields
// common.ErrorAlreadyExists.
func (s *AccountService) SignUp(ctx context.Context, email, password string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return nil, common.ErrorInternal
	}

	var session *Session
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		account, err := s.repomanager.Accounts(tx).Create(ctx, &models.Account{
			ID:           uuid.NewString(),
			Email:        email,
			PasswordHash: hash,
		})
		if err != nil {
			if errors.Is(err, common.ErrorAlreadyExists) {
				return err
			}
			return fmt.Errorf("error creating account: %w", err)
		}
		session, err = s.issue(ctx, tx, account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// SignIn verifies credentials. Unknown email and wrong password both yield
// common.ErrorUnauthorized.
func (s *AccountService) SignIn(ctx context.Context, email, password string) (*Session, error) {
	account, err := s.repomanager.Accounts(s.db).GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_ = cryptox.VerifyPassword(password, s.dummyHash)
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}

	if err := cryptox.VerifyPassword(password, account.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}

	return s.issue(ctx, s.db, account)
}

// Refresh exchanges a refresh token for a new pair. The old token is
// consumed in the same transaction, so it works at most once.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	var session *Session
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		token, err := s.repomanager.RefreshTokens(tx).Consume(ctx, refreshToken)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorUnauthorized
			}
			return fmt.Errorf("error consuming refresh token: %w", err)
		}
		if token.Expires.Before(s.now()) {
			return common.ErrRefreshTokenExpired
		}

		account, err := s.repomanager.Accounts(tx).GetByID(ctx, token.AccountID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorUnauthorized
			}
			return fmt.Errorf("error loading account: %w", err)
		}

		session, err = s.issue(ctx, tx, account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// SignOut revokes refreshToken if it belongs to accountID. Revoking an
// unknown token is not an error.
func (s *AccountService) SignOut(ctx context.Context, accountID, refreshToken string) error {
	repo := s.repomanager.RefreshTokens(s.db)

	token, err := repo.Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return fmt.Errorf("error searching refresh token: %w", err)
	}
	if token.AccountID != accountID {
		return common.ErrorUnauthorized
	}

	if err := repo.Delete(ctx, refreshToken); err != nil {
		return fmt.Errorf("error deleting refresh token: %w", err)
	}
	return nil
}

// PurgeExpired drops refresh tokens past their expiry.
func (s *AccountService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repomanager.RefreshTokens(s.db).DeleteExpired(ctx, s.now())
}

func (s *AccountService) issue(ctx context.Context, tx dbx.DBTX, account *models.Account) (*Session, error) {
	access, err := auth.GenerateToken(account.ID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}
	if err := s.repomanager.RefreshTokens(tx).Create(ctx, account.ID, refresh, s.refreshTokenValidityDuration); err != nil {
		return nil, common.ErrorInternal
	}
	return &Session{
		AccountID:    account.ID,
		Email:        account.Email,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}
