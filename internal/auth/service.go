package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/recapio/recapio/internal/model"
	"github.com/recapio/recapio/internal/repository"
)

// identityProviderName はidentitiesテーブルに記録するプロバイダー識別子。
const identityProviderName = "recapio-idp"

// SessionMetrics はセッション解決失敗の記録インターフェース。
type SessionMetrics interface {
	RecordSessionResolveFailure()
}

// AuthService は認証フローとセッション管理のインターフェースを定義する。
type AuthService interface {
	// LoginURL はIDプロバイダーの認可エンドポイントURLを生成する。
	LoginURL(state string) string

	// HandleCallback は認可コードを検証済みユーザーに解決し、
	// セッションを発行する。初回ログイン時はユーザーとidentityを作成する。
	HandleCallback(ctx context.Context, code string) (*model.Session, error)

	// ResolveSession はセッションIDからセッションとユーザーを解決する。
	// 未認証（ID空・期限切れ・不明ID）の場合は (nil, nil, nil) を返す。
	// ストア障害時もエラーを投げず未認証として扱い、ログとメトリクスに記録する。
	ResolveSession(ctx context.Context, sessionID string) (*model.Session, *model.User, error)

	// Logout は指定セッションを削除する。存在しないIDでもエラーにならない。
	Logout(ctx context.Context, sessionID string) error
}

// authService はAuthServiceの実装。
type authService struct {
	provider      IdentityProvider
	verifier      *TokenVerifier
	userRepo      repository.UserRepository
	identityRepo  repository.IdentityRepository
	sessionRepo   repository.SessionRepository
	metrics       SessionMetrics
	sessionMaxAge time.Duration
}

// NewAuthService はAuthServiceの新しいインスタンスを生成する。
// metricsはnilを許容する。
func NewAuthService(
	provider IdentityProvider,
	verifier *TokenVerifier,
	userRepo repository.UserRepository,
	identityRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	metrics SessionMetrics,
	sessionMaxAge time.Duration,
) *authService {
	return &authService{
		provider:      provider,
		verifier:      verifier,
		userRepo:      userRepo,
		identityRepo:  identityRepo,
		sessionRepo:   sessionRepo,
		metrics:       metrics,
		sessionMaxAge: sessionMaxAge,
	}
}

// LoginURL はIDプロバイダーの認可エンドポイントURLを生成する。
func (s *authService) LoginURL(state string) string {
	return s.provider.LoginURL(state)
}

// HandleCallback は認可コードを検証済みユーザーに解決し、セッションを発行する。
func (s *authService) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	rawToken, err := s.provider.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	claims, err := s.verifier.Verify(rawToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	user, err := s.resolveOrCreateUser(ctx, claims)
	if err != nil {
		return nil, err
	}

	sessionID, err := newSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(s.sessionMaxAge),
		CreatedAt: time.Now(),
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user signed in",
		slog.String("user_id", user.ID),
	)

	return session, nil
}

// resolveOrCreateUser はIDトークンのクレームからユーザーを解決する。
// 既知のidentityがあれば対応するユーザーを返し、なければ新規作成する。
func (s *authService) resolveOrCreateUser(ctx context.Context, claims *IDTokenClaims) (*model.User, error) {
	identity, err := s.identityRepo.FindByProviderAndProviderUserID(ctx, identityProviderName, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	if identity != nil {
		user, err := s.userRepo.FindByID(ctx, identity.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if user == nil {
			return nil, fmt.Errorf("identity %s references missing user %s", identity.ID, identity.UserID)
		}
		return user, nil
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        claims.Email,
		Name:         claims.Name,
		AppMetadata:  claims.AppMetadata,
		UserMetadata: claims.UserMetadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	newIdentity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		Provider:       identityProviderName,
		ProviderUserID: claims.Subject,
		CreatedAt:      now,
	}
	if err := s.userRepo.CreateWithIdentity(ctx, user, newIdentity); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user registered",
		slog.String("user_id", user.ID),
	)

	return user, nil
}

// ResolveSession はセッションIDからセッションとユーザーを解決する。
func (s *authService) ResolveSession(ctx context.Context, sessionID string) (*model.Session, *model.User, error) {
	if sessionID == "" {
		return nil, nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		// セッションストア障害は未認証に縮退する（フェイルクローズ）
		slog.Error("failed to resolve session, treating as unauthenticated",
			slog.String("error", err.Error()),
		)
		if s.metrics != nil {
			s.metrics.RecordSessionResolveFailure()
		}
		return nil, nil, nil
	}
	if session == nil {
		return nil, nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		slog.Error("failed to load session user, treating as unauthenticated",
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
		if s.metrics != nil {
			s.metrics.RecordSessionResolveFailure()
		}
		return nil, nil, nil
	}
	if user == nil {
		// 退会済みユーザーのセッションは掃除して未認証扱い
		if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
			slog.Warn("failed to delete orphaned session",
				slog.String("error", err.Error()),
			)
		}
		return nil, nil, nil
	}

	return session, user, nil
}

// Logout は指定セッションを削除する。
func (s *authService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// newSessionID は32バイトの乱数から64文字のhexセッションIDを生成する。
func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// compile-time interface check
var _ AuthService = (*authService)(nil)
