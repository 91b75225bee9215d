// Package auth はIDプロバイダー連携とセッション管理を提供する。
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/recapio/recapio/internal/model"
)

// IDTokenClaims はIDプロバイダーが発行するIDトークンのクレームを表す。
// app_metadataは特権APIのみが書き込める名前空間、user_metadataは
// ユーザー自身が変更できる名前空間。両者はユーザーレコードに保存され、
// ロール解決の第1情報源となる。
type IDTokenClaims struct {
	Email        string         `json:"email"`
	Name         string         `json:"name"`
	AppMetadata  model.Metadata `json:"app_metadata"`
	UserMetadata model.Metadata `json:"user_metadata"`
	jwt.RegisteredClaims
}

// TokenVerifier はIDトークン（HS256）の検証を行う。
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier はTokenVerifierを生成する。
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify はIDトークンを検証してクレームを返す。
// 署名アルゴリズムはHS256のみ許可し、有効期限切れ・署名不一致・
// sub欠落のトークンはエラーになる。
func (v *TokenVerifier) Verify(rawToken string) (*IDTokenClaims, error) {
	claims := &IDTokenClaims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("ID token has no subject")
	}

	return claims, nil
}
