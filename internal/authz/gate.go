package authz

import (
	"context"

	"github.com/recapio/recapio/internal/model"
)

// Decision は認可ゲートの判定結果を表す。
// 判定の実行方法（HTTPリダイレクト、JSONエラー、描画抑制）は
// 呼び出し側の適用箇所が決定する。
type Decision int

const (
	// DecisionAllow はアクセス許可。
	DecisionAllow Decision = iota
	// DecisionRedirectToSignIn はサインインページへの誘導。
	DecisionRedirectToSignIn
	// DecisionRedirectToDashboard はダッシュボードへの誘導。
	DecisionRedirectToDashboard
)

// String はDecisionのログ・メトリクス用表現を返す。
func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionRedirectToSignIn:
		return "redirect_to_sign_in"
	case DecisionRedirectToDashboard:
		return "redirect_to_dashboard"
	default:
		return "unknown"
	}
}

// Decide は解決済みロールに基づいて認可判定を行う純粋関数。
// ルールは以下の順で評価される:
//  1. 認証必須の経路に未認証でアクセス → RedirectToSignIn
//  2. 認証済みユーザーが認証ページ（サインイン・サインアップ）にアクセス → RedirectToDashboard
//  3. 管理者必須の経路に非管理者がアクセス → RedirectToDashboard
//  4. それ以外 → Allow
//
// 同一入力に対して常に同一のDecisionを返す（冪等・副作用なし）。
func Decide(authenticated bool, role Role, req Requirement) Decision {
	if req.RequiresAuth && !authenticated {
		return DecisionRedirectToSignIn
	}
	if authenticated && req.AuthPage {
		return DecisionRedirectToDashboard
	}
	if req.RequiresAdmin && role != RoleAdmin {
		return DecisionRedirectToDashboard
	}
	return DecisionAllow
}

// RoleResolver はロール解決のインターフェース。Resolverを抽象化する。
type RoleResolver interface {
	ResolveRole(ctx context.Context, user *model.User) Role
}

// Gate はセッションと経路要件から認可判定を行う。
// ロール解決は管理者必須の経路でのみ実行される（それ以外の経路で
// ストアへの問い合わせは発生しない）。
type Gate struct {
	resolver RoleResolver
}

// NewGate はGateを生成する。
func NewGate(resolver RoleResolver) *Gate {
	return &Gate{resolver: resolver}
}

// Authorize はセッション（nil可）と経路要件から認可判定を返す。
// userはセッションに対応するIdentityで、session == nilの場合はnil。
// この関数自体は副作用を持たず、リダイレクトの実行は呼び出し側が行う。
func (g *Gate) Authorize(ctx context.Context, session *model.Session, user *model.User, req Requirement) Decision {
	authenticated := session != nil

	role := RoleUser
	if req.RequiresAdmin && authenticated {
		role = g.resolver.ResolveRole(ctx, user)
	}

	return Decide(authenticated, role, req)
}
