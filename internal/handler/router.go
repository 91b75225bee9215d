package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/recapio/recapio/internal/authz"
	"github.com/recapio/recapio/internal/metrics"
	"github.com/recapio/recapio/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// 認可
	SessionResolver middleware.SessionResolver
	Gate            *authz.Gate
	Table           *authz.Table
	RoleResolver    authz.RoleResolver

	// 観測。nilの場合は記録をスキップする
	Metrics         *metrics.Collector
	MetricsGatherer prometheus.Gatherer

	// ミドルウェア設定
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ドメインサービス
	RecordingService RecordingServiceInterface
	FeedImporter     FeedImporterInterface
	UserService      UserServiceInterface
	AdminService     AdminServiceInterface
	ModelCatalog     ModelListerInterface

	// ページ配信。nilの場合ページ経路は配信しない（API専用構成）
	PageHandler http.Handler
}

// decisionRecorder はMetricsがnilでも安全に渡せるDecisionRecorderを返す。
func (d *RouterDeps) decisionRecorder() middleware.DecisionRecorder {
	if d.Metrics == nil {
		return nil
	}
	return d.Metrics
}

// statusRecorder はMetricsがnilでも安全に渡せるStatusRecorderを返す。
func (d *RouterDeps) statusRecorder() middleware.StatusRecorder {
	if d.Metrics == nil {
		return nil
	}
	return d.Metrics
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Logging → Recovery → CSRF →
//	[Session → Authorize → RateLimit]（グループごと）
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.statusRecorder()))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	recordingHandler := NewRecordingHandler(deps.RecordingService, deps.FeedImporter)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig)
	navHandler := NewNavHandler(deps.Table, deps.RoleResolver)
	adminHandler := NewAdminHandler(deps.AdminService, deps.ModelCatalog)

	sessionMiddleware := middleware.NewSessionMiddleware(deps.SessionResolver)
	requireAuth := middleware.NewRequireAuthMiddleware(deps.Gate, deps.decisionRecorder())
	requireAdmin := middleware.NewRequireAdminMiddleware(deps.Gate, deps.decisionRecorder())

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", authHandler.Login)
		r.Get("/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
	})

	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- セッション解決が必要なルート ---

	r.Group(func(r chi.Router) {
		r.Use(sessionMiddleware)

		// ナビゲーションは未認証でも公開項目のみの結果を返す
		r.Get("/api/nav", navHandler.Nav)
		r.Get("/api/me", userHandler.Me)

		// 認証必須のAPI
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Route("/api/recordings", func(r chi.Router) {
				// 録音登録はインポート系のレート制限を追加で適用する
				r.With(deps.RateLimiter.ImportMiddleware()).Post("/", recordingHandler.Register)
				r.Get("/", recordingHandler.List)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", recordingHandler.Get)
					r.Delete("/", recordingHandler.Delete)
					r.Get("/transcript", recordingHandler.GetTranscript)
				})
			})

			r.With(deps.RateLimiter.ImportMiddleware()).Post("/api/imports", recordingHandler.ImportFeed)

			r.Delete("/api/users/me", userHandler.Withdraw)
		})

		// 管理者必須のAPI
		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Route("/api/admin", func(r chi.Router) {
				r.Get("/users", adminHandler.ListUsers)
				r.Put("/users/{id}/role", adminHandler.AssignRole)
				r.Get("/models", adminHandler.ListModels)
				r.Get("/stats", adminHandler.Stats)
			})
		})

		// ページ経路: 経路テーブルの判定に従いリダイレクトまたは配信する
		if deps.PageHandler != nil {
			r.Group(func(r chi.Router) {
				r.Use(middleware.NewPageAuthorizeMiddleware(deps.Gate, deps.Table, deps.decisionRecorder()))
				r.Handle("/*", deps.PageHandler)
			})
		}
	})

	return r
}
