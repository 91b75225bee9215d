// Package app はアプリケーションの起動とワイヤリングを行う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/recapio/recapio/internal/admin"
	"github.com/recapio/recapio/internal/auth"
	"github.com/recapio/recapio/internal/authz"
	"github.com/recapio/recapio/internal/config"
	"github.com/recapio/recapio/internal/database"
	"github.com/recapio/recapio/internal/handler"
	"github.com/recapio/recapio/internal/ingest"
	"github.com/recapio/recapio/internal/logger"
	"github.com/recapio/recapio/internal/metrics"
	"github.com/recapio/recapio/internal/middleware"
	"github.com/recapio/recapio/internal/recording"
	"github.com/recapio/recapio/internal/repository"
	"github.com/recapio/recapio/internal/security"
	"github.com/recapio/recapio/internal/transcribe"
	"github.com/recapio/recapio/internal/user"
	"github.com/recapio/recapio/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	roleRepo := repository.NewPostgresRoleRepo(db)
	recordingRepo := repository.NewPostgresRecordingRepo(db)
	transcriptRepo := repository.NewPostgresTranscriptRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. 認可の初期化
	// REDIS_URLが設定されている場合のみロールキャッシュを有効にする
	var roleStore authz.RoleStore = roleRepo
	var cachedRoleStore *authz.CachedRoleStore
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse redis URL: %w", err)
		}
		cachedRoleStore = authz.NewCachedRoleStore(roleRepo, redis.NewClient(opts), 0)
		roleStore = cachedRoleStore
		slog.Info("role cache enabled")
	}

	roleResolver := authz.NewResolver(roleStore, collector)
	gate := authz.NewGate(roleResolver)

	table, err := authz.LoadTable(cfg.RoutesFile)
	if err != nil {
		return fmt.Errorf("failed to load route table: %w", err)
	}

	// 5. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	// 6. ドメインサービスの初期化
	idProvider := auth.NewHTTPProvider(auth.ProviderConfig{
		IssuerURL:    cfg.AuthIssuerURL,
		ClientID:     cfg.AuthClientID,
		ClientSecret: cfg.AuthClientSecret,
		RedirectURL:  cfg.AuthRedirectURL,
	})
	verifier := auth.NewTokenVerifier(cfg.AuthTokenSecret)
	authService := auth.NewAuthService(
		idProvider, verifier, userRepo, identRepo, sessionRepo,
		collector, time.Duration(cfg.SessionMaxAge)*time.Second,
	)

	recordingService := recording.NewService(recordingRepo, transcriptRepo, ssrfGuard, sanitizer)
	importer := ingest.NewImporter(ssrfGuard, recordingService, cfg.ImportTimeout, cfg.ImportMaxSize)
	userService := user.NewService(userRepo, sessionRepo)

	var invalidator admin.RoleCacheInvalidator
	if cachedRoleStore != nil {
		invalidator = cachedRoleStore
	}
	adminService := admin.NewService(userRepo, roleRepo, recordingRepo, transcriptRepo, invalidator)

	transcribeProvider := transcribe.NewHTTPProvider(cfg.TranscribeAPIBase, cfg.TranscribeAPIKey, cfg.TranscribeTimeout)
	modelCatalog := transcribe.NewModelCatalog(transcribeProvider)

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitImport),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger: slog.Default(),

		SessionResolver: authService,
		Gate:            gate,
		Table:           table,
		RoleResolver:    roleResolver,

		Metrics:         collector,
		MetricsGatherer: registry,

		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		RecordingService: recordingService,
		FeedImporter:     importer,
		UserService:      userService,
		AdminService:     adminService,
		ModelCatalog:     modelCatalog,

		PageHandler: pageShellHandler(),
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、文字起こしスケジューラとクリーンアップジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	recordingRepo := repository.NewPostgresRecordingRepo(db)
	transcriptRepo := repository.NewPostgresTranscriptRepo(db)

	// 3. 文字起こしパイプラインの初期化
	sanitizer := security.NewContentSanitizer()
	provider := transcribe.NewHTTPProvider(cfg.TranscribeAPIBase, cfg.TranscribeAPIKey, cfg.TranscribeTimeout)
	transcriber := transcribe.NewTranscriber(
		provider, recordingRepo, transcriptRepo, sanitizer,
		nil, slog.Default(), cfg.TranscribeDefaultModel,
	)
	scheduler := transcribe.NewScheduler(
		recordingRepo, transcriber, slog.Default(), cfg.TranscribeMaxConcurrent,
	)

	// 4. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(db, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("transcribe_interval", cfg.TranscribeInterval),
		slog.Int("max_concurrent", cfg.TranscribeMaxConcurrent),
	)

	// 期限切れセッションの削除を毎時バックグラウンド実行
	go func() {
		if err := cleanupJob.PurgeExpiredSessions(ctx); err != nil {
			slog.Error("session cleanup failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.PurgeExpiredSessions(ctx); err != nil {
					slog.Error("session cleanup failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// スタックした録音データの復旧を日次バックグラウンド実行
	go func() {
		if err := cleanupJob.ResetStuckRecordings(ctx); err != nil {
			slog.Error("stuck recording reset failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.ResetStuckRecordings(ctx); err != nil {
					slog.Error("stuck recording reset failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// 文字起こしスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.TranscribeInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// pageShellHandler はSPAのシェルHTMLを返すハンドラーを生成する。
// 認可判定を通過したページ経路に対して配信される。
func pageShellHandler() http.Handler {
	const shell = `<!DOCTYPE html>
<html lang="ja">
<head><meta charset="utf-8"><title>Recapio</title></head>
<body><div id="root"></div></body>
</html>
`
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(shell))
	})
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
