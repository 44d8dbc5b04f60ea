// Package app はコマンドごとの依存関係のワイヤリングと起動処理を提供する。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/hitoshi/finreport/internal/auth"
	"github.com/hitoshi/finreport/internal/config"
	"github.com/hitoshi/finreport/internal/database"
	"github.com/hitoshi/finreport/internal/handler"
	"github.com/hitoshi/finreport/internal/logger"
	"github.com/hitoshi/finreport/internal/mailer"
	"github.com/hitoshi/finreport/internal/metrics"
	"github.com/hitoshi/finreport/internal/repository"
	"github.com/hitoshi/finreport/internal/token"
	"github.com/hitoshi/finreport/internal/user"
	"github.com/hitoshi/finreport/internal/worker/cleanup"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w, "")

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定のログレベルで再設定する
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

// runCommand は設定を読み込み、modeに対応する処理を起動する。
func runCommand(cmd *cobra.Command, w io.Writer, mode Command) error {
	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(mode)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	switch mode {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	router, err := buildHandler(cfg, db, prometheus.NewRegistry())
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// buildHandler はDB接続と設定から全依存関係を組み立て、ルーターを返す。
func buildHandler(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) (http.Handler, error) {
	// 1. リポジトリ
	accountRepo := repository.NewPostgresAccountRepo(db)
	identityRepo := repository.NewPostgresIdentityRepo(db)
	tokenRepo := repository.NewPostgresAccountTokenRepo(db)

	// 2. 署名鍵はプロセスごとに生成する
	key, err := token.GenerateKey()
	if err != nil {
		return nil, err
	}
	codec, err := token.NewCodec(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create token codec: %w", err)
	}

	// 3. 認証
	providers, err := buildProviders(cfg)
	if err != nil {
		return nil, err
	}
	resolver := auth.NewResolver(accountRepo, identityRepo)
	authService := auth.NewService(providers, resolver, accountRepo, codec)

	// 4. アカウント管理
	notifier, err := buildMailer(cfg)
	if err != nil {
		return nil, err
	}
	userService := user.NewService(accountRepo, tokenRepo, notifier, user.Config{
		BaseURL:     cfg.BaseURL,
		FrontendURL: cfg.FrontendURL,
	})

	// 5. メトリクス
	collector := metrics.NewCollector(reg)

	return handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,

		TokenDecoder:    codec,
		AuthorityLoader: accountRepo,
		PublicPaths:     cfg.PublicPaths,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			FrontendURL:  cfg.FrontendURL,
			CookieSecure: strings.HasPrefix(cfg.BaseURL, "https://"),
		},

		UserService: userService,

		HealthChecker:  db,
		Metrics:        collector,
		MetricsHandler: metrics.Handler(reg),
	}), nil
}

// buildProviders はクライアントIDが設定されたプロバイダーのみを登録する。
func buildProviders(cfg *config.Config) (*auth.Registry, error) {
	providers := make(map[string]auth.OAuthProvider)
	for _, name := range config.OAuthProviders {
		client, ok := cfg.OAuth[name]
		if !ok || !client.Configured() {
			continue
		}

		p, err := auth.NewProvider(auth.ProviderConfig{
			Name:         name,
			ClientID:     client.ClientID,
			ClientSecret: client.ClientSecret,
			RedirectURL:  cfg.RedirectURL(name),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure %s provider: %w", name, err)
		}
		providers[name] = p
	}

	registry := auth.NewRegistry(providers)
	slog.Info("oauth providers configured",
		slog.Any("providers", registry.Names()),
	)
	return registry, nil
}

// buildMailer はSMTP_HOSTが設定されていればSMTP送信、なければログ出力のMailerを返す。
func buildMailer(cfg *config.Config) (*mailer.Mailer, error) {
	var transport mailer.Transport
	if cfg.SMTP.Host != "" {
		smtp, err := mailer.NewSMTPTransport(mailer.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			TLS:      cfg.SMTP.TLS,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure smtp: %w", err)
		}
		transport = smtp
	} else {
		slog.Warn("SMTP_HOST is not set; emails are written to the log")
		transport = mailer.NewLogTransport(slog.Default())
	}

	m, err := mailer.New(transport)
	if err != nil {
		return nil, fmt.Errorf("failed to create mailer: %w", err)
	}
	return m, nil
}

// runWorker はワーカーモードで起動する。
// 期限切れトークンのクリーンアップを定期実行し、シグナル受信で終了する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	reg := prometheus.NewRegistry()
	job := cleanup.NewCleanupJob(
		repository.NewPostgresAccountTokenRepo(db),
		metrics.NewCollector(reg),
		slog.Default(),
	)

	metricsServer := newWorkerMetricsServer(cfg.WorkerMetricsPort, reg)
	go func() {
		slog.Info("worker metrics server starting",
			slog.String("addr", metricsServer.Addr),
		)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker metrics server failed",
				slog.String("error", err.Error()),
			)
		}
	}()

	slog.Info("worker starting",
		slog.Duration("token_cleanup_interval", cfg.TokenCleanupInterval),
	)

	// ctxがキャンセルされるまでブロックする
	job.Start(ctx, cfg.TokenCleanupInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("worker metrics server shutdown failed: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// newWorkerMetricsServer はワーカーのメトリクスを/metricsで公開するHTTPサーバーを生成する。
func newWorkerMetricsServer(port string, gatherer prometheus.Gatherer) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      metrics.SetupMetricsRoute(gatherer),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
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
func runHealthcheck(ctx context.Context, port string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	url := fmt.Sprintf("http://localhost:%s/health", port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
