package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/reginald/internal/catalog"
	"github.com/hitoshi/reginald/internal/config"
	"github.com/hitoshi/reginald/internal/database"
	"github.com/hitoshi/reginald/internal/discord"
	"github.com/hitoshi/reginald/internal/enrollment"
	"github.com/hitoshi/reginald/internal/handler"
	"github.com/hitoshi/reginald/internal/interaction"
	"github.com/hitoshi/reginald/internal/logger"
	"github.com/hitoshi/reginald/internal/metrics"
	"github.com/hitoshi/reginald/internal/peer"
	"github.com/hitoshi/reginald/internal/render"
	"github.com/hitoshi/reginald/internal/repository"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. .envと環境変数から設定を読み込む
	if err := config.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでログを再構成する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

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
		slog.String("default_term", cfg.DefaultTerm),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runBot(ctx, cfg)
	}
}

// runBot はDiscordボットと運用HTTPサーバーを起動する。
// DB接続を開き、全依存関係をワイヤリングする。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runBot(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	db, err := database.Connect(connectCtx, cfg.DatabaseURL, database.DefaultPoolConfig())
	cancel()
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 3. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	enrollmentRepo := repository.NewPostgresEnrollmentRepo(db)

	// 4. カタログAPIクライアントの初期化
	httpClient := &http.Client{Timeout: cfg.CatalogTimeout}
	tokens := catalog.NewTokenSource(ctx, httpClient, catalog.Credentials{
		ClientID:     cfg.CatalogClientID,
		ClientSecret: cfg.CatalogClientSecret,
		TokenURL:     cfg.CatalogTokenURL,
		Scopes:       strings.Fields(cfg.CatalogScope),
	})
	catalogClient := catalog.NewClient(httpClient, tokens, catalog.Config{
		BaseURL:   cfg.CatalogBaseURL,
		ClientID:  cfg.CatalogClientID,
		RateLimit: rate.Limit(cfg.CatalogRateLimit),
		Burst:     1,
	}, slog.Default(), collector)

	// 5. ドメインサービスの初期化
	store := enrollment.NewStore(userRepo, enrollmentRepo, catalogClient, slog.Default())

	session, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}
	messenger := discord.NewMessenger(session)
	engine := peer.NewEngine(enrollmentRepo, messenger, slog.Default(), collector)

	renderer, err := render.NewRenderer(render.DefaultConfig(), slog.Default(), collector)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.AssetsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create assets dir: %w", err)
	}

	limiter := interaction.NewRateLimiter(interaction.PerMinute(cfg.InteractionRateLimit))
	defer limiter.Stop()

	controller := interaction.NewController(interaction.Deps{
		Catalog:     catalogClient,
		Enrollments: store,
		Notifier:    engine,
		Renderer:    renderer,
		Messenger:   messenger,
		RateLimiter: limiter,
		Logger:      slog.Default(),
		Metrics:     collector,
	}, interaction.Config{
		DefaultTerm:      cfg.DefaultTerm,
		DisplayTTL:       cfg.DisplayTTL,
		ProgressInterval: cfg.ProgressInterval,
		AssetsDir:        cfg.AssetsDir,
	})

	// 6. 運用HTTPサーバーの起動
	server := &http.Server{
		Addr: ":" + cfg.ServerPort,
		Handler: handler.NewRouter(&handler.RouterDeps{
			HealthChecker: db,
			Gatherer:      reg,
			Logger:        slog.Default(),
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// 7. Discordボットの起動
	bot := discord.NewBot(session, controller, cfg.DiscordGuildID, slog.Default())
	if err := bot.Start(ctx); err != nil {
		shutdown(server, nil, controller)
		return err
	}
	slog.Info("bot started", slog.Int("commands", len(controller.Commands())))

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-serverErr:
		slog.Error("server listen error", slog.String("error", err.Error()))
		runErr = fmt.Errorf("server listen error: %w", err)
	}

	if err := shutdown(server, bot, controller); err != nil && runErr == nil {
		runErr = err
	}
	if runErr == nil {
		slog.Info("bot stopped gracefully")
	}
	return runErr
}

// shutdown はHTTPサーバー、ボット、バックグラウンドタスクの順に停止する。
func shutdown(server *http.Server, bot *discord.Bot, controller *interaction.Controller) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown failed: %w", err))
	}
	if bot != nil {
		if err := bot.Close(); err != nil {
			errs = append(errs, fmt.Errorf("bot close failed: %w", err))
		}
	}
	if err := controller.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("background tasks did not stop: %w", err))
	}
	return errors.Join(errs...)
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL, slog.Default())
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
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

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
