package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sillydream/configs"
	"sillydream/internal/application"
	"sillydream/internal/domain"
	"sillydream/internal/infrastructure/gemini"
	"sillydream/internal/infrastructure/sillydream"
	"sillydream/internal/infrastructure/storage/file"
	"sillydream/internal/infrastructure/storage/memory"
	redisstore "sillydream/internal/infrastructure/storage/redis"
	discordPres "sillydream/internal/presentation/discord"
	"sillydream/internal/presentation/httpapi"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// repository は、APIキーと履歴の両方を保存できるストレージです
type repository interface {
	domain.CredentialRepository
	domain.HistoryRepository
}

func main() {
	// 設定を読み込み
	config, err := configs.LoadConfig()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	logger, err := newLogger(config.Log.Level, config.Log.Format)
	if err != nil {
		log.Fatalf("ロガーの作成に失敗: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("画像生成サーバーを起動中...",
		zap.String("gateway", config.Remote.Gateway),
		zap.String("storage", config.Storage.Backend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// リポジトリを作成
	repo, closeRepo, err := newRepository(ctx, config, logger)
	if err != nil {
		logger.Fatal("ストレージの初期化に失敗", zap.Error(err))
	}
	defer closeRepo()

	// 画像生成APIのクライアントを作成
	var gateway application.ImageGateway
	switch config.Remote.Gateway {
	case configs.GatewayGemini:
		gateway = gemini.NewGateway(config.Gemini, logger.Named("gemini"))
	default:
		gateway = sillydream.NewClient(config.Remote.BaseURL, config.Remote.RequestTimeout, logger.Named("sillydream"))
	}

	// アプリケーションサービスを作成
	keys := application.NewKeyStoreService(repo, logger)
	intake := application.NewImageIntakeService(application.IntakeConfig{
		MaxImages:    config.Intake.MaxImages,
		MaxSizeBytes: config.MaxImageSizeBytes(),
	}, logger)
	models := application.NewModelDirectoryService(gateway, logger)
	keys.Subscribe(models.OnCredentialChange)
	history := application.NewHistoryService(repo, logger)
	orchestrator := application.NewGenerationOrchestrator(gateway, keys, history, models, logger)
	downloads := application.NewDownloadService(
		gateway,
		cache.New(config.Download.CacheTTL, 2*config.Download.CacheTTL),
		config.Download.CacheTTL,
		logger,
	)

	// 保存済みのAPIキーでモデル一覧を取得しておく
	if credential, err := keys.Get(ctx); err != nil {
		logger.Warn("保存済みAPIキーの読み込みに失敗", zap.Error(err))
	} else if credential.IsSet() {
		models.ListModels(ctx, credential)
	}

	// HTTPサーバーを作成
	if !strings.EqualFold(config.Log.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := httpapi.NewHandler(httpapi.Services{
		Keys:         keys,
		Intake:       intake,
		Models:       models,
		Orchestrator: orchestrator,
		History:      history,
		Downloads:    downloads,
	}, logger.Named("http"))

	server := &http.Server{
		Addr:              config.Server.Addr,
		Handler:           handler.Router(config.Server.CORSAllowOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTPサーバーを起動しました", zap.String("addr", config.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTPサーバーが異常終了しました", zap.Error(err))
			stop()
		}
	}()

	// Discord Botを起動
	var session *discordgo.Session
	if config.DiscordEnabled() {
		session, err = startDiscord(config.Discord.BotToken, discordPres.Services{
			Keys:         keys,
			Intake:       intake,
			Models:       models,
			Orchestrator: orchestrator,
			History:      history,
			Downloads:    downloads,
		}, logger.Named("discord"))
		if err != nil {
			logger.Fatal("Discord Botの起動に失敗", zap.Error(err))
		}
	}

	// 終了シグナルを待機
	<-ctx.Done()
	logger.Info("終了シグナルを受信しました。停止中...")

	// クリーンアップ
	if session != nil {
		if err := session.Close(); err != nil {
			logger.Error("Discordセッションのクローズに失敗", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTPサーバーの停止に失敗", zap.Error(err))
	}

	logger.Info("正常に停止しました。")
}

// newLogger は、レベルと出力形式からロガーを作成します
func newLogger(level, format string) (*zap.Logger, error) {
	var cfg zap.Config
	if strings.EqualFold(format, "json") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

// newRepository は、設定されたバックエンドのストレージを作成します
func newRepository(ctx context.Context, config *configs.Config, logger *zap.Logger) (repository, func(), error) {
	switch config.Storage.Backend {
	case configs.StorageMemory:
		return memory.NewRepository(), func() {}, nil

	case configs.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     config.Storage.RedisAddr,
			Password: config.Storage.RedisPassword,
			DB:       config.Storage.RedisDB,
		})
		repo := redisstore.NewRepository(client, config.Storage.RedisPrefix, logger.Named("redis"))
		if err := repo.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return repo, func() { _ = client.Close() }, nil

	default:
		repo, err := file.NewOsRepository(config.Storage.Dir, logger.Named("file"))
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {}, nil
	}
}

// startDiscord は、スラッシュコマンドを登録してDiscordに接続します
func startDiscord(token string, services discordPres.Services, logger *zap.Logger) (*discordgo.Session, error) {
	// Discordセッションを作成
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	slashCommandHandler := discordPres.NewSlashCommandHandler(session, services, logger)
	handler := discordPres.NewDiscordHandler(session, slashCommandHandler, logger)
	handler.SetupHandlers()

	// Discordに接続
	if err := session.Open(); err != nil {
		return nil, err
	}

	// スラッシュコマンドを設定
	if err := slashCommandHandler.SetupSlashCommands(); err != nil {
		_ = session.Close()
		return nil, err
	}

	logger.Info("Discord Botが準備完了しました")
	return session, nil
}
