package configs

import (
	"fmt"
	"net/url"
	"strings"

	"sillydream/internal/infrastructure/config"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// 接続先の種類
const (
	GatewaySillyDream = "sillydream"
	GatewayGemini     = "gemini"
)

// 保存先の種類
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageRedis  = "redis"
)

// Config は、アプリケーション全体の設定を定義します
type Config struct {
	Remote   config.RemoteConfig
	Gemini   config.GeminiConfig
	Server   config.ServerConfig
	Storage  config.StorageConfig
	Intake   config.IntakeConfig
	Download config.DownloadConfig
	Discord  config.DiscordConfig
	Log      config.LogConfig
}

// LoadConfig は、環境変数から設定を読み込みます
func LoadConfig() (*Config, error) {
	// .envファイルを読み込み（ファイルが存在しない場合は無視）
	if err := godotenv.Load(); err != nil {
		fmt.Printf("警告: .envファイルの読み込みに失敗しました: %v\n", err)
	}

	return loadFromEnv()
}

// loadFromEnv は、各セクションを環境変数から読み込んで検証します
func loadFromEnv() (*Config, error) {
	cfg := &Config{}

	sections := []any{
		&cfg.Remote,
		&cfg.Gemini,
		&cfg.Server,
		&cfg.Storage,
		&cfg.Intake,
		&cfg.Download,
		&cfg.Discord,
		&cfg.Log,
	}
	for _, section := range sections {
		if err := envconfig.Process("", section); err != nil {
			return nil, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
		}
	}

	cfg.Remote.BaseURL = strings.TrimRight(cfg.Remote.BaseURL, "/")
	cfg.Remote.Gateway = strings.ToLower(strings.TrimSpace(cfg.Remote.Gateway))
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))

	// 必須設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate は、設定の妥当性を検証します
func (c *Config) Validate() error {
	switch c.Remote.Gateway {
	case GatewaySillyDream:
		u, err := url.Parse(c.Remote.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("API_BASE_URL が不正です: %q", c.Remote.BaseURL)
		}
	case GatewayGemini:
	default:
		return fmt.Errorf("GATEWAY は %s または %s を指定してください: %q", GatewaySillyDream, GatewayGemini, c.Remote.Gateway)
	}

	if c.Remote.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT は正の値である必要があります")
	}

	switch c.Storage.Backend {
	case StorageMemory, StorageRedis:
	case StorageFile:
		if c.Storage.Dir == "" {
			return fmt.Errorf("STORAGE_DIR が設定されていません")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND は memory, file, redis のいずれかを指定してください: %q", c.Storage.Backend)
	}

	if c.Intake.MaxImages <= 0 {
		return fmt.Errorf("MAX_IMAGES は正の整数である必要があります")
	}

	if c.Intake.MaxImageSizeMB <= 0 {
		return fmt.Errorf("MAX_IMAGE_SIZE_MB は正の整数である必要があります")
	}

	if c.Gemini.Temperature < 0 || c.Gemini.Temperature > 2 {
		return fmt.Errorf("GEMINI_TEMPERATURE は0から2の範囲で指定してください")
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("HTTP_ADDR が設定されていません")
	}

	return nil
}

// MaxImageSizeBytes は、画像サイズの上限をバイト数で返します
func (c *Config) MaxImageSizeBytes() int64 {
	return int64(c.Intake.MaxImageSizeMB) << 20
}

// DiscordEnabled は、Discord Botを起動するかを返します
func (c *Config) DiscordEnabled() bool {
	return c.Discord.BotToken != ""
}
