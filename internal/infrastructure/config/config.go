package config

import "time"

// RemoteConfig は、リモートの画像生成API関連の設定を定義します
type RemoteConfig struct {
	BaseURL        string        `envconfig:"API_BASE_URL" default:"http://localhost:3000"`
	Gateway        string        `envconfig:"GATEWAY" default:"sillydream"` // sillydream または gemini
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10m"`
}

// GeminiConfig は、Geminiに直接接続する場合の生成設定を定義します
type GeminiConfig struct {
	BaseURL         string  `envconfig:"GEMINI_BASE_URL"`
	Temperature     float32 `envconfig:"GEMINI_TEMPERATURE" default:"0.4"`
	TopP            float32 `envconfig:"GEMINI_TOP_P" default:"0.95"`
	TopK            float32 `envconfig:"GEMINI_TOP_K" default:"32"`
	MaxOutputTokens int32   `envconfig:"GEMINI_MAX_OUTPUT_TOKENS" default:"2048"`
}

// ServerConfig は、HTTPサーバー関連の設定を定義します
type ServerConfig struct {
	Addr             string        `envconfig:"HTTP_ADDR" default:":8080"`
	CORSAllowOrigins []string      `envconfig:"CORS_ALLOW_ORIGINS" default:"*"`
	ShutdownTimeout  time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// StorageConfig は、APIキーと履歴の保存先を定義します
type StorageConfig struct {
	Backend       string `envconfig:"STORAGE_BACKEND" default:"file"` // memory, file, redis
	Dir           string `envconfig:"STORAGE_DIR" default:"./data"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string `envconfig:"REDIS_PREFIX" default:"sillydream:"`
}

// IntakeConfig は、参照画像の取り込み上限を定義します
type IntakeConfig struct {
	MaxImages      int `envconfig:"MAX_IMAGES" default:"5"`
	MaxImageSizeMB int `envconfig:"MAX_IMAGE_SIZE_MB" default:"10"`
}

// DownloadConfig は、結果画像のダウンロードキャッシュを定義します
type DownloadConfig struct {
	CacheTTL time.Duration `envconfig:"DOWNLOAD_CACHE_TTL" default:"10m"`
}

// DiscordConfig は、Discord関連の設定を定義します
type DiscordConfig struct {
	BotToken string `envconfig:"DISCORD_BOT_TOKEN"`
}

// LogConfig は、ログ出力の設定を定義します
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"console"` // console または json
}
