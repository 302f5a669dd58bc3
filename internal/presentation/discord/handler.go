package discord

import (
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// DiscordHandler は、Discordのイベントハンドラです
type DiscordHandler struct {
	session             *discordgo.Session
	slashCommandHandler *SlashCommandHandler
	logger              *zap.Logger
}

// NewDiscordHandler は新しいDiscordHandlerインスタンスを作成します
func NewDiscordHandler(session *discordgo.Session, slashCommandHandler *SlashCommandHandler, logger *zap.Logger) *DiscordHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiscordHandler{
		session:             session,
		slashCommandHandler: slashCommandHandler,
		logger:              logger,
	}
}

// SetupHandlers は、Discordのイベントハンドラを設定します
func (h *DiscordHandler) SetupHandlers() {
	h.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		h.logger.Info("Discordに接続しました",
			zap.String("user", r.User.Username),
			zap.Int("guilds", len(r.Guilds)),
		)
	})

	// スラッシュコマンドハンドラーを設定
	if h.slashCommandHandler != nil {
		h.slashCommandHandler.SetupSlashCommandHandlers()
	}
}
