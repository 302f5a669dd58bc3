package discord

import (
	"context"
	"fmt"
	"time"

	"sillydream/internal/application"
	"sillydream/internal/domain"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// interactionTimeout は、インタラクションのトークンが有効な時間です
const interactionTimeout = 15 * time.Minute

// 参照画像として受け付ける添付オプション名
var imageOptionNames = []string{"image", "image2", "image3", "image4", "image5"}

// responder は、インタラクションへの応答を送信します
type responder interface {
	Respond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse) error
	EditResponse(interaction *discordgo.Interaction, edit *discordgo.WebhookEdit) error
}

// sessionResponder は、discordgo.Session を使って応答します
type sessionResponder struct {
	session *discordgo.Session
}

func (r sessionResponder) Respond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	return r.session.InteractionRespond(interaction, resp)
}

func (r sessionResponder) EditResponse(interaction *discordgo.Interaction, edit *discordgo.WebhookEdit) error {
	_, err := r.session.InteractionResponseEdit(interaction, edit)
	return err
}

// Services は、スラッシュコマンドが利用するアプリケーションサービスの組です
type Services struct {
	Keys         *application.KeyStoreService
	Intake       *application.ImageIntakeService
	Models       *application.ModelDirectoryService
	Orchestrator *application.GenerationOrchestrator
	History      *application.HistoryService
	Downloads    *application.DownloadService
}

// SlashCommandHandler は、Discordのスラッシュコマンドを処理するハンドラーです
type SlashCommandHandler struct {
	session   *discordgo.Session
	responder responder
	fetcher   attachmentFetcher
	services  Services
	responses *ResponseHandler
	logger    *zap.Logger
}

// NewSlashCommandHandler は新しいSlashCommandHandlerインスタンスを作成します
func NewSlashCommandHandler(session *discordgo.Session, services Services, logger *zap.Logger) *SlashCommandHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlashCommandHandler{
		session:   session,
		responder: sessionResponder{session: session},
		fetcher:   newHTTPFetcher(services.Intake.Config().MaxSizeBytes),
		services:  services,
		responses: NewResponseHandler(),
		logger:    logger,
	}
}

// commands は、登録するスラッシュコマンドの定義を返します
func (h *SlashCommandHandler) commands() []*discordgo.ApplicationCommand {
	minDenoising := domain.MinDenoising
	minWeight := domain.MinPromptWeight
	minSeed := 0.0
	minIndex := 1.0

	generateOptions := []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "prompt",
			Description: "画像をどう変えるかの指示",
			Required:    true,
		},
	}
	for i, name := range imageOptionNames {
		if i >= h.services.Intake.Config().MaxImages {
			break
		}
		generateOptions = append(generateOptions, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionAttachment,
			Name:        name,
			Description: fmt.Sprintf("参考画像%d (PNG/JPG/WebP)", i+1),
			Required:    i == 0,
		})
	}
	generateOptions = append(generateOptions,
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "count",
			Description: "生成枚数",
			Choices: []*discordgo.ApplicationCommandOptionChoice{
				{Name: "1枚", Value: 1},
				{Name: "2枚", Value: 2},
				{Name: "4枚", Value: 4},
			},
		},
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionNumber,
			Name:        "denoising",
			Description: "重描画強度 (0〜1、既定 0.8)",
			MinValue:    &minDenoising,
			MaxValue:    domain.MaxDenoising,
		},
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "seed",
			Description: "シード値 (省略時はランダム)",
			MinValue:    &minSeed,
			MaxValue:    float64(^uint32(0)),
		},
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionNumber,
			Name:        "prompt-weight",
			Description: "プロンプトの重み (0.5〜2.0、既定 1.0)",
			MinValue:    &minWeight,
			MaxValue:    domain.MaxPromptWeight,
		},
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionBoolean,
			Name:        "enhanced",
			Description: "高画質モード",
		},
	)

	return []*discordgo.ApplicationCommand{
		{
			Name:        "set-key",
			Description: "画像生成APIのAPIキーを設定します",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "api-key",
					Description: "APIキー",
					Required:    true,
				},
			},
		},
		{
			Name:        "del-key",
			Description: "APIキーを削除します",
		},
		{
			Name:        "models",
			Description: "利用可能なモデルを表示・選択します",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "model",
					Description: "使用するモデルID (auto で自動選択)",
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "refresh",
					Description: "モデル一覧を再取得します",
				},
			},
		},
		{
			Name:        "generate",
			Description: "参考画像とプロンプトから画像を生成します",
			Options:     generateOptions,
		},
		{
			Name:        "retry",
			Description: "失敗したスロットを再試行します",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "index",
					Description: "スロット番号 (1から)",
					Required:    true,
					MinValue:    &minIndex,
					MaxValue:    domain.MaxBatchSize,
				},
			},
		},
		{
			Name:        "history",
			Description: "生成履歴を表示します",
		},
		{
			Name:        "clear-history",
			Description: "生成履歴をすべて削除します",
		},
	}
}

// SetupSlashCommands は、スラッシュコマンドを登録します
func (h *SlashCommandHandler) SetupSlashCommands() error {
	user, err := h.session.User("@me")
	if err != nil {
		return fmt.Errorf("Botユーザー情報の取得に失敗: %w", err)
	}

	for _, command := range h.commands() {
		if _, err := h.session.ApplicationCommandCreate(user.ID, "", command); err != nil {
			return fmt.Errorf("スラッシュコマンド %s の登録に失敗: %w", command.Name, err)
		}
		h.logger.Info("スラッシュコマンドを登録しました", zap.String("command", command.Name))
	}
	return nil
}

// SetupSlashCommandHandlers は、スラッシュコマンドのハンドラーを設定します
func (h *SlashCommandHandler) SetupSlashCommandHandlers() {
	h.session.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		h.handleInteraction(i.Interaction)
	})
}

// handleInteraction は、インタラクションをコマンドごとに振り分けます
func (h *SlashCommandHandler) handleInteraction(i *discordgo.Interaction) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()

	name := i.ApplicationCommandData().Name
	h.logger.Debug("スラッシュコマンドを受信しました", zap.String("command", name))

	switch name {
	case "set-key":
		h.handleSetKeyCommand(ctx, i)
	case "del-key":
		h.handleDelKeyCommand(ctx, i)
	case "models":
		h.handleModelsCommand(ctx, i)
	case "generate":
		h.handleGenerateCommand(ctx, i)
	case "retry":
		h.handleRetryCommand(ctx, i)
	case "history":
		h.handleHistoryCommand(ctx, i)
	case "clear-history":
		h.handleClearHistoryCommand(ctx, i)
	default:
		h.logger.Warn("未知のスラッシュコマンド", zap.String("command", name))
	}
}

// handleSetKeyCommand は、/set-keyコマンドを処理します
func (h *SlashCommandHandler) handleSetKeyCommand(ctx context.Context, i *discordgo.Interaction) {
	if !h.hasAdminPermission(i.Member) {
		h.respondToInteraction(i, "❌ このコマンドを実行するには管理者権限が必要です。", true)
		return
	}

	options := optionMap(i.ApplicationCommandData().Options)
	opt, ok := options["api-key"]
	if !ok {
		h.respondToInteraction(i, "❌ APIキーが指定されていません。", true)
		return
	}

	if err := h.services.Keys.Set(ctx, opt.StringValue()); err != nil {
		h.logger.Error("APIキーの設定に失敗", zap.Error(err))
		h.respondToInteraction(i, h.responses.formatError(err), true)
		return
	}

	credential, _ := h.services.Keys.Get(ctx)
	msg := fmt.Sprintf("✅ APIキーを設定しました (%s)。", credential.Masked())
	if h.services.Models.State() == domain.DetectionStateSuccess {
		msg += fmt.Sprintf("\n🤖 %d 個の画像生成モデルを検出しました。", len(h.services.Models.Models()))
	}
	h.respondToInteraction(i, msg, true)
}

// handleDelKeyCommand は、/del-keyコマンドを処理します
func (h *SlashCommandHandler) handleDelKeyCommand(ctx context.Context, i *discordgo.Interaction) {
	if !h.hasAdminPermission(i.Member) {
		h.respondToInteraction(i, "❌ このコマンドを実行するには管理者権限が必要です。", true)
		return
	}

	if err := h.services.Keys.Clear(ctx); err != nil {
		h.logger.Error("APIキーの削除に失敗", zap.Error(err))
		h.respondToInteraction(i, h.responses.formatError(err), true)
		return
	}
	h.respondToInteraction(i, "✅ APIキーを削除しました。モデルの選択は自動に戻りました。", true)
}

// handleModelsCommand は、/modelsコマンドを処理します
func (h *SlashCommandHandler) handleModelsCommand(ctx context.Context, i *discordgo.Interaction) {
	options := optionMap(i.ApplicationCommandData().Options)
	models := h.services.Models

	if opt, ok := options["refresh"]; ok && opt.BoolValue() {
		credential, err := h.services.Keys.Get(ctx)
		if err != nil {
			h.respondToInteraction(i, h.responses.formatError(err), true)
			return
		}
		models.ListModels(ctx, credential)
	}

	if opt, ok := options["model"]; ok {
		if model := opt.StringValue(); model == "" || model == "auto" {
			models.EnableAutoMode()
		} else {
			models.SelectModel(model)
		}
	}

	h.respondToInteraction(i, h.responses.formatModels(models.Models(), models.State(), models.Selection(), models.CurrentModelUsed()), false)
}

// handleHistoryCommand は、/historyコマンドを処理します
func (h *SlashCommandHandler) handleHistoryCommand(ctx context.Context, i *discordgo.Interaction) {
	entries, err := h.services.History.List(ctx)
	if err != nil {
		h.respondToInteraction(i, h.responses.formatError(err), true)
		return
	}
	h.respondToInteraction(i, h.responses.formatHistory(entries), false)
}

// handleClearHistoryCommand は、/clear-historyコマンドを処理します
func (h *SlashCommandHandler) handleClearHistoryCommand(ctx context.Context, i *discordgo.Interaction) {
	if !h.hasAdminPermission(i.Member) {
		h.respondToInteraction(i, "❌ このコマンドを実行するには管理者権限が必要です。", true)
		return
	}

	if err := h.services.History.Clear(ctx); err != nil {
		h.respondToInteraction(i, h.responses.formatError(err), true)
		return
	}
	h.respondToInteraction(i, "🗑️ 生成履歴をすべて削除しました。", false)
}

// hasAdminPermission は、メンバーが管理者権限を持っているかをチェックします
// DMなどメンバー情報がない場合は許可しません
func (h *SlashCommandHandler) hasAdminPermission(member *discordgo.Member) bool {
	if member == nil {
		return false
	}
	return member.Permissions&discordgo.PermissionAdministrator != 0
}

// respondToInteraction は、インタラクションに応答します
func (h *SlashCommandHandler) respondToInteraction(i *discordgo.Interaction, content string, ephemeral bool) {
	response := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
		},
	}
	if ephemeral {
		response.Data.Flags = discordgo.MessageFlagsEphemeral
	}

	if err := h.responder.Respond(i, response); err != nil {
		h.logger.Error("インタラクションへの応答に失敗", zap.Error(err))
	}
}

// optionMap は、オプションを名前で引けるようにします
func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}
