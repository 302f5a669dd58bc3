package application

import (
	"fmt"
	"strings"

	"sillydream/internal/domain"
)

// GenericFailureMessage は、サーバーから理由が返されなかった場合のメッセージです
const GenericFailureMessage = "生成に失敗しました"

// slotOutcome は、1リクエストの分類結果です
type slotOutcome struct {
	state          domain.ResultState
	imageReference string
	filename       string
	errorMessage   string
	modelUsed      string
}

// classifyReply は、1リクエストのレスポンスを終端状態に分類します
// 他のリクエストの結果には依存しません
func classifyReply(gateway ImageGateway, reply *domain.GenerateImageReply, transportErr error) slotOutcome {
	if transportErr != nil {
		return slotOutcome{
			state:        domain.ResultStateError,
			errorMessage: transportErr.Error(),
		}
	}
	if reply == nil {
		return slotOutcome{
			state:        domain.ResultStateError,
			errorMessage: GenericFailureMessage,
		}
	}

	if !reply.IsOK() {
		return slotOutcome{
			state:        domain.ResultStateError,
			errorMessage: rejectionMessage(reply),
		}
	}

	outcome := slotOutcome{
		state:     domain.ResultStateSuccess,
		modelUsed: reply.ModelUsed,
	}
	if reply.Data != nil {
		if reply.Data.Filename != "" {
			outcome.filename = reply.Data.Filename
			outcome.imageReference = gateway.ImageURL(reply.Data.Filename)
		} else {
			outcome.imageReference = reply.Data.Image
		}
	}
	return outcome
}

// rejectionMessage は、拒否されたレスポンスからスロットのエラーメッセージを作成します
// 503 かつ複数モデルを試行済みの場合のみ、試行したモデルを箇条書きで列挙します
func rejectionMessage(reply *domain.GenerateImageReply) string {
	if reply.Code == domain.ReplyCodeServiceUnavailable && len(reply.TriedModels) > 1 {
		lines := make([]string, len(reply.TriedModels))
		for i, model := range reply.TriedModels {
			lines[i] = "• " + model
		}
		return fmt.Sprintf("%d 個のモデルをすべて試しましたが、いずれも利用できませんでした。\n\n試行したモデル:\n%s",
			len(reply.TriedModels), strings.Join(lines, "\n"))
	}

	switch {
	case reply.Msg != "":
		return reply.Msg
	case reply.Detail != "":
		return reply.Detail
	default:
		return GenericFailureMessage
	}
}
