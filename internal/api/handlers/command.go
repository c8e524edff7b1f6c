package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"tradegate.io/server/internal/api/middleware"
	"tradegate.io/server/internal/logging"
	"tradegate.io/server/models"
)

// CommandProcessor executes owner commands.
type CommandProcessor interface {
	Handle(ctx context.Context, cmd models.OwnerCommand) models.CommandResponse
}

// CommandHandler handles the owner command endpoint.
type CommandHandler struct {
	processor CommandProcessor
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(processor CommandProcessor) *CommandHandler {
	return &CommandHandler{processor: processor}
}

// commandRequest accepts either the native command shape or a Telegram
// bot update.
type commandRequest struct {
	SenderID      string           `json:"sender_id"`
	Command       string           `json:"command"`
	Args          []string         `json:"args"`
	Message       *telegramMessage `json:"message"`
	EditedMessage *telegramMessage `json:"edited_message"`
}

type telegramMessage struct {
	Text string `json:"text"`
	From struct {
		ID int64 `json:"id"`
	} `json:"from"`
}

func (r *commandRequest) toCommand() (models.OwnerCommand, bool) {
	if r.Command != "" {
		return models.OwnerCommand{SenderID: r.SenderID, Command: r.Command, Args: r.Args}, true
	}

	msg := r.Message
	if msg == nil {
		msg = r.EditedMessage
	}
	if msg == nil || msg.Text == "" {
		return models.OwnerCommand{}, false
	}
	return models.OwnerCommand{SenderID: strconv.FormatInt(msg.From.ID, 10), Command: msg.Text}, true
}

// Handle handles POST /api/v1/commands.
//
// Rejections by the processor (unauthorized, rate_limited, invalid_command)
// are answered 200 with ok=false so chat webhooks do not retry them.
//
// Returns:
//   - 200 OK with {"ok": bool, "message"|"data"|"reason"}
//   - 400 Bad Request if the body is not a command
func (h *CommandHandler) Handle(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondError(c, models.ErrInvalidRequest)
		return
	}

	cmd, ok := req.toCommand()
	if !ok {
		middleware.RespondError(c, models.ErrInvalidRequest)
		return
	}
	cmd.ReceivedAt = time.Now()

	ctx := logging.AddFields(c.Request.Context(), zap.String(logging.FieldCommand, cmd.Command))
	c.JSON(http.StatusOK, h.processor.Handle(ctx, cmd))
}
