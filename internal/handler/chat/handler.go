package chat

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/zhouzirui/gemini-chat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/gemini-chat/backend/internal/service/chat"
	"github.com/zhouzirui/gemini-chat/backend/pkg/utils"
)

// maxSubmitBodySize 与 WebSocket 读取上限一致
const maxSubmitBodySize = 64 * 1024

// Handler 聊天会话的HTTP处理器
type Handler struct {
	session *chatService.Controller
}

// New 创建聊天处理器
func New(session *chatService.Controller) *Handler {
	return &Handler{session: session}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/session", h.handleSnapshot)
	r.Get("/messages", h.handleListMessages)
	r.Get("/busy", h.handleBusy)
	r.Post("/messages", h.handleSubmit)
}

// SubmitResponse is the body returned by POST /messages.
type SubmitResponse struct {
	Status   chatService.SubmitStatus `json:"status"`
	Skip     chatService.SkipReason   `json:"skip,omitempty"`
	User     *chat.Message            `json:"user,omitempty"`
	Reply    *chat.Message            `json:"reply,omitempty"`
	Error    string                   `json:"error,omitempty"`
	Snapshot chat.Snapshot            `json:"snapshot"`
}

// handleSnapshot 返回会话快照
func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.session.Snapshot())
}

// handleListMessages 返回消息列表
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.session.Messages())
}

// handleBusy 返回是否有请求正在进行
func (h *Handler) handleBusy(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"busy": h.session.Busy()})
}

// handleSubmit 提交用户消息并等待回复
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxSubmitBodySize)
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// The exchange must finish even if the client goes away.
	result := h.session.Submit(context.WithoutCancel(r.Context()), payload.Text)

	resp := SubmitResponse{
		Status:   result.Status,
		Skip:     result.Skip,
		User:     result.User,
		Reply:    result.Reply,
		Snapshot: h.session.Snapshot(),
	}

	status := http.StatusOK
	if result.Status == chatService.StatusFailed {
		status = http.StatusBadGateway
		resp.Error = chatService.NotifyCompletionFailed
	}

	utils.RespondJSON(w, status, resp)
}
