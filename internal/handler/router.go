package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/gemini-chat/backend/internal/handler/chat"
	"github.com/zhouzirui/gemini-chat/backend/internal/handler/stream"
	"github.com/zhouzirui/gemini-chat/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/gemini-chat/backend/internal/middleware"
	chatService "github.com/zhouzirui/gemini-chat/backend/internal/service/chat"
	"github.com/zhouzirui/gemini-chat/backend/internal/service/events"
	"github.com/zhouzirui/gemini-chat/backend/pkg/utils"
)

// NewRouter wires HTTP routes to the session controller and its event bus.
func NewRouter(session *chatService.Controller, bus *events.Bus) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	chatHandler := chat.New(session)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)

		api.Method(http.MethodGet, "/events", stream.New(bus, session))
		api.Method(http.MethodGet, "/ws", ws.NewWebSocketHandler(session, bus))
	})

	return r
}
