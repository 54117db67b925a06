package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/gemini-chat/backend/internal/model/chat"
	"github.com/zhouzirui/gemini-chat/backend/internal/service/events"
	"github.com/zhouzirui/gemini-chat/backend/pkg/utils"
)

const heartbeatInterval = 15 * time.Second

// Subscriber hands out session event subscriptions.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan events.Event, error)
}

// Snapshotter exposes the current session state.
type Snapshotter interface {
	Snapshot() chat.Snapshot
}

// Handler streams session events via Server-Sent Events.
type Handler struct {
	events    Subscriber
	session   Snapshotter
	heartbeat time.Duration
}

// New creates a new stream handler
func New(subscriber Subscriber, session Snapshotter) *Handler {
	return &Handler{events: subscriber, session: session, heartbeat: heartbeatInterval}
}

// ServeHTTP opens the event stream. The current snapshot is sent first so a
// freshly connected client can render without a separate request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	sub, err := h.events.Subscribe(ctx)
	if err != nil {
		log.Error().Err(err).Str("component", "sse").Msg("failed to subscribe")
		utils.RespondError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	if err := utils.SendSSEEvent(w, flusher, string(events.TypeTranscript), events.TranscriptChanged(h.session.Snapshot())); err != nil {
		return
	}

	log.Debug().Str("component", "sse").Msg("opening event stream")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("component", "sse").Msg("closing event stream")
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, string(ev.Type), ev); err != nil {
				log.Debug().Err(err).Str("component", "sse").Msg("client gone")
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}
