package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/gemini-chat/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/gemini-chat/backend/internal/service/chat"
	"github.com/zhouzirui/gemini-chat/backend/internal/service/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

// Session is what the WebSocket handler needs from the session controller.
type Session interface {
	Submit(ctx context.Context, text string) chatservice.SubmitResult
	Snapshot() chat.Snapshot
}

// Subscriber hands out session event subscriptions.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan events.Event, error)
}

// WebSocketHandler WebSocket会话处理器
type WebSocketHandler struct {
	session  Session
	events   Subscriber
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(session Session, subscriber Subscriber) *WebSocketHandler {
	return &WebSocketHandler{
		session: session,
		events:  subscriber,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SubmitMessage 提交消息
type SubmitMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func newOutgoing(typ string, data interface{}) outgoingMessage {
	return outgoingMessage{Type: typ, Data: data, Timestamp: time.Now().UnixMilli()}
}

// ServeHTTP upgrades the connection and relays session events until either
// side goes away. Clients may submit with {"type":"submit","data":{"text":"..."}}.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := h.events.Subscribe(ctx)
	if err != nil {
		log.Error().Err(err).Str("component", "ws").Msg("failed to subscribe")
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "ws").Msg("upgrade failed")
		return
	}
	defer conn.Close()

	send := make(chan outgoingMessage, sendBuffer)
	send <- newOutgoing(string(events.TypeTranscript), events.TranscriptChanged(h.session.Snapshot()))

	go h.writePump(ctx, cancel, conn, sub, send)
	h.readPump(ctx, conn, send)
	log.Debug().Str("component", "ws").Msg("connection closed")
}

// readPump owns reads on conn and returns when the client disconnects.
func (h *WebSocketHandler) readPump(ctx context.Context, conn *websocket.Conn, send chan<- outgoingMessage) {
	conn.SetReadLimit(64 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("component", "ws").Msg("read failed")
			}
			return
		}

		switch msg.Type {
		case "submit":
			var payload SubmitMessage
			if err := json.Unmarshal(msg.Data, &payload); err != nil {
				enqueue(ctx, send, newOutgoing("error", map[string]string{"message": "invalid submit payload"}))
				continue
			}
			go func(text string) {
				result := h.session.Submit(context.Background(), text)
				enqueue(ctx, send, newOutgoing("submit_result", result))
			}(payload.Text)
		case "ping":
			enqueue(ctx, send, newOutgoing("pong", nil))
		default:
			enqueue(ctx, send, newOutgoing("error", map[string]string{"message": "unknown message type"}))
		}
	}
}

// writePump is the only goroutine writing to conn.
func (h *WebSocketHandler) writePump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sub <-chan events.Event, send <-chan outgoingMessage) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		_ = conn.Close()
	}()

	write := func(msg outgoingMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			log.Debug().Err(err).Str("component", "ws").Msg("write failed")
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-send:
			if !write(msg) {
				return
			}
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if !write(newOutgoing(string(ev.Type), ev)) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func enqueue(ctx context.Context, send chan<- outgoingMessage, msg outgoingMessage) {
	select {
	case send <- msg:
	case <-ctx.Done():
	}
}
