package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	chatService "github.com/zhouzirui/gemini-chat/backend/internal/service/chat"
	"github.com/zhouzirui/gemini-chat/backend/internal/service/events"
)

type staticCompleter string

func (s staticCompleter) Complete(context.Context, string) (string, error) {
	return string(s), nil
}

func TestRouterRoutes(t *testing.T) {
	bus := events.NewBus(nil)
	defer bus.Close()
	session := chatService.NewController(staticCompleter("pong"), chatService.WithPublisher(bus))
	router := NewRouter(session, bus)

	cases := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/api/session", "", http.StatusOK},
		{http.MethodGet, "/api/messages", "", http.StatusOK},
		{http.MethodGet, "/api/busy", "", http.StatusOK},
		{http.MethodPost, "/api/messages", `{"text":"ping"}`, http.StatusOK},
		{http.MethodGet, "/api/unknown", "", http.StatusNotFound},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, bytes.NewBufferString(tc.body))
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		assert.Equal(t, tc.want, resp.Code, "%s %s", tc.method, tc.path)
		assert.NotEmpty(t, resp.Header().Get("Access-Control-Allow-Origin"))
	}

	assert.Len(t, session.Messages(), 3)
}
