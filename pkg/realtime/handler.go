package realtime

import (
	"context"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"

	"github.com/sodav-monitor/sodav/pkg/auth"
	"github.com/sodav-monitor/sodav/pkg/httputil"
)

// BearerResolver authenticates the connecting user.
type BearerResolver interface {
	ResolveBearer(ctx context.Context, header string) (*auth.Principal, error)
}

// Handler upgrades authenticated requests to websocket clients. Browsers
// cannot set headers on websocket requests, so the token may be passed as
// the access_token query parameter. channel_id selects the initial room.
func (h *Hub) Handler(resolver BearerResolver, allowedOrigins []string) http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if token := r.URL.Query().Get("access_token"); token != "" {
			header = "Bearer " + token
		}
		principal, err := resolver.ResolveBearer(r.Context(), header)
		if err != nil {
			httputil.WriteAuthError(w, r, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the error response.
			return
		}

		c := newClient(h, conn, principal.UserID(), r.URL.Query().Get("channel_id"))
		if !h.join(r.Context(), c) {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "shutting down"))
			_ = conn.Close()
			return
		}
		go c.writePump()
		go c.readPump()
	})
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
