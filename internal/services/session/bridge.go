// Websocket proxy between the session's public bridge endpoint and the
// local websockify port. Access is token-gated by the caller before the
// upgrade happens.

package session

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/billfetch/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The bridge URL is shared out-of-band; the token is the access control.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ProxyBridge upgrades the inbound request and relays frames to the
// session's websockify port in both directions until either side closes.
func (m *Manager) ProxyBridge(w http.ResponseWriter, r *http.Request, session *models.InteractiveSession) error {
	backendURL := fmt.Sprintf("ws://localhost:%d/", session.BridgePort)

	backend, _, err := websocket.DefaultDialer.Dial(backendURL, nil)
	if err != nil {
		return fmt.Errorf("failed to reach session bridge: %w", err)
	}
	defer backend.Close()

	client, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade failed: %w", err)
	}
	defer client.Close()

	m.logger.Info().
		Str("session_id", session.ID).
		Str("remote", r.RemoteAddr).
		Msg("Bridge connection established")

	var once sync.Once
	done := make(chan struct{})
	closeBoth := func() {
		once.Do(func() {
			close(done)
			client.Close()
			backend.Close()
		})
	}

	go relayFrames(client, backend, closeBoth)
	go relayFrames(backend, client, closeBoth)
	<-done

	m.logger.Debug().Str("session_id", session.ID).Msg("Bridge connection closed")
	return nil
}

// relayFrames copies websocket messages from src to dst until an error.
func relayFrames(src, dst *websocket.Conn, closeBoth func()) {
	defer closeBoth()
	for {
		msgType, payload, err := src.ReadMessage()
		if err != nil {
			return
		}
		if err := dst.WriteMessage(msgType, payload); err != nil {
			return
		}
	}
}
