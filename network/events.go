package network

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleEvents streams every block recorded after the connection is opened
// as a JSON message.
func (s *Server) handleEvents(rw http.ResponseWriter, req *http.Request) {
	if s.chain == nil {
		writeError(rw, http.StatusNotFound, "NOT_FOUND", "no journal attached")
		return
	}
	// subscribe before the handshake completes so no block is missed
	blocks, cancel := s.chain.Subscribe(16)
	defer cancel()

	ws, err := upgrader.Upgrade(rw, req, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade the websocket", "err", err)
		return
	}
	defer ws.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.logger.Debug("event subscriber connected", "remote", req.RemoteAddr)
	for {
		select {
		case b, ok := <-blocks:
			if !ok {
				return
			}
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(b); err != nil {
				s.logger.Debug("event subscriber gone", "err", err)
				return
			}
		case <-closed:
			return
		case <-s.done:
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}
