package signaling

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/physioconnect/consult/backend/internal/config"
	"github.com/physioconnect/consult/backend/internal/service/relay"
)

// WebSocketHandler WebSocket信令处理器
type WebSocketHandler struct {
	relay    *relay.Relay
	cfg      config.RelayConfig
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(r *relay.Relay, cfg config.RelayConfig, log logrus.FieldLogger) *WebSocketHandler {
	return &WebSocketHandler{
		relay: r,
		cfg:   cfg,
		log:   log.WithField("component", "websocket"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("upgrade failed: %v", err)
		return
	}

	conn, err := h.relay.Connect()
	if err != nil {
		h.log.Warnf("rejecting connection: %v", err)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(h.cfg.WriteWait))
		_ = ws.Close()
		return
	}

	entry := h.log.WithFields(logrus.Fields{"conn": conn.ID(), "remote": r.RemoteAddr})
	entry.Info("connection established")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ws, conn, entry)
	}()

	h.readLoop(r, ws, conn, entry)

	h.relay.Leave(conn)
	<-writerDone
	entry.Info("connection closed")
}

// readLoop feeds text frames to the relay until the socket fails.
func (h *WebSocketHandler) readLoop(r *http.Request, ws *websocket.Conn, conn *relay.Conn, entry logrus.FieldLogger) {
	if h.cfg.ReadLimit > 0 {
		ws.SetReadLimit(h.cfg.ReadLimit)
	}
	_ = ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				entry.Warnf("read error: %v", err)
			}
			return
		}

		_ = ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

		if kind != websocket.TextMessage {
			entry.Debug("ignoring non-text frame")
			continue
		}
		h.relay.Handle(r.Context(), conn, data)
	}
}

// writeLoop drains the relay queue onto the socket and keeps it alive with
// pings. It owns all writes to ws.
func (h *WebSocketHandler) writeLoop(ws *websocket.Conn, conn *relay.Conn, entry logrus.FieldLogger) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case frame, ok := <-conn.Outbound():
			_ = ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				entry.Debugf("write failed: %v", err)
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
