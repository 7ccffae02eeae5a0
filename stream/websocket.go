package stream

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Handler upgrades requests to WebSocket and pumps hub frames to the
// client. The agent filter comes from the agent_id query parameter;
// omitting it subscribes to all agents.
func Handler(hub *Hub, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "stream_ws"))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agentID := r.URL.Query().Get("agent_id")
		sub, err := hub.Subscribe(agentID)
		if err != nil {
			http.Error(w, "stream unavailable", http.StatusServiceUnavailable)
			return
		}
		defer sub.Close()

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			logger.Warn("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// 读泵只为感知客户端断开；本端点不接受入站消息。
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.Read(ctx); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-sub.Frames():
				if !ok {
					// 被 Hub 判定为慢订阅者丢弃。
					conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
					return
				}
				if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
					logger.Debug("websocket write failed", zap.Error(err))
					return
				}
			}
		}
	})
}
