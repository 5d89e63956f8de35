package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/crowvale/taskdeck/internal/feed"
	"github.com/crowvale/taskdeck/internal/workflow"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

type snapshotMessage struct {
	Type  string          `json:"type"`
	Tasks []workflow.Task `json:"tasks"`
}

// handleTasksWS streams full task snapshots over a websocket. Each connection
// owns one feed subscription, registered under a per-connection key so the
// listener registry can tear it down if the connection is replaced.
func (s *Server) handleTasksWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	key := "tasks:ws:" + uuid.NewString()
	snapshots := make(chan []workflow.Task, 8)

	err = s.listeners.Subscribe(key, func() (feed.Teardown, error) {
		return s.gw.SubscribeTasks(func(tasks []workflow.Task) {
			select {
			case snapshots <- tasks:
			default:
				// Slow consumer; the next snapshot carries full state anyway.
			}
		})
	})
	if err != nil {
		s.logger.Warn("feed subscribe failed", zap.String("key", key), zap.Error(err))
		_ = conn.Close()
		return
	}

	if s.metrics != nil {
		s.metrics.FeedSubscribers.Inc()
	}
	s.logger.Info("feed client connected", zap.String("key", key))

	done := make(chan struct{})

	// Reader exists only to notice the peer going away.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		s.listeners.Unsubscribe(key)
		_ = conn.Close()
		if s.metrics != nil {
			s.metrics.FeedSubscribers.Dec()
		}
		s.logger.Info("feed client disconnected", zap.String("key", key))
	}()

	for {
		select {
		case <-done:
			return
		case tasks := <-snapshots:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(snapshotMessage{Type: "tasks_snapshot", Tasks: tasks}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
