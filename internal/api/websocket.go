// internal/api/websocket.go
package api

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Corphon/SceneComposer/internal/models"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// JobMessage is one frame pushed to job watchers
type JobMessage struct {
	Type string     `json:"type"`
	Job  models.Job `json:"job"`
}

// jobWatcher is one websocket connection following the current render job
type jobWatcher struct {
	conn   *websocket.Conn
	closed int32
}

func (w *jobWatcher) close() {
	if atomic.CompareAndSwapInt32(&w.closed, 0, 1) {
		w.conn.Close()
	}
}

func (w *jobWatcher) isClosed() bool {
	return atomic.LoadInt32(&w.closed) == 1
}

// JobUpdates streams render job state changes over a websocket. The current
// state is sent first.
func (h *Handler) JobUpdates(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	watcher := &jobWatcher{conn: conn}
	updates := h.Project.Poller.Subscribe()
	defer h.Project.Poller.Unsubscribe(updates)
	defer watcher.close()

	h.logger.Debug("job watcher connected", map[string]interface{}{
		"remote": c.ClientIP(),
	})

	done := make(chan struct{})
	go h.readJobWatcher(watcher, done)

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case job, ok := <-updates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(JobMessage{Type: "job_update", Job: job}); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readJobWatcher drains client frames so pongs and close frames are processed
func (h *Handler) readJobWatcher(w *jobWatcher, done chan struct{}) {
	defer close(done)

	w.conn.SetReadLimit(4096)
	w.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := w.conn.ReadMessage(); err != nil {
			if !w.isClosed() && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("job watcher read failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
			return
		}
	}
}
