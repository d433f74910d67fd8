package judge

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/lumen-oj/lumen/taskqueue"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

type wsHandle struct {
	srv    *Service
	logger *zap.Logger
}

// NewWSHandle creates the push-mode handler. Each connection gets tasks
// pushed one at a time; an in-flight task lost to a disconnect is reset
// and requeued.
func NewWSHandle(srv *Service, logger *zap.Logger) Register {
	return &wsHandle{srv: srv, logger: logger}
}

func (h *wsHandle) Register(r *gin.Engine) {
	r.GET("/judge/conn", h.handleConn)
}

func (h *wsHandle) handleConn(ctx *gin.Context) {
	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		ctx.Error(err)
		return
	}
	id := ctx.GetHeader("X-Judger-ID")
	if id == "" {
		id = "ws-" + uuid.NewString()
	}
	c := &wsConn{
		id:           id,
		srv:          h.srv,
		conn:         conn,
		logger:       h.logger.With(zap.String("judger", id)),
		sendCh:       make(chan any, 16),
		taskDone:     make(chan struct{}, 1),
		dispatchDone: make(chan struct{}),
		inflight:     map[primitive.ObjectID]string{},
	}
	c.run()
}

// wsConn is one judger connection. In-flight state is local to the
// connection; no lock is held while waiting for the judger to finish.
type wsConn struct {
	id     string
	srv    *Service
	conn   *websocket.Conn
	logger *zap.Logger

	sendCh       chan any
	taskDone     chan struct{}
	dispatchDone chan struct{}

	mu       sync.Mutex
	inflight map[primitive.ObjectID]string
}

func (c *wsConn) run() {
	connectionsGauge.Inc()
	defer connectionsGauge.Dec()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go c.writeLoop(ctx)
	go c.dispatchLoop(ctx)

	c.readLoop(ctx)

	// the read loop returned, the connection is gone. The dispatch loop
	// must stop tracking before the in-flight map is drained, otherwise a
	// task claimed during teardown stays bound to the dead connection.
	cancel()
	c.conn.Close()
	<-c.dispatchDone
	c.requeueInflight()
}

// readLoop processes next/end messages until the connection drops.
// Reports arrive and apply in send order because reads are sequential.
func (c *wsConn) readLoop(ctx context.Context) {
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, buf, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var env struct {
			Key string `json:"key"`
		}
		if err := json.Unmarshal(buf, &env); err != nil {
			c.logger.Warn("bad judger message", zap.Error(err))
			continue
		}
		switch env.Key {
		case "next":
			var req NextRequest
			if err := json.Unmarshal(buf, &req); err != nil {
				c.logger.Warn("bad next message", zap.Error(err))
				continue
			}
			if err := c.srv.Next(ctx, &req); err != nil {
				c.logger.Warn("next failed", zap.String("rid", req.RecordID.Hex()), zap.Error(err))
			}
		case "end":
			var req EndRequest
			if err := json.Unmarshal(buf, &req); err != nil {
				c.logger.Warn("bad end message", zap.Error(err))
				continue
			}
			if err := c.srv.End(ctx, c.id, &req); err != nil {
				c.logger.Warn("end failed", zap.String("rid", req.RecordID.Hex()), zap.Error(err))
			}
			if c.untrack(req.RecordID) {
				select {
				case c.taskDone <- struct{}{}:
				default:
				}
			}
		default:
			c.logger.Warn("unknown judger message", zap.String("key", env.Key))
		}
	}
}

// dispatchLoop pushes one task at a time, waiting for its end report
// before claiming the next
func (c *wsConn) dispatchLoop(ctx context.Context) {
	defer close(c.dispatchDone)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		p, err := c.srv.Claim(ctx, c.id)
		if err != nil {
			c.logger.Warn("task claim failed", zap.Error(err))
			timer.Reset(taskqueue.DefaultPollInterval)
			continue
		}
		if p == nil {
			timer.Reset(taskqueue.DefaultPollInterval)
			continue
		}
		c.track(p.RecordID, p.DomainID)
		select {
		case <-ctx.Done():
			return
		case c.sendCh <- &TaskResponse{Task: p}:
		}
		select {
		case <-ctx.Done():
			return
		case <-c.taskDone:
		}
		timer.Reset(0)
	}
}

func (c *wsConn) writeLoop(ctx context.Context) {
	defer c.conn.Close()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Warn("ws write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) track(rid primitive.ObjectID, domainID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight[rid] = domainID
}

func (c *wsConn) untrack(rid primitive.ObjectID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.inflight[rid]; !ok {
		return false
	}
	delete(c.inflight, rid)
	return true
}

// requeueInflight resets and re-enqueues every task the judger still held.
// The map is taken under the lock so each task is requeued once.
func (c *wsConn) requeueInflight() {
	c.mu.Lock()
	lost := c.inflight
	c.inflight = map[primitive.ObjectID]string{}
	c.mu.Unlock()

	for rid, domainID := range lost {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := c.srv.Requeue(ctx, domainID, rid); err != nil {
			c.logger.Error("requeue after disconnect failed",
				zap.String("rid", rid.Hex()), zap.Error(err))
		} else {
			c.logger.Info("requeued in-flight task after disconnect",
				zap.String("rid", rid.Hex()))
		}
		cancel()
	}
}
