package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vaxsync/vaxsync-backend/internal/config"
	"github.com/vaxsync/vaxsync-backend/internal/middleware"
	"github.com/vaxsync/vaxsync-backend/internal/model"
	"github.com/vaxsync/vaxsync-backend/internal/response"
	"github.com/vaxsync/vaxsync-backend/internal/service"
	ws "github.com/vaxsync/vaxsync-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// StudentLookup resolves a student within the caller's school scope.
type StudentLookup interface {
	GetByID(ctx context.Context, scope *uuid.UUID, id uuid.UUID) (*model.Student, error)
}

// DerivationHandler triggers recomputes and streams derivation progress.
type DerivationHandler struct {
	rdb      *redis.Client
	students StudentLookup
	queue    service.RecomputeEnqueuer
	audit    service.AuditRecorder
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewDerivationHandler creates a new DerivationHandler.
func NewDerivationHandler(rdb *redis.Client, students StudentLookup, queue service.RecomputeEnqueuer, audit service.AuditRecorder, log zerolog.Logger, allowedOrigins []string) *DerivationHandler {
	return &DerivationHandler{
		rdb:      rdb,
		students: students,
		queue:    queue,
		audit:    audit,
		log:      log.With().Str("component", "derivation_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// TriggerDerivation godoc
// POST /api/v1/admin/derivations
// Queues a forced full recompute. Progress is reported on the stream.
func (h *DerivationHandler) TriggerDerivation(c *gin.Context) {
	if err := h.queue.EnqueueAll(c.Request.Context()); err != nil {
		failFromError(c, err)
		return
	}

	h.audit.Record(c.Request.Context(), middleware.Actor(c), "triggered full compliance recompute")
	response.Success(c, http.StatusAccepted, gin.H{"status": "queued"})
}

// RecomputeStudent godoc
// POST /api/v1/students/:id/recompute
// School nurses may only recompute students of their own school.
func (h *DerivationHandler) RecomputeStudent(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := h.students.GetByID(ctx, scopeOf(c), id); err != nil {
		failFromError(c, err)
		return
	}

	if err := h.queue.EnqueueStudents(ctx, id); err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{"status": "queued"})
}

// QueueStatus godoc
// GET /api/v1/admin/derivations/status
// Reports pending recompute requests and whether a pass holds the lock.
func (h *DerivationHandler) QueueStatus(c *gin.Context) {
	ctx := c.Request.Context()
	pipe := h.rdb.Pipeline()
	pendingCmd := pipe.LLen(ctx, config.WorkerKey.RecomputeComplianceQueue)
	lockCmd := pipe.Exists(ctx, config.CacheKey.DerivationLockKey())
	if _, err := pipe.Exec(ctx); err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"pending":        pendingCmd.Val(),
		"derivation_run": lockCmd.Val() > 0,
	})
}

// StreamProgress godoc
// WS /ws/v1/admin/derivations/stream?token=
// Forwards derivation progress events until the client disconnects.
func (h *DerivationHandler) StreamProgress(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("subject", claims.Subject).Logger()
	wsLog.Info().Msg("Progress stream connected")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub := h.rdb.Subscribe(ctx, config.CacheKey.DerivationProgressChannel())
	defer sub.Close()

	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return ws.WriteTyped(conn, v)
	}

	// The reader answers pings and ends the stream when the client goes away.
	go h.readLoop(conn, wsLog, write, cancel)

	events := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			wsLog.Debug().Msg("Progress stream closed")
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			payload, err := ws.DecodeProgress(msg.Payload)
			if err != nil {
				wsLog.Warn().Err(err).Msg("Dropping malformed progress event")
				continue
			}
			if err := write(payload); err != nil {
				wsLog.Debug().Err(err).Msg("Progress write failed")
				return
			}
		}
	}
}

func (h *DerivationHandler) readLoop(conn *websocket.Conn, log zerolog.Logger, write func(any) error, done context.CancelFunc) {
	defer done()
	for {
		var msg ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Unexpected close")
			}
			return
		}

		switch msg.Action {
		case ws.ActionPing:
			if err := write(ws.PongResponse{Event: ws.EventPong}); err != nil {
				return
			}
		default:
			log.Debug().Str("action", string(msg.Action)).Msg("Ignoring unknown action")
		}
	}
}
