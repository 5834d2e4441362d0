package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vaxsync/vaxsync-backend/internal/config"
	"github.com/vaxsync/vaxsync-backend/internal/model"
	"github.com/vaxsync/vaxsync-backend/internal/service"
)

const (
	RecomputeBatchSize    = 200
	RecomputeBatchTimeout = 2 * time.Second
	RecomputePollTimeout  = 1 * time.Second

	// requeueTimeout bounds the push-back once the worker context is gone.
	requeueTimeout = 5 * time.Second
)

// Recomputer is the slice of the derivation service the worker drives.
type Recomputer interface {
	Run(ctx context.Context, opts service.RunOptions) (*service.RunResult, error)
	RecomputeStudents(ctx context.Context, ids []uuid.UUID) (*service.RunResult, error)
}

// RecomputeWorker drains the recompute queue, coalescing per-student
// requests into batches. A full-recompute marker in a batch supersedes the
// per-student requests alongside it.
type RecomputeWorker struct {
	rdb     *redis.Client
	svc     Recomputer
	log     zerolog.Logger
	requeue func(ctx context.Context, reqs []model.RecomputeRequest)
}

func NewRecomputeWorker(rdb *redis.Client, svc Recomputer, log zerolog.Logger) *RecomputeWorker {
	w := &RecomputeWorker{
		rdb: rdb,
		svc: svc,
		log: log.With().Str("component", "recompute_worker").Logger(),
	}
	w.requeue = w.pushBack
	return w
}

// recomputeBatch accumulates de-duplicated requests between flushes.
type recomputeBatch struct {
	all  bool
	ids  []uuid.UUID
	seen map[uuid.UUID]struct{}
}

func newRecomputeBatch() *recomputeBatch {
	return &recomputeBatch{seen: make(map[uuid.UUID]struct{})}
}

func (b *recomputeBatch) add(req model.RecomputeRequest) {
	if req.All {
		b.all = true
		return
	}
	if req.StudentID == nil || *req.StudentID == uuid.Nil {
		return
	}
	if _, ok := b.seen[*req.StudentID]; ok {
		return
	}
	b.seen[*req.StudentID] = struct{}{}
	b.ids = append(b.ids, *req.StudentID)
}

func (b *recomputeBatch) size() int {
	n := len(b.ids)
	if b.all {
		n++
	}
	return n
}

func (b *recomputeBatch) requests() []model.RecomputeRequest {
	if b.all {
		return []model.RecomputeRequest{{All: true}}
	}
	reqs := make([]model.RecomputeRequest, len(b.ids))
	for i := range b.ids {
		reqs[i] = model.RecomputeRequest{StudentID: &b.ids[i]}
	}
	return reqs
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *RecomputeWorker) Start(ctx context.Context) {
	w.log.Info().Msg("RecomputeWorker started")

	batch := newRecomputeBatch()
	lastFlush := time.Now()

	for {
		if batch.size() > 0 &&
			(batch.size() >= RecomputeBatchSize || time.Since(lastFlush) >= RecomputeBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = newRecomputeBatch()
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			// Pending requests survive the restart on the queue.
			w.log.Info().Int("pending", batch.size()).Msg("Shutdown requested. Requeueing pending batch...")
			w.requeue(context.Background(), batch.requests())
			return

		default:
			item, err := w.rdb.BLPop(ctx, RecomputePollTimeout, config.WorkerKey.RecomputeComplianceQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var req model.RecomputeRequest
			if err := json.Unmarshal([]byte(item[1]), &req); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch.add(req)
		}
	}
}

// ----------------------------------------------------------------
// Flush with requeue fallback
// ----------------------------------------------------------------

func (w *RecomputeWorker) flushSafe(ctx context.Context, batch *recomputeBatch) {
	if batch.size() == 0 {
		return
	}

	var (
		res *service.RunResult
		err error
	)
	if batch.all {
		res, err = w.svc.Run(ctx, service.RunOptions{Force: true})
	} else {
		res, err = w.svc.RecomputeStudents(ctx, batch.ids)
	}

	if err != nil {
		lvl := w.log.Error()
		if errors.Is(err, service.ErrDerivationRunning) {
			lvl = w.log.Info()
		}
		lvl.Err(err).
			Bool("all", batch.all).
			Int("students", len(batch.ids)).
			Msg("Recompute failed, requeueing")

		// Shutdown cancels ctx mid-pass; the requests must still reach the queue.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requeueTimeout)
		defer cancel()
		w.requeue(rctx, batch.requests())
		return
	}

	w.log.Debug().
		Bool("all", batch.all).
		Int("students", res.Students).
		Int("non_compliant", res.NonCompliant).
		Msg("Recompute batch applied")
}

func (w *RecomputeWorker) pushBack(ctx context.Context, reqs []model.RecomputeRequest) {
	if len(reqs) == 0 {
		return
	}
	payloads := make([]any, 0, len(reqs))
	for _, r := range reqs {
		raw, err := json.Marshal(r)
		if err != nil {
			continue
		}
		payloads = append(payloads, raw)
	}
	if err := w.rdb.RPush(ctx, config.WorkerKey.RecomputeComplianceQueue, payloads...).Err(); err != nil {
		w.log.Error().Err(err).Int("requests", len(payloads)).Msg("Requeue failed, requests dropped")
	}
}
