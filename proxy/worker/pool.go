// Package worker provides an asynchronous worker pool that records completed
// relay turns in the session store and publishes them on the event stream.
//
// The pool decouples storage and publishing from the relay's HTTP hot path so
// a slow database or broker never delays an answer.
package worker

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/papercomputeco/ragora/pkg/eventstream"
	"github.com/papercomputeco/ragora/pkg/ragora"
	"github.com/papercomputeco/ragora/pkg/storage"
	"github.com/papercomputeco/ragora/pkg/utils"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// titleLength is the rune length of a session title derived from its first
// question.
const titleLength = 60

// Job is one completed question/answer exchange.
type Job struct {
	// Session describes the session the turn belongs to. It is created on
	// first use; later jobs only refresh its RemoteSessionID.
	Session *storage.Session

	Question     string
	Answer       string
	FinishReason string
	Sources      []ragora.SearchResult

	Path        string
	StartedAt   time.Time
	CompletedAt time.Time
	Streaming   bool
	HTTPStatus  int
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the storage backend turns are appended to.
	Driver storage.Driver

	// Publisher receives a TurnCompletedEvent per recorded job. Optional.
	Publisher eventstream.Publisher

	// Source stamps every published event.
	Source eventstream.EventSource

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of each worker's buffered job channel (defaults to 256).
	QueueSize uint

	Logger *slog.Logger
}

// Pool records jobs asynchronously. Jobs of the same session always land on
// the same worker so their turns are appended in enqueue order.
type Pool struct {
	config *Config
	queues []chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Driver == nil {
		return nil, fmt.Errorf("worker pool requires a storage driver")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	wp := &Pool{
		config: c,
		queues: make([]chan Job, c.NumWorkers),
		logger: logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range wp.queues {
		wp.queues[i] = make(chan Job, c.QueueSize)
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is closed,
// resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	if job.Session == nil || job.Session.ID == "" {
		p.logger.Error("job not queued, missing session")
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Error("job not queued, pool closed", "session_id", job.Session.ID)
		return false
	}

	select {
	case p.queues[p.shard(job.Session.ID)] <- job:
		p.logger.Debug("job queued", "session_id", job.Session.ID, "path", job.Path)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped", "session_id", job.Session.ID)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the relay HTTP server has stopped.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) shard(sessionID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return int(h.Sum32() % uint32(len(p.queues)))
}

// worker is the inner worker thread that continuously pulls jobs off its queue
func (p *Pool) worker(id int) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queues[id] {
		p.processJob(job)
	}

	p.logger.Debug("recorder worker stopped", "worker_id", id)
}

func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	userTurn, assistantTurn, err := p.recordTurn(ctx, job)
	if err != nil {
		p.logger.Error("recording turn failed", "session_id", job.Session.ID, "error", err)
		return
	}

	p.logger.Info("turn recorded",
		"session_id", job.Session.ID,
		"seq", assistantTurn.Seq,
		"sources", len(job.Sources),
	)

	if p.config.Publisher == nil {
		return
	}

	event := eventstream.NewTurnCompletedEvent(
		p.config.Source,
		eventstream.TurnRequestMeta{
			Path:        job.Path,
			StartedAt:   job.StartedAt,
			CompletedAt: job.CompletedAt,
			Streaming:   job.Streaming,
			HTTPStatus:  job.HTTPStatus,
		},
		eventstream.SessionMeta{
			SessionID:       job.Session.ID,
			Kind:            job.Session.Kind,
			AgentID:         job.Session.AgentID,
			RemoteSessionID: job.Session.RemoteSessionID,
			UserSeq:         userTurn.Seq,
			AssistantSeq:    assistantTurn.Seq,
		},
		eventstream.Turn{
			Model:        job.Session.Model,
			Collections:  job.Session.Collections,
			Question:     job.Question,
			Answer:       job.Answer,
			FinishReason: job.FinishReason,
			Sources:      job.Sources,
		},
	)
	if err := p.config.Publisher.PublishTurn(ctx, event); err != nil {
		p.logger.Warn("publishing turn event failed", "event_id", event.EventID, "error", err)
	}
}

// recordTurn makes sure the session exists and stores the question and the
// answer together. Per-request overrides of the model, the collections and
// the remote session are written back to an existing session.
func (p *Pool) recordTurn(ctx context.Context, job Job) (*storage.Turn, *storage.Turn, error) {
	driver := p.config.Driver

	existing, err := driver.GetSession(ctx, job.Session.ID)
	switch {
	case storage.IsNotFound(err):
		session := *job.Session
		if session.Title == "" {
			session.Title = utils.Truncate(utils.SingleLine(job.Question), titleLength)
		}
		if err := driver.PutSession(ctx, &session); err != nil {
			return nil, nil, fmt.Errorf("creating session: %w", err)
		}
	case err != nil:
		return nil, nil, fmt.Errorf("loading session: %w", err)
	case mergeSession(existing, job.Session):
		if err := driver.PutSession(ctx, existing); err != nil {
			return nil, nil, fmt.Errorf("updating session: %w", err)
		}
	}

	created := job.CompletedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	userTurn := &storage.Turn{
		SessionID: job.Session.ID,
		Role:      ragora.RoleUser,
		Content:   job.Question,
		CreatedAt: created,
	}
	assistantTurn := &storage.Turn{
		SessionID:    job.Session.ID,
		Role:         ragora.RoleAssistant,
		Content:      job.Answer,
		FinishReason: job.FinishReason,
		Sources:      job.Sources,
		CreatedAt:    created,
	}
	if err := driver.AppendTurns(ctx, userTurn, assistantTurn); err != nil {
		return nil, nil, fmt.Errorf("storing turn: %w", err)
	}

	return userTurn, assistantTurn, nil
}

// mergeSession copies the non-empty model, collections and remote session of
// update onto stored and reports whether anything changed.
func mergeSession(stored, update *storage.Session) bool {
	changed := false
	if update.RemoteSessionID != "" && stored.RemoteSessionID != update.RemoteSessionID {
		stored.RemoteSessionID = update.RemoteSessionID
		changed = true
	}
	if update.Model != "" && stored.Model != update.Model {
		stored.Model = update.Model
		changed = true
	}
	if len(update.Collections) > 0 && !slices.Equal(stored.Collections, update.Collections) {
		stored.Collections = slices.Clone(update.Collections)
		changed = true
	}
	return changed
}
