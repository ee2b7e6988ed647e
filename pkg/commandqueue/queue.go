package commandqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harun/loom/internal/observability"
	"github.com/harun/loom/internal/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Task represents an asynchronous operation to be executed
type Task func(ctx context.Context) (interface{}, error)

// taskRecord tracks a task's execution state
type taskRecord struct {
	id         string
	task       Task
	ctx        context.Context
	generation int
	enqueuedAt time.Time
	result     chan taskResult
}

type taskResult struct {
	value interface{}
	err   error
}

// laneState manages execution state for a single lane
type laneState struct {
	generation  int
	concurrency int
	queue       []*taskRecord
	running     int
	activeIDs   map[string]bool
	mu          sync.Mutex
}

// Queue provides lane-based task serialization. Tasks enqueued on the
// same lane run one after another in arrival order; distinct lanes run
// independently. Session lanes use concurrency 1, which is what makes
// concurrent turn submissions for one session safe.
type Queue struct {
	lanes     map[string]*laneState
	taskIDSeq int
	mu        sync.RWMutex
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// SessionLane returns the lane name that serializes turns for a session.
func SessionLane(sessionKey string) string {
	return "session-" + sessionKey
}

// New creates a new Queue
func New() *Queue {
	observability.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())

	return &Queue{
		lanes:  make(map[string]*laneState),
		ctx:    ctx,
		cancel: cancel,
	}
}

// initLane initializes a lane with specified concurrency
func (q *Queue) initLane(lane string, concurrency int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.lanes[lane]; !exists {
		q.lanes[lane] = &laneState{
			generation:  0,
			concurrency: concurrency,
			queue:       make([]*taskRecord, 0),
			activeIDs:   make(map[string]bool),
		}
		log.Debug().Str("lane", lane).Int("concurrency", concurrency).Msg("Lane initialized")
	}
}

// Enqueue adds a task to the specified lane and blocks until it completes
func (q *Queue) Enqueue(lane string, task Task) (interface{}, error) {
	return q.EnqueueWithContext(context.Background(), lane, task)
}

// EnqueueWithContext adds a task to the specified lane, propagates
// context metadata, and blocks until the task completes.
func (q *Queue) EnqueueWithContext(ctx context.Context, lane string, task Task) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := tracing.StartSpan(
		ctx,
		"loom.commandqueue",
		"commandqueue.enqueue",
		attribute.String("lane", lane),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, log.Logger)

	q.ensureLane(lane)

	q.mu.Lock()
	q.taskIDSeq++
	taskID := fmt.Sprintf("%s-%d", lane, q.taskIDSeq)
	ls := q.lanes[lane]
	q.mu.Unlock()

	record := &taskRecord{
		id:         taskID,
		task:       task,
		ctx:        ctx,
		enqueuedAt: time.Now(),
		result:     make(chan taskResult, 1),
	}

	ls.mu.Lock()
	record.generation = ls.generation
	ls.queue = append(ls.queue, record)
	queueSize := len(ls.queue)
	ls.mu.Unlock()

	logger.Debug().
		Str("lane", lane).
		Str("taskId", taskID).
		Int("queueSize", queueSize).
		Msg("Task enqueued")

	observability.RecordQueueEnqueue(lane, queueSize)

	go q.processLane(lane)

	result := <-record.result
	if result.err != nil {
		span.RecordError(result.err)
		span.SetStatus(codes.Error, result.err.Error())
	}
	return result.value, result.err
}

// ensureLane creates a lane if it doesn't exist
func (q *Queue) ensureLane(lane string) {
	q.mu.RLock()
	_, exists := q.lanes[lane]
	q.mu.RUnlock()

	if !exists {
		q.initLane(lane, 1)
	}
}

// processLane processes queued tasks for a lane
func (q *Queue) processLane(lane string) {
	q.mu.RLock()
	ls := q.lanes[lane]
	q.mu.RUnlock()

	ls.mu.Lock()
	defer ls.mu.Unlock()

	for ls.running < ls.concurrency && len(ls.queue) > 0 {
		record := ls.queue[0]
		ls.queue = ls.queue[1:]

		// Stale tasks carry the generation of a lane that was since reset
		if record.generation != ls.generation {
			record.result <- taskResult{
				err: fmt.Errorf("task cancelled due to lane reset"),
			}
			close(record.result)
			continue
		}

		ls.running++
		ls.activeIDs[record.id] = true

		logger := tracing.LoggerFromContext(record.ctx, log.Logger)
		logger.Debug().
			Str("lane", lane).
			Str("taskId", record.id).
			Int("running", ls.running).
			Msg("Task started")

		q.wg.Add(1)
		go q.executeTask(lane, record)
	}
}

// executeTask executes a single task
func (q *Queue) executeTask(lane string, record *taskRecord) {
	defer q.wg.Done()

	taskCtx := record.ctx
	if taskCtx == nil {
		taskCtx = context.Background()
	}
	taskCtx, span := tracing.StartSpan(
		taskCtx,
		"loom.commandqueue",
		"commandqueue.execute_task",
		attribute.String("lane", lane),
		attribute.String("task_id", record.id),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(taskCtx, log.Logger)

	runCtx, cancel := context.WithCancel(taskCtx)
	stopCancel := context.AfterFunc(q.ctx, cancel)
	defer func() {
		stopCancel()
		cancel()
	}()

	startTime := time.Now()

	value, err := record.task(runCtx)

	duration := time.Since(startTime)

	q.mu.RLock()
	ls := q.lanes[lane]
	q.mu.RUnlock()

	ls.mu.Lock()
	ls.running--
	delete(ls.activeIDs, record.id)
	queueSize := len(ls.queue)
	ls.mu.Unlock()

	record.result <- taskResult{value: value, err: err}
	close(record.result)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().
			Str("lane", lane).
			Str("taskId", record.id).
			Dur("duration", duration).
			Err(err).
			Msg("Task failed")
	} else {
		logger.Debug().
			Str("lane", lane).
			Str("taskId", record.id).
			Dur("duration", duration).
			Msg("Task completed")
	}

	observability.RecordQueueCompletion(lane, duration, err == nil, queueSize)

	go q.processLane(lane)
}

// GetQueueSize returns the number of queued tasks for a lane
func (q *Queue) GetQueueSize(lane string) int {
	q.mu.RLock()
	ls, exists := q.lanes[lane]
	q.mu.RUnlock()

	if !exists {
		return 0
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.queue)
}

// GetRunningCount returns the number of currently executing tasks for a lane
func (q *Queue) GetRunningCount(lane string) int {
	q.mu.RLock()
	ls, exists := q.lanes[lane]
	q.mu.RUnlock()

	if !exists {
		return 0
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.running
}

// GetStats returns statistics for all lanes
func (q *Queue) GetStats() map[string]map[string]int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := make(map[string]map[string]int)
	for lane, ls := range q.lanes {
		ls.mu.Lock()
		stats[lane] = map[string]int{
			"queued":      len(ls.queue),
			"running":     ls.running,
			"concurrency": ls.concurrency,
		}
		ls.mu.Unlock()
	}

	return stats
}

// ResetLane increments the generation counter for a lane and rejects
// everything still queued on it
func (q *Queue) ResetLane(lane string) {
	q.mu.RLock()
	ls, exists := q.lanes[lane]
	q.mu.RUnlock()

	if !exists {
		return
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	ls.generation++

	for _, record := range ls.queue {
		record.result <- taskResult{
			err: fmt.Errorf("lane reset"),
		}
		close(record.result)
	}

	ls.queue = make([]*taskRecord, 0)

	log.Info().Str("lane", lane).Int("generation", ls.generation).Msg("Lane reset")
	observability.SetQueueSize(lane, 0)
}

// WaitForActive waits for all active tasks to complete with timeout
func (q *Queue) WaitForActive(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		allDrained := true

		q.mu.RLock()
		for _, ls := range q.lanes {
			ls.mu.Lock()
			if len(ls.activeIDs) > 0 {
				allDrained = false
			}
			ls.mu.Unlock()
		}
		q.mu.RUnlock()

		if allDrained {
			return true
		}

		if time.Now().After(deadline) {
			log.Warn().Dur("timeout", timeout).Msg("Timeout waiting for active tasks")
			return false
		}

		<-ticker.C
	}
}

// Close gracefully shuts down the queue
func (q *Queue) Close() error {
	q.cancel()
	q.wg.Wait()
	return nil
}
