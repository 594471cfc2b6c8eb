package worker

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"backend/internal/models"

	"github.com/rs/zerolog/log"
)

// GameScorer consumes finalized-game facts. Implemented by the scoring engine.
type GameScorer interface {
	HandleGameFinalized(ctx context.Context, fact models.GameFinalizedFact) error
}

// ScoringPool processes GameFinalized facts asynchronously. Each worker owns
// its own queue and facts are routed by game id, so two facts for the same
// game can never score concurrently while different games run in parallel.
type ScoringPool struct {
	queues  []chan models.GameFinalizedFact
	engine  GameScorer
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	metrics *PoolMetrics
}

// PoolMetrics tracks scoring pool performance
type PoolMetrics struct {
	mu              sync.RWMutex
	processed       int64
	failed          int64
	backpressure    int64
	totalProcessing time.Duration
}

// NewScoringPool creates a new scoring pool
func NewScoringPool(workerCount, queueSize int, engine GameScorer) *ScoringPool {
	ctx, cancel := context.WithCancel(context.Background())

	queues := make([]chan models.GameFinalizedFact, workerCount)
	for i := range queues {
		queues[i] = make(chan models.GameFinalizedFact, queueSize)
	}

	return &ScoringPool{
		queues:  queues,
		engine:  engine,
		ctx:     ctx,
		cancel:  cancel,
		metrics: &PoolMetrics{},
	}
}

// Start launches one goroutine per queue.
func (p *ScoringPool) Start() {
	log.Info().
		Int("workers", len(p.queues)).
		Int("queue_size", cap(p.queues[0])).
		Msg("scoring pool started")

	for i := range p.queues {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// worker drains one queue; facts in a single queue apply strictly in order.
func (p *ScoringPool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			log.Debug().Int("worker", id).Msg("scoring worker shutting down")
			return

		case fact, ok := <-p.queues[id]:
			if !ok {
				return
			}
			p.processFact(id, fact)
		}
	}
}

// processFact scores one fact with panic recovery so a bad delivery never
// takes the worker down.
func (p *ScoringPool) processFact(workerID int, fact models.GameFinalizedFact) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Int("worker", workerID).
				Uint("game_id", fact.GameID).
				Interface("panic", r).
				Msg("scoring worker panic recovered")
			p.metrics.incrementFailed()
		}
	}()

	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := p.engine.HandleGameFinalized(ctx, fact)
	processingTime := time.Since(startTime)

	if err != nil {
		log.Error().Err(err).
			Int("worker", workerID).
			Uint("game_id", fact.GameID).
			Int("correction_sequence", fact.CorrectionSequence).
			Dur("took", processingTime).
			Msg("failed to score game")
		p.metrics.incrementFailed()
		return
	}

	log.Debug().
		Int("worker", workerID).
		Uint("game_id", fact.GameID).
		Dur("took", processingTime).
		Msg("game scored")
	p.metrics.recordSuccess(processingTime)
}

// Submit routes a fact to the queue owning its game. A full queue is
// backpressure: the fact is rejected and the ingestion feed's retry policy
// redelivers it later (scoring is idempotent, so redelivery is safe).
func (p *ScoringPool) Submit(fact models.GameFinalizedFact) error {
	queue := p.queues[p.queueFor(fact.GameID)]

	select {
	case queue <- fact:
		return nil

	default:
		log.Warn().
			Uint("game_id", fact.GameID).
			Msg("scoring queue full, rejecting fact for redelivery")
		p.metrics.incrementBackpressure()
		return fmt.Errorf("scoring pool queue full (backpressure)")
	}
}

// queueFor maps a game id to its worker. The mapping is stable, which is what
// serializes scoring per game.
func (p *ScoringPool) queueFor(gameID uint) int {
	h := fnv.New32a()
	var buf [4]byte
	buf[0] = byte(gameID)
	buf[1] = byte(gameID >> 8)
	buf[2] = byte(gameID >> 16)
	buf[3] = byte(gameID >> 24)
	h.Write(buf[:])
	return int(h.Sum32() % uint32(len(p.queues)))
}

// Shutdown drains the queues and stops the workers.
func (p *ScoringPool) Shutdown(timeout time.Duration) error {
	log.Info().Msg("shutting down scoring pool")

	for _, queue := range p.queues {
		close(queue)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logMetrics()
		return nil

	case <-time.After(timeout):
		p.cancel()
		log.Warn().Dur("timeout", timeout).Msg("scoring pool shutdown timed out")
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

// GetMetrics returns a snapshot of the pool metrics
func (p *ScoringPool) GetMetrics() map[string]interface{} {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()

	avgProcessing := time.Duration(0)
	if p.metrics.processed > 0 {
		avgProcessing = p.metrics.totalProcessing / time.Duration(p.metrics.processed)
	}

	queued := 0
	for _, queue := range p.queues {
		queued += len(queue)
	}

	return map[string]interface{}{
		"processed":           p.metrics.processed,
		"failed":              p.metrics.failed,
		"backpressure_events": p.metrics.backpressure,
		"avg_processing_time": avgProcessing.String(),
		"queued":              queued,
	}
}

func (p *ScoringPool) logMetrics() {
	metrics := p.GetMetrics()
	log.Info().
		Interface("processed", metrics["processed"]).
		Interface("failed", metrics["failed"]).
		Interface("backpressure_events", metrics["backpressure_events"]).
		Msg("scoring pool drained")
}

// Metrics helper methods
func (pm *PoolMetrics) recordSuccess(duration time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.processed++
	pm.totalProcessing += duration
}

func (pm *PoolMetrics) incrementFailed() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.failed++
}

func (pm *PoolMetrics) incrementBackpressure() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.backpressure++
}
