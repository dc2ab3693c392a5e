package txn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/zap-engine/internal/domain"
	"github.com/hxuan190/zap-engine/internal/metrics"
)

// Checkpointer is a stateful participant of a unit of work. Checkpoint
// returns a function that puts the participant back to the captured state.
type Checkpointer interface {
	Checkpoint() (restore func())
}

// Journal records committed units.
type Journal interface {
	Append(ctx context.Context, r Receipt) error
}

// Handler runs the triggering part of a unit and enqueues its deferred steps.
type Handler func(ctx context.Context, q *Queue) error

// Receipt describes a committed unit.
type Receipt struct {
	ID        string        `json:"id"`
	Label     string        `json:"label"`
	Steps     []string      `json:"steps"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}

// StepError reports the step that aborted a unit.
type StepError struct {
	Step  string
	Index int
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Executor runs units of work one at a time. A unit is all-or-nothing: the
// handler's direct effects and every queued step either all commit or are
// all rolled back through the registered checkpointers.
type Executor struct {
	mu           sync.Mutex
	participants []Checkpointer
	journal      Journal
}

func NewExecutor(participants ...Checkpointer) *Executor {
	return &Executor{participants: participants}
}

func (e *Executor) SetJournal(j Journal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.journal = j
}

// Exclusive runs fn while no unit is in flight.
func (e *Executor) Exclusive(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn()
}

// Run executes handler, then drains the queue in FIFO order.
func (e *Executor) Run(ctx context.Context, label string, handler Handler) (*Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	receipt := &Receipt{ID: uuid.NewString(), Label: label, StartedAt: time.Now()}
	restores := make([]func(), 0, len(e.participants))
	for _, p := range e.participants {
		restores = append(restores, p.Checkpoint())
	}
	rollback := func(err error) {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
		metrics.Rollbacks.Inc()
		log.Warn().Str("unit", receipt.ID).Str("label", label).Str("kind", domain.KindOf(err)).Err(err).
			Msg("[txn] unit rolled back")
	}

	q := NewQueue()
	if err := handler(ctx, q); err != nil {
		rollback(err)
		return nil, err
	}

	for i := 0; ; i++ {
		step, ok := q.Pop()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			rollback(err)
			return nil, &StepError{Step: step.Name(), Index: i, Err: err}
		}
		if err := step.Execute(ctx); err != nil {
			rollback(err)
			return nil, &StepError{Step: step.Name(), Index: i, Err: err}
		}
		receipt.Steps = append(receipt.Steps, step.Name())
		metrics.StepsExecuted.Inc()
	}
	receipt.Duration = time.Since(receipt.StartedAt)

	if e.journal != nil {
		if err := e.journal.Append(ctx, *receipt); err != nil {
			metrics.JournalErrors.Inc()
			log.Error().Str("unit", receipt.ID).Err(err).Msg("[txn] failed to journal receipt")
		}
	}
	return receipt, nil
}
