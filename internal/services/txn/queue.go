package txn

import "context"

// Step is one deferred action of a unit of work.
type Step interface {
	Name() string
	Execute(ctx context.Context) error
}

type funcStep struct {
	name string
	fn   func(ctx context.Context) error
}

func (s *funcStep) Name() string                      { return s.name }
func (s *funcStep) Execute(ctx context.Context) error { return s.fn(ctx) }

// StepFunc adapts fn to a Step.
func StepFunc(name string, fn func(ctx context.Context) error) Step {
	return &funcStep{name: name, fn: fn}
}

// Queue holds the steps of one unit in enqueue order.
type Queue struct {
	steps []Step
	head  int
}

func NewQueue() *Queue {
	return &Queue{steps: make([]Step, 0, 8)}
}

func (q *Queue) Enqueue(steps ...Step) {
	q.steps = append(q.steps, steps...)
}

// Pop removes the oldest step. ok is false when the queue is drained.
func (q *Queue) Pop() (Step, bool) {
	if q.head >= len(q.steps) {
		return nil, false
	}
	s := q.steps[q.head]
	q.steps[q.head] = nil
	q.head++
	return s, true
}

func (q *Queue) Len() int {
	return len(q.steps) - q.head
}

// Names lists pending step names, oldest first.
func (q *Queue) Names() []string {
	out := make([]string, 0, q.Len())
	for _, s := range q.steps[q.head:] {
		out = append(out, s.Name())
	}
	return out
}
