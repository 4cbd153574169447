package saga

import (
	"context"
	"fmt"
	"log"
)

// Step pairs a forward action with the compensation that undoes it. The
// provisioning pipelines span the auth platform and the database with no
// distributed transaction available, so atomicity is approximated by
// explicit undo steps.
type Step struct {
	Name       string
	Run        func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Saga executes steps strictly in order, each gated on the success of the
// previous one. When a step fails, the compensations of every previously
// successful step run in reverse order before the error is returned.
type Saga struct {
	name  string
	steps []Step
}

func New(name string) *Saga {
	return &Saga{name: name}
}

// AddStep appends a step. A nil Compensate marks the step as having no side
// effect to undo.
func (s *Saga) AddStep(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// Execute runs the pipeline. The returned error is the failing step's error;
// compensation failures are logged but do not mask it.
func (s *Saga) Execute(ctx context.Context) error {
	var done []Step

	for _, step := range s.steps {
		if err := step.Run(ctx); err != nil {
			s.unwind(ctx, done)
			return fmt.Errorf("%s: step %s: %w", s.name, step.Name, err)
		}
		done = append(done, step)
	}

	return nil
}

func (s *Saga) unwind(ctx context.Context, done []Step) {
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			log.Printf("[SAGA] %s: compensation for %s failed: %v", s.name, step.Name, err)
		}
	}
}
