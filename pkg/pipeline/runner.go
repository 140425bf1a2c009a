package pipeline

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/yumlab/krait/internal/util"
	"github.com/yumlab/krait/logger"
	"go.uber.org/zap"
)

// StageStatus represents the lifecycle of one workflow stage.
type StageStatus string

const (
	StageQueued    StageStatus = "queued"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
)

// Stage is one external tool invocation with a file-based interface: the
// command reads its inputs from disk and must leave every listed output
// behind.
type Stage struct {
	Name    string
	Command string
	Args    []string
	Dir     string
	// Outputs are checked after the command exits; a missing file fails
	// the stage even on a zero exit code.
	Outputs []string
}

// StageState is the tracked state of a stage while the run progresses.
type StageState struct {
	Status    StageStatus
	Error     string
	StartedAt time.Time
	UpdatedAt time.Time
}

// Runner executes stages in order and tracks their states by name.
type Runner struct {
	mu     sync.RWMutex
	states map[string]*StageState
}

func NewRunner() *Runner {
	return &Runner{states: make(map[string]*StageState)}
}

// State fetches the state of a stage by name.
func (r *Runner) State(name string) (*StageState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.states[name]
	return st, ok
}

func (r *Runner) update(name string, f func(*StageState)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[name]
	if !ok {
		st = &StageState{}
		r.states[name] = st
	}
	f(st)
	st.UpdatedAt = time.Now()
}

// Run executes the stages sequentially. The first failure aborts the run;
// the tool's combined output is carried in the returned error.
func (r *Runner) Run(ctx context.Context, stages []Stage) error {
	for _, s := range stages {
		r.update(s.Name, func(st *StageState) { st.Status = StageQueued })
	}

	for _, s := range stages {
		r.update(s.Name, func(st *StageState) {
			st.Status = StageRunning
			st.StartedAt = time.Now()
		})
		logger.Info("Running stage", zap.String("stage", s.Name), zap.String("command", s.Command))

		if err := r.runOne(ctx, s); err != nil {
			r.update(s.Name, func(st *StageState) {
				st.Status = StageFailed
				st.Error = err.Error()
			})
			return fmt.Errorf("stage %s: %w", s.Name, err)
		}

		r.update(s.Name, func(st *StageState) { st.Status = StageCompleted })
		logger.Debug("Stage completed", zap.String("stage", s.Name))
	}
	return nil
}

func (r *Runner) runOne(ctx context.Context, s Stage) error {
	if _, err := exec.LookPath(s.Command); err != nil {
		return fmt.Errorf("%s not found on PATH: %w", s.Command, err)
	}

	cmd := exec.CommandContext(ctx, s.Command, s.Args...)
	if s.Dir != "" {
		cmd.Dir = s.Dir
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s - %s", err, output)
	}

	for _, out := range s.Outputs {
		if !util.FileExists(out) {
			return fmt.Errorf("expected output %s was not produced", out)
		}
	}
	return nil
}
