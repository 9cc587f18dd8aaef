// Package pending keeps a write-ahead journal of multi-step operations
// against a store. An entry is written before an operation starts and
// removed when it completes, so entries still present at startup belong to
// operations that were interrupted.
package pending

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"debrief/internal/atomicfile"
	"debrief/internal/logging"
	"debrief/internal/paths"
)

// Phase is the step an operation had reached.
type Phase string

const (
	PhaseParse  Phase = "parse"
	PhaseCreate Phase = "create"
	PhaseWrite  Phase = "write"
	PhaseCopy   Phase = "copy"
)

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseParse, PhaseCreate, PhaseWrite, PhaseCopy:
		return true
	}
	return false
}

// Operation is one journal entry.
type Operation struct {
	ID        string `json:"id"`
	StartTime string `json:"startTime"`
	StorePath string `json:"storePath"`
	PlotID    string `json:"plotId,omitempty"`
	Phase     Phase  `json:"phase"`
}

// timestampLayout is ISO 8601 UTC with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ErrUnknownPhase is returned when an operation carries an unknown phase.
var ErrUnknownPhase = errors.New("unknown operation phase")

// Journal is the pending operations file. Every mutation runs under its own
// cross-process lock, a sibling "<file>.lock" taken with the same atomicfile
// lock the config store uses.
type Journal struct {
	path     string
	lockOpts atomicfile.LockOptions
	now      func() time.Time
}

// JournalOption configures a Journal.
type JournalOption func(*Journal)

// WithLockOptions overrides the lock retry and staleness settings.
func WithLockOptions(o atomicfile.LockOptions) JournalOption {
	return func(j *Journal) { j.lockOpts = o }
}

// WithClock replaces the clock used to stamp StartTime.
func WithClock(now func() time.Time) JournalOption {
	return func(j *Journal) { j.now = now }
}

// NewJournal returns a journal stored at path.
func NewJournal(path string, opts ...JournalOption) *Journal {
	j := &Journal{
		path:     path,
		lockOpts: atomicfile.DefaultLockOptions(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// OpenJournal returns the journal in the platform config directory.
func OpenJournal(opts ...JournalOption) (*Journal, error) {
	path, err := paths.PendingOpsFile()
	if err != nil {
		return nil, err
	}
	return NewJournal(path, opts...), nil
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.path
}

// List returns the recorded operations. A missing or unreadable journal is
// treated as empty.
func (j *Journal) List() ([]Operation, error) {
	data, err := os.ReadFile(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Operation{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", j.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []Operation{}, nil
	}

	var ops []Operation
	if err := json.Unmarshal(data, &ops); err != nil {
		logging.Get(logging.CategoryCleanup).Warn("Ignoring corrupt pending operations file %s: %v", j.path, err)
		return []Operation{}, nil
	}
	if ops == nil {
		ops = []Operation{}
	}
	return ops, nil
}

// Mark records op before it starts and returns the stored entry. An empty
// ID is filled with a fresh UUID and an empty StartTime with the current
// time; an empty phase defaults to parse.
func (j *Journal) Mark(ctx context.Context, op Operation) (Operation, error) {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.StartTime == "" {
		op.StartTime = j.now().UTC().Format(timestampLayout)
	}
	if op.Phase == "" {
		op.Phase = PhaseParse
	}
	if !op.Phase.Valid() {
		return Operation{}, fmt.Errorf("%w: %q", ErrUnknownPhase, op.Phase)
	}

	err := j.mutate(ctx, func(ops []Operation) []Operation {
		return append(ops, op)
	})
	if err != nil {
		return Operation{}, err
	}
	logging.Get(logging.CategoryCleanup).Debug("Marked operation %s pending (phase %s)", op.ID, op.Phase)
	return op, nil
}

// Advance moves the entry with the given id to phase, recording plotID when
// it is non-empty. Unknown ids are ignored.
func (j *Journal) Advance(ctx context.Context, id string, phase Phase, plotID string) error {
	if !phase.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPhase, phase)
	}
	return j.mutate(ctx, func(ops []Operation) []Operation {
		for i := range ops {
			if ops[i].ID != id {
				continue
			}
			ops[i].Phase = phase
			if plotID != "" {
				ops[i].PlotID = plotID
			}
		}
		return ops
	})
}

// Clear removes the entry with the given id after successful completion.
func (j *Journal) Clear(ctx context.Context, id string) error {
	return j.mutate(ctx, func(ops []Operation) []Operation {
		kept := ops[:0]
		for _, op := range ops {
			if op.ID != id {
				kept = append(kept, op)
			}
		}
		return kept
	})
}

// CheckAndCleanup reports every interrupted operation and empties the
// journal. Partial writes are not rolled back; the returned entries say
// which stores and plots may hold them.
func (j *Journal) CheckAndCleanup(ctx context.Context) ([]Operation, error) {
	var leftover []Operation
	err := j.mutate(ctx, func(ops []Operation) []Operation {
		leftover = append(leftover, ops...)
		return ops[:0]
	})
	if err != nil {
		return nil, err
	}
	if len(leftover) == 0 {
		return nil, nil
	}

	logging.Cleanup("Found %d interrupted operation(s), cleaning up", len(leftover))
	for _, op := range leftover {
		logging.Cleanup("Discarding operation %s (phase: %s, store: %s, plot: %s)", op.ID, op.Phase, op.StorePath, op.PlotID)
	}
	return leftover, nil
}

// Track journals op around fn. The entry is cleared when fn succeeds and
// left in place when it fails, so the next CheckAndCleanup reports it.
func (j *Journal) Track(ctx context.Context, op Operation, fn func(ctx context.Context, op Operation) error) error {
	op, err := j.Mark(ctx, op)
	if err != nil {
		return err
	}
	if err := fn(ctx, op); err != nil {
		logging.Get(logging.CategoryCleanup).Warn("Operation %s failed, leaving it pending: %v", op.ID, err)
		return err
	}
	return j.Clear(ctx, op.ID)
}

// mutate applies fn to the journal under the lock and rewrites the file.
func (j *Journal) mutate(ctx context.Context, fn func([]Operation) []Operation) error {
	if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(j.path), err)
	}

	lock, err := atomicfile.Acquire(ctx, j.path, j.lockOpts)
	if err != nil {
		return err
	}
	defer lock.Release()

	ops, err := j.List()
	if err != nil {
		return err
	}
	ops = fn(ops)
	if ops == nil {
		ops = []Operation{}
	}

	data, err := json.MarshalIndent(ops, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode pending operations: %w", err)
	}
	return atomicfile.WriteFile(j.path, data, 0644)
}
