package pipeline

import (
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type State int

const (
	AwaitingInput State = iota
	Extracting
	Matching
	AwaitingSelection
	Creating
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case AwaitingInput:
		return "awaiting_input"
	case Extracting:
		return "extracting"
	case Matching:
		return "matching"
	case AwaitingSelection:
		return "awaiting_selection"
	case Creating:
		return "creating"
	case Done:
		return "done"
	case Failed:
		return "error"
	default:
		return ""
	}
}

// Run tracks one request through the pipeline states.
type Run struct {
	ID      string
	State   State
	History []State
	Err     error

	logger *log.Entry
}

// NewRun starts a run waiting for setlist input.
func NewRun() *Run {
	return newRun(AwaitingInput)
}

// NewSelectionRun starts a run from the point where the user has picked
// their tracks, which is where a create-playlist request picks up.
func NewSelectionRun() *Run {
	return newRun(AwaitingSelection)
}

func newRun(initial State) *Run {
	id := uuid.NewString()
	return &Run{
		ID:      id,
		State:   initial,
		History: []State{initial},
		logger: log.WithFields(log.Fields{
			"module": "pipeline",
			"run":    id,
		}),
	}
}

func (r *Run) transition(to State) {
	r.logger.WithFields(log.Fields{"from": r.State, "to": to}).Trace("state transition")
	r.State = to
	r.History = append(r.History, to)
}

// fail moves the run to Failed and hands err back unchanged.
func (r *Run) fail(err error) error {
	r.logger.WithFields(log.Fields{"from": r.State}).Warnf("run failed: %v", err)
	r.Err = err
	r.transition(Failed)
	return err
}
