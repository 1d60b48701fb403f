package engine

import (
	"fmt"
	"sync"

	"github.com/anandkaman/saledeedpipeline/internal/model"
)

// docStateTracker is the live, per-run document state the PipelineEngine
// owns (§3 Ownership: "the PipelineEngine owns live document state for
// the running batch"). One tracker is constructed per run from the
// batch's claimed documents and threaded through both worker pools.
//
// Transitions are guarded by model.CanTransition. An illegal transition
// is a programming error, not a domain failure, so it panics rather
// than being folded into the apperr.Kind propagation the rest of the
// engine uses (§3: "any other transition is a programming error";
// §7: "the only way the engine terminates abnormally is a programming
// error ... those propagate to the process").
type docStateTracker struct {
	mu     sync.Mutex
	states map[string]model.DocumentState
}

func newDocStateTracker(docs []model.Document) *docStateTracker {
	t := &docStateTracker{states: make(map[string]model.DocumentState, len(docs))}
	for _, d := range docs {
		t.states[d.DocumentID] = d.State
	}
	return t
}

// transition moves documentID from its current state to to, panicking
// if from->to is not an edge in the document status DAG.
func (t *docStateTracker) transition(documentID string, to model.DocumentState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	from := t.states[documentID]
	if !model.CanTransition(from, to) {
		panic(fmt.Sprintf("illegal document state transition for %s: %s -> %s", documentID, from, to))
	}
	t.states[documentID] = to
}

func (t *docStateTracker) get(documentID string) model.DocumentState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[documentID]
}
