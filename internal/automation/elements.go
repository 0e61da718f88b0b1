// internal/automation/elements.go
package automation

import (
	"github.com/google/uuid"

	"github.com/xkilldash9x/scalpel-driver/internal/command"
)

type elementRef struct {
	handle     Handle
	generation uint64
	window     string
}

// elementRegistry maps client element ids to backend handles. Every
// navigation starts a new document generation; ids minted in an earlier
// generation are stale. It is owned by the worker goroutine.
type elementRegistry struct {
	refs       map[command.ElementID]elementRef
	byHandle   map[Handle]command.ElementID
	generation uint64
}

func newElementRegistry() *elementRegistry {
	return &elementRegistry{
		refs:     make(map[command.ElementID]elementRef),
		byHandle: make(map[Handle]command.ElementID),
	}
}

// register returns the id for h, minting one if h has not been seen in the
// current generation.
func (r *elementRegistry) register(h Handle, window string) command.ElementID {
	if id, ok := r.byHandle[h]; ok {
		return id
	}
	id := command.ElementID(uuid.NewString())
	r.refs[id] = elementRef{handle: h, generation: r.generation, window: window}
	r.byHandle[h] = id
	return id
}

func (r *elementRegistry) registerAll(hs []Handle, window string) []command.ElementID {
	ids := make([]command.ElementID, len(hs))
	for i, h := range hs {
		ids[i] = r.register(h, window)
	}
	return ids
}

// resolve maps id back to its handle.
func (r *elementRegistry) resolve(id command.ElementID, window string) (Handle, error) {
	if id == "" {
		return "", command.Errorf(command.InvalidArgument, "missing element id")
	}
	ref, ok := r.refs[id]
	if !ok {
		return "", command.Errorf(command.NoSuchElement, "no element with id %s", id)
	}
	if ref.generation != r.generation || ref.window != window {
		return "", command.Errorf(command.StaleElement, "element %s is no longer attached to the document", id)
	}
	return ref.handle, nil
}

// invalidate starts a new generation. Ids stay known so that they report as
// stale rather than missing; their handles are dropped.
func (r *elementRegistry) invalidate() {
	r.generation++
	for id, ref := range r.refs {
		if ref.handle != "" {
			ref.handle = ""
			r.refs[id] = ref
		}
	}
	clear(r.byHandle)
}

// Len is the number of ids handed out, live or stale.
func (r *elementRegistry) Len() int { return len(r.refs) }
