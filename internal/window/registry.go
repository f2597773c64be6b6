package window

import (
	"fmt"
	"sync"
)

// Registry maps window labels to handles, in creation order.
type Registry struct {
	mu      sync.RWMutex
	byLabel map[string]*Handle
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{byLabel: make(map[string]*Handle)}
}

func (r *Registry) Add(h *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byLabel[h.Label()]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicate, h.Label())
	}
	r.byLabel[h.Label()] = h
	r.order = append(r.order, h.Label())
	return nil
}

// Get returns the window with the given label, or an error wrapping ErrNotFound.
func (r *Registry) Get(label string) (Window, error) {
	h, err := r.Handle(label)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (r *Registry) Handle(label string) (*Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.byLabel[label]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, label)
	}
	return h, nil
}

func (r *Registry) Labels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) Handles() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := make([]*Handle, 0, len(r.order))
	for _, label := range r.order {
		handles = append(handles, r.byLabel[label])
	}
	return handles
}
