package guard

import (
	"context"
	"sort"
	"sync"

	"wsideid/internal/services"
)

// Registry is the set of item identities currently undergoing an action.
type Registry struct {
	mu      sync.Mutex
	holders map[string]chan struct{}
}

// NewRegistry returns an empty in-flight registry.
func NewRegistry() *Registry {
	return &Registry{holders: make(map[string]chan struct{})}
}

// Acquire adds id to the in-flight set, waiting while another action holds
// it. The returned release func is idempotent.
func (r *Registry) Acquire(ctx context.Context, id string) (func(), error) {
	for {
		r.mu.Lock()
		wait, busy := r.holders[id]
		if !busy {
			done := make(chan struct{})
			r.holders[id] = done
			r.mu.Unlock()
			return r.releaser(id, done), nil
		}
		r.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return func() {}, ctx.Err()
		}
	}
}

// TryAcquire adds id to the in-flight set or fails with services.ErrInFlight.
func (r *Registry) TryAcquire(id string) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.holders[id]; busy {
		return func() {}, services.Wrap(services.ErrInFlight, "guard", "acquire", "item "+id+" is already being processed", nil)
	}
	done := make(chan struct{})
	r.holders[id] = done
	return r.releaser(id, done), nil
}

// AcquireAll acquires every distinct id in sorted order so two overlapping
// batches cannot deadlock. On failure nothing stays held.
func (r *Registry) AcquireAll(ctx context.Context, ids []string) (func(), error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Strings(unique)

	releases := make([]func(), 0, len(unique))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, id := range unique {
		release, err := r.Acquire(ctx, id)
		if err != nil {
			releaseAll()
			return func() {}, err
		}
		releases = append(releases, release)
	}
	var once sync.Once
	return func() { once.Do(releaseAll) }, nil
}

// InFlight reports whether id is currently held.
func (r *Registry) InFlight(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, busy := r.holders[id]
	return busy
}

// Snapshot returns the held identities in sorted order.
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.holders))
	for id := range r.holders {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of held identities.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.holders)
}

func (r *Registry) releaser(id string, done chan struct{}) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			if r.holders[id] == done {
				delete(r.holders, id)
			}
			r.mu.Unlock()
			close(done)
		})
	}
}
