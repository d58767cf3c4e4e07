// Package memory provides an in-memory store.Store used by tests. It mirrors
// the semantics of the real backends: document-level last-writer-wins, field
// merges with nil-clears, and best-effort watch delivery.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/RobinAyzit/share-plans-done-together/internal/store"
)

type collection struct {
	order []string
	docs  map[string]map[string]any
}

type subscriber struct {
	collection string
	filter     store.Filter
	ch         chan store.Event
	done       <-chan struct{}
}

// Store is a mutex-guarded map of collections. The zero value is not usable;
// construct with New.
type Store struct {
	mu   sync.Mutex
	cols map[string]*collection
	subs []*subscriber
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{cols: map[string]*collection{}}
}

func (s *Store) col(name string) *collection {
	c, ok := s.cols[name]
	if !ok {
		c = &collection{docs: map[string]map[string]any{}}
		s.cols[name] = c
	}
	return c
}

func (s *Store) Get(ctx context.Context, col, id string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.col(col).docs[id]
	if !ok {
		return store.ErrNotFound
	}
	// Decode before releasing the lock; Set mutates the nested maps in place.
	return store.DecodeDocument(doc, out)
}

func (s *Store) Insert(ctx context.Context, col, id string, doc any) error {
	m, err := store.EncodeDocument(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	c := s.col(col)
	if _, exists := c.docs[id]; exists {
		s.mu.Unlock()
		return fmt.Errorf("document %s/%s already exists", col, id)
	}
	c.docs[id] = m
	c.order = append(c.order, id)
	s.notifyLocked(col, id, m, false)
	s.mu.Unlock()
	return nil
}

func (s *Store) Set(ctx context.Context, col, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.col(col)
	doc, ok := c.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	if err := store.ApplyFields(doc, fields); err != nil {
		return err
	}
	s.notifyLocked(col, id, doc, false)
	return nil
}

func (s *Store) Delete(ctx context.Context, col, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.col(col)
	doc, ok := c.docs[id]
	if !ok {
		return nil
	}
	delete(c.docs, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	s.notifyDeleteLocked(col, id, doc)
	return nil
}

func (s *Store) Find(ctx context.Context, col string, filter store.Filter, out any) error {
	s.mu.Lock()
	c := s.col(col)
	var matches []map[string]any
	for _, id := range c.order {
		if store.MatchFilter(id, c.docs[id], filter) {
			matches = append(matches, c.docs[id])
		}
	}
	// Encode while still holding the lock, for the same reason as Get.
	raw, err := json.Marshal(matches)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode find results: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode find results: %w", err)
	}
	return nil
}

func (s *Store) Watch(ctx context.Context, col string, filter store.Filter) (<-chan store.Event, error) {
	sub := &subscriber{
		collection: col,
		filter:     filter,
		ch:         make(chan store.Event, 16),
		done:       ctx.Done(),
	}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		for i, other := range s.subs {
			if other == sub {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		close(sub.ch)
	}()

	return sub.ch, nil
}

func (s *Store) Close(ctx context.Context) error { return nil }

// notifyLocked fans a committed change out to matching subscribers. Sends
// never block: a subscriber that cannot keep up misses the change, which
// matches the best-effort contract.
func (s *Store) notifyLocked(col, id string, doc map[string]any, deleted bool) {
	ev := store.Event{Collection: col, ID: id, Deleted: deleted}
	for _, sub := range s.subs {
		if sub.collection != col || !store.MatchFilter(id, doc, sub.filter) {
			continue
		}
		select {
		case <-sub.done:
		case sub.ch <- ev:
		default:
		}
	}
}

// notifyDeleteLocked matches subscribers against the document's last state
// before removal, since the filter cannot be evaluated against nothing.
func (s *Store) notifyDeleteLocked(col, id string, last map[string]any) {
	ev := store.Event{Collection: col, ID: id, Deleted: true}
	for _, sub := range s.subs {
		if sub.collection != col || !store.MatchFilter(id, last, sub.filter) {
			continue
		}
		select {
		case <-sub.done:
		case sub.ch <- ev:
		default:
		}
	}
}
