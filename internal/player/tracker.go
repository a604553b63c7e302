// Package player keeps the seek position of each annotation's video player.
package player

import (
	"sync"
	"time"
)

type Position struct {
	AnnotationID string    `json:"annotationID"`
	Frame        int       `json:"frame"`
	Seconds      float64   `json:"seconds"`
	SeekedAt     time.Time `json:"seekedAt"`
}

// Tracker records the last frame each player was asked to seek to and fans
// seeks out to subscribers.
type Tracker struct {
	mu          sync.RWMutex
	positions   map[string]Position
	subscribers map[string][]chan Position
}

func NewTracker() *Tracker {
	return &Tracker{
		positions:   make(map[string]Position),
		subscribers: make(map[string][]chan Position),
	}
}

// Seeker returns the seek callback for one annotation. fps converts frames to
// seconds and may be zero when unknown.
func (t *Tracker) Seeker(annotationID string, fps float64) func(frame int) {
	return func(frame int) {
		pos := Position{
			AnnotationID: annotationID,
			Frame:        frame,
			SeekedAt:     time.Now(),
		}
		if fps > 0 {
			pos.Seconds = float64(frame) / fps
		}
		t.set(pos)
	}
}

func (t *Tracker) set(pos Position) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.positions[pos.AnnotationID] = pos
	for _, ch := range t.subscribers[pos.AnnotationID] {
		// a slow subscriber only misses intermediate positions
		select {
		case ch <- pos:
		default:
		}
	}
}

func (t *Tracker) Position(annotationID string) (Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pos, ok := t.positions[annotationID]
	return pos, ok
}

// Subscribe delivers future seeks for an annotation until cancel is called.
func (t *Tracker) Subscribe(annotationID string) (<-chan Position, func()) {
	ch := make(chan Position, 8)

	t.mu.Lock()
	t.subscribers[annotationID] = append(t.subscribers[annotationID], ch)
	t.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			subs := t.subscribers[annotationID]
			for i, c := range subs {
				if c != ch {
					continue
				}
				t.subscribers[annotationID] = append(subs[:i], subs[i+1:]...)
				if len(t.subscribers[annotationID]) == 0 {
					delete(t.subscribers, annotationID)
				}
				close(ch)
				return
			}
		})
	}
	return ch, cancel
}

// Forget drops the position and subscribers of a deleted annotation.
func (t *Tracker) Forget(annotationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.positions, annotationID)
	for _, ch := range t.subscribers[annotationID] {
		close(ch)
	}
	delete(t.subscribers, annotationID)
}
