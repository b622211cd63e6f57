package main

import (
	"sync"
	"time"
)

// State is a step in the backend lifecycle. Transitions only move forward.
type State int

const (
	StateNotStarted State = iota
	StateWarmup
	StateSpawning
	StateWaitingReady
	StateRunning
	StateExited
	StateFailed
)

var stateNames = map[State]string{
	StateNotStarted:   "not_started",
	StateWarmup:       "warmup",
	StateSpawning:     "spawning",
	StateWaitingReady: "waiting_ready",
	StateRunning:      "running",
	StateExited:       "exited",
	StateFailed:       "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the state by name in JSON payloads
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transitions can happen
func (s State) Terminal() bool {
	return s == StateExited || s == StateFailed
}

const (
	EventState     = "state"
	EventHeartbeat = "heartbeat"
)

// Event is published on every state transition and on each heartbeat
type Event struct {
	Instance string    `json:"instance"`
	Kind     string    `json:"kind"`
	State    State     `json:"state"`
	PID      int       `json:"pid,omitempty"`
	Ready    bool      `json:"ready"`
	ExitCode int       `json:"exitCode"`
	Error    string    `json:"error,omitempty"`
	Time     time.Time `json:"time"`
}

// Broadcaster broadcasts events to multiple channels
type Broadcaster struct {
	clients map[chan Event]bool
	closed  map[chan Event]bool // Track closed channels
	mu      sync.RWMutex
}

// NewBroadcaster creates a new broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[chan Event]bool),
		closed:  make(map[chan Event]bool),
	}
}

// Subscribe adds a new client channel
func (b *Broadcaster) Subscribe() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100)
	b.clients[ch] = true
	return ch
}

// Unsubscribe removes a client channel
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed[ch] {
		return
	}

	delete(b.clients, ch)
	close(ch)
	b.closed[ch] = true
}

// Broadcast sends an event to all subscribers
func (b *Broadcaster) Broadcast(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.clients {
		select {
		case ch <- ev:
		default:
			// Skip if channel is full
		}
	}
}

// Subscribers returns the number of live subscriptions
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
