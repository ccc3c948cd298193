package reconcile

import (
	"sort"
	"sync"
)

// Stats counts reconciliation outcomes for the metrics endpoint.
type Stats struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewStats() *Stats {
	return &Stats{counters: make(map[string]int64)}
}

func (s *Stats) Inc(name string) {
	s.Add(name, 1)
}

func (s *Stats) Add(name string, n int64) {
	s.mu.Lock()
	s.counters[name] += n
	s.mu.Unlock()
}

func (s *Stats) Get(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[name]
}

// Snapshot returns the counters as sorted name/value pairs.
func (s *Stats) Snapshot() []Counter {
	s.mu.Lock()
	out := make([]Counter, 0, len(s.counters))
	for name, v := range s.counters {
		out = append(out, Counter{Name: name, Value: v})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type Counter struct {
	Name  string
	Value int64
}
