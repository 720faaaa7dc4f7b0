package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryKind distinguishes answered questions from plain retrieval.
type QueryKind string

const (
	QueryAsk    QueryKind = "ask"
	QuerySearch QueryKind = "search"
)

// LatencyBucket is a coarse latency class.
type LatencyBucket string

const (
	BucketP500   LatencyBucket = "p500"   // <500ms
	BucketP1000  LatencyBucket = "p1000"  // 500ms-1s
	BucketP3000  LatencyBucket = "p3000"  // 1-3s
	BucketP10000 LatencyBucket = "p10000" // 3-10s
	BucketSlow   LatencyBucket = "slow"   // >=10s
)

// LatencyToBucket classifies d. Ask latency is dominated by two model calls,
// so the classes are wider than for local search.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 500:
		return BucketP500
	case ms < 1000:
		return BucketP1000
	case ms < 3000:
		return BucketP3000
	case ms < 10000:
		return BucketP10000
	default:
		return BucketSlow
	}
}

// QueryEvent is one ask or search call.
type QueryEvent struct {
	Kind        QueryKind
	Query       string
	ResultCount int
	Failed      bool
	Latency     time.Duration
	Timestamp   time.Time
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a buffer holding up to capacity items.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{items: make([]T, capacity), capacity: capacity}
}

// Add appends item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the buffered items oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the number of buffered items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ExtractTerms lowercases query and keeps words of three or more letters.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, ".,;:!?\"'()[]{}")
		if len([]rune(w)) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount is a term and how often it was asked about.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// QuerySnapshot summarizes recent query activity.
type QuerySnapshot struct {
	TotalQueries    int64                   `json:"total_queries"`
	ByKind          map[QueryKind]int64     `json:"by_kind"`
	Failed          int64                   `json:"failed"`
	NoMatchCount    int64                   `json:"no_match_count"`
	NoMatchQueries  []string                `json:"no_match_queries"`
	TopTerms        []TermCount             `json:"top_terms"`
	Latency         map[LatencyBucket]int64 `json:"latency"`
	ExactRepeats    int64                   `json:"exact_repeats"`
	ExactRepeatRate float64                 `json:"exact_repeat_rate"`
	Since           time.Time               `json:"since"`
}

// QueryStats collects question telemetry in memory. It is safe for
// concurrent use.
type QueryStats struct {
	mu sync.Mutex

	total        int64
	byKind       map[QueryKind]int64
	failed       int64
	noMatch      int64
	latency      map[LatencyBucket]int64
	exactRepeats int64
	since        time.Time

	terms         *lru.Cache[string, int64]
	recent        *lru.Cache[string, struct{}]
	noMatchRecent *CircularBuffer[string]
}

// NewQueryStats creates an empty collector.
func NewQueryStats(now time.Time) *QueryStats {
	terms, _ := lru.New[string, int64](100)
	recent, _ := lru.New[string, struct{}](500)
	return &QueryStats{
		byKind:        map[QueryKind]int64{},
		latency:       map[LatencyBucket]int64{},
		since:         now,
		terms:         terms,
		recent:        recent,
		noMatchRecent: NewCircularBuffer[string](50),
	}
}

// Record adds one event.
func (q *QueryStats) Record(e QueryEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.total++
	q.byKind[e.Kind]++
	q.latency[LatencyToBucket(e.Latency)]++
	switch {
	case e.Failed:
		q.failed++
	case e.ResultCount == 0:
		q.noMatch++
		q.noMatchRecent.Add(e.Query)
	}

	h := hashQuery(e.Query)
	if q.recent.Contains(h) {
		q.exactRepeats++
	} else {
		q.recent.Add(h, struct{}{})
	}

	for _, t := range ExtractTerms(e.Query) {
		n, _ := q.terms.Get(t)
		q.terms.Add(t, n+1)
	}
}

// Snapshot returns a copy of the collected numbers.
func (q *QueryStats) Snapshot() QuerySnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	byKind := make(map[QueryKind]int64, len(q.byKind))
	for k, v := range q.byKind {
		byKind[k] = v
	}
	latency := make(map[LatencyBucket]int64, len(q.latency))
	for k, v := range q.latency {
		latency[k] = v
	}

	var top []TermCount
	for _, k := range q.terms.Keys() {
		if n, ok := q.terms.Peek(k); ok {
			top = append(top, TermCount{Term: k, Count: n})
		}
	}
	slices.SortStableFunc(top, func(a, b TermCount) int {
		switch {
		case a.Count > b.Count:
			return -1
		case a.Count < b.Count:
			return 1
		}
		return strings.Compare(a.Term, b.Term)
	})
	if len(top) > 20 {
		top = top[:20]
	}

	var rate float64
	if q.total > 0 {
		rate = float64(q.exactRepeats) / float64(q.total)
	}

	return QuerySnapshot{
		TotalQueries:    q.total,
		ByKind:          byKind,
		Failed:          q.failed,
		NoMatchCount:    q.noMatch,
		NoMatchQueries:  q.noMatchRecent.Items(),
		TopTerms:        top,
		Latency:         latency,
		ExactRepeats:    q.exactRepeats,
		ExactRepeatRate: rate,
		Since:           q.since,
	}
}

func hashQuery(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:8])
}
