package buffer

import (
	"sort"
	"sync"
	"time"
)

// TickRecord is the outcome of one scheduled task execution.
type TickRecord struct {
	Seq        int64     `json:"seq"`
	Task       string    `json:"task"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// TickLog keeps the most recent tick records in a fixed-size ring.
type TickLog struct {
	mu      sync.RWMutex
	records []TickRecord
	size    int
	head    int
	isFull  bool
	lastSeq int64
}

func NewTickLog(size int) *TickLog {
	if size <= 0 {
		size = 1000
	}
	return &TickLog{
		records: make([]TickRecord, size),
		size:    size,
	}
}

// Add stores rec and returns the sequence number assigned to it.
func (b *TickLog) Add(rec TickRecord) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastSeq++
	rec.Seq = b.lastSeq
	b.records[b.head] = rec
	b.head = (b.head + 1) % b.size
	if b.head == 0 {
		b.isFull = true
	}
	return rec.Seq
}

// GetSince returns records with Seq > lastSeq in order. ok is false when
// records after lastSeq have already been overwritten.
func (b *TickLog) GetSince(lastSeq int64) ([]TickRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := b.head
	start := 0
	if b.isFull {
		count = b.size
		start = b.head
	}

	if count == 0 {
		return nil, true
	}

	oldest := b.records[start].Seq
	if lastSeq < oldest-1 {
		return nil, false
	}

	// logical index i maps to physical (start + i) % size
	idx := sort.Search(count, func(i int) bool {
		return b.records[(start+i)%b.size].Seq > lastSeq
	})
	if idx == count {
		return nil, true
	}

	result := make([]TickRecord, 0, count-idx)
	for i := idx; i < count; i++ {
		result = append(result, b.records[(start+i)%b.size])
	}
	return result, true
}

func (b *TickLog) LastSeq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastSeq
}
