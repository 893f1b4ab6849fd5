package media

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// JitterStats are running delivery counters, safe to copy.
type JitterStats struct {
	Received   uint64 `json:"received"`
	Dropped    uint64 `json:"dropped"`
	TotalBytes uint64 `json:"totalBytes"`
	Depth      int    `json:"depth"`
}

// JitterBuffer smooths variable network delivery ahead of playback. It is
// a bounded FIFO that keeps the newest frames: pushing past capacity
// evicts exactly the oldest entry. The one-time initialization segment is
// cached aside for replay, never queued.
type JitterBuffer struct {
	mu       sync.Mutex
	items    [][]byte
	capacity int

	initSegment []byte
	received    uint64
	dropped     uint64
	totalBytes  uint64

	classify func([]byte) SegmentKind
}

func NewJitterBuffer(capacity int) *JitterBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &JitterBuffer{capacity: capacity, classify: Classify}
}

func (j *JitterBuffer) Push(segment []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.received++
	j.totalBytes += uint64(len(segment))

	if j.classify(segment) == SegmentInit {
		if j.initSegment == nil {
			j.initSegment = append([]byte(nil), segment...)
			log.Debug().Int("bytes", len(segment)).Str("module", "media.jitter").Msg("cached init segment")
		}
		return
	}
	if len(j.items) >= j.capacity {
		j.items = j.items[1:]
		j.dropped++
	}
	j.items = append(j.items, segment)
}

// Pop returns the oldest queued segment, if any.
func (j *JitterBuffer) Pop() ([]byte, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.items) == 0 {
		return nil, false
	}
	item := j.items[0]
	j.items = j.items[1:]
	return item, true
}

// InitSegment returns a copy of the cached init segment, nil before one
// arrives. Late joiners replay this before any media.
func (j *JitterBuffer) InitSegment() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.initSegment == nil {
		return nil
	}
	return append([]byte(nil), j.initSegment...)
}

func (j *JitterBuffer) Stats() JitterStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JitterStats{
		Received:   j.received,
		Dropped:    j.dropped,
		TotalBytes: j.totalBytes,
		Depth:      len(j.items),
	}
}
