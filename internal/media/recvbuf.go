package media

import (
	"bytes"
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

type RecvConfig struct {
	QueueCap  int
	LowWater  int           // flush fast once this much is buffered
	HighWater int           // flush unconditionally, bounds memory
	MinFlush  int           // below this, time alone never flushes
	MaxWait   time.Duration // age bound for a slow trickle
}

type RecvStats struct {
	Chunks        uint64 `json:"chunks"`
	DroppedChunks uint64 `json:"droppedChunks"`
	Flushes       uint64 `json:"flushes"`
	FlushedBytes  uint64 `json:"flushedBytes"`
}

// RecvAccumulator reassembles incoming network chunks into decodable
// buffers. Pure size-based flushing stalls at low bitrate and pure
// time-based flushing wastes decoder setup at high bitrate, so a flush
// triggers on any of: low-water size, high-water cap, or age over MaxWait
// once a small floor is exceeded.
type RecvAccumulator struct {
	cfg   RecvConfig
	flush func([]byte)

	queue chan []byte
	now   func() time.Time

	chunks       atomic.Uint64
	dropped      atomic.Uint64
	flushes      atomic.Uint64
	flushedBytes atomic.Uint64
}

func NewRecvAccumulator(cfg RecvConfig, flush func([]byte)) *RecvAccumulator {
	if cfg.QueueCap < 1 {
		cfg.QueueCap = 1
	}
	return &RecvAccumulator{
		cfg:   cfg,
		flush: flush,
		queue: make(chan []byte, cfg.QueueCap),
		now:   time.Now,
	}
}

// Push enqueues a network chunk. A full queue evicts the oldest chunk;
// the freshest data always gets in.
func (a *RecvAccumulator) Push(chunk []byte) {
	a.chunks.Add(1)
	for {
		select {
		case a.queue <- chunk:
			return
		default:
		}
		select {
		case <-a.queue:
			a.dropped.Add(1)
			log.Warn().Str("module", "media.recv").Msg("recv queue full, oldest chunk dropped")
		default:
		}
	}
}

// Run accumulates until ctx is cancelled. Residual bytes are flushed on
// exit so a short stream is not swallowed.
func (a *RecvAccumulator) Run(ctx context.Context) {
	var buf bytes.Buffer
	var firstByteAt time.Time

	poll := a.cfg.MaxWait / 4
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	doFlush := func() {
		a.flushes.Add(1)
		a.flushedBytes.Add(uint64(buf.Len()))
		out := extract(&buf)
		a.flush(out)
	}

	for {
		select {
		case <-ctx.Done():
			if buf.Len() > 0 {
				doFlush()
			}
			return
		case chunk := <-a.queue:
			if buf.Len() == 0 {
				// The age clock starts when a fresh buffer starts.
				firstByteAt = a.now()
			}
			buf.Write(chunk)
		case <-ticker.C:
		}
		if buf.Len() > 0 && a.shouldFlush(buf.Len(), a.now().Sub(firstByteAt)) {
			doFlush()
		}
	}
}

// shouldFlush holds iff one of the three trigger conditions does.
func (a *RecvAccumulator) shouldFlush(size int, age time.Duration) bool {
	if size >= a.cfg.HighWater {
		return true
	}
	if size >= a.cfg.LowWater {
		return true
	}
	return size > a.cfg.MinFlush && age >= a.cfg.MaxWait
}

func (a *RecvAccumulator) Stats() RecvStats {
	return RecvStats{
		Chunks:        a.chunks.Load(),
		DroppedChunks: a.dropped.Load(),
		Flushes:       a.flushes.Load(),
		FlushedBytes:  a.flushedBytes.Load(),
	}
}
