// Package media decouples the fixed-rate capture/decode steps from the
// bursty network: bounded queues on both directions, GOP-aligned batching
// on the way out, threshold-triggered accumulation on the way in.
package media

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vijayvir/ScreenAiClient-sub000/internal/codec"
)

type SendConfig struct {
	FrameInterval time.Duration
	GOPFrames     int
	QueueCap      int
}

type SendStats struct {
	Frames        uint64 `json:"frames"`
	Chunks        uint64 `json:"chunks"`
	DroppedChunks uint64 `json:"droppedChunks"`
	SentBytes     uint64 `json:"sentBytes"`
}

// SendBuffer drives the encoder on a steady timer and batches its output
// into GOP-aligned chunks. Chunks go through a bounded queue to a
// separate sender loop; when the network cannot keep up, the newest chunk
// is dropped rather than blocking capture or growing without bound.
// A SendBuffer is single-use: one Run, one Stop, then build a new one.
type SendBuffer struct {
	cfg    SendConfig
	source codec.Source
	enc    codec.Encoder
	send   func([]byte)

	queue   chan []byte
	done    chan struct{}
	stop    chan struct{}
	capDone chan struct{}
	once    sync.Once

	frames  atomic.Uint64
	chunks  atomic.Uint64
	dropped atomic.Uint64
	sent    atomic.Uint64
}

func NewSendBuffer(cfg SendConfig, source codec.Source, enc codec.Encoder, send func([]byte)) *SendBuffer {
	if cfg.GOPFrames < 1 {
		cfg.GOPFrames = 1
	}
	if cfg.QueueCap < 1 {
		cfg.QueueCap = 1
	}
	return &SendBuffer{
		cfg:    cfg,
		source: source,
		enc:    enc,
		send:   send,
		queue:   make(chan []byte, cfg.QueueCap),
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
		capDone: make(chan struct{}),
	}
}

// Run blocks until ctx is cancelled or Stop is called, operating the
// capture loop and the sender loop.
func (b *SendBuffer) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.captureLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		b.senderLoop(ctx)
	}()
	wg.Wait()
	close(b.done)
}

// Stop signals the loops and join-waits them with a bounded timeout;
// shutdown proceeds even if a loop is wedged.
func (b *SendBuffer) Stop(timeout time.Duration) {
	b.once.Do(func() { close(b.stop) })
	select {
	case <-b.done:
	case <-time.After(timeout):
		log.Warn().Str("module", "media.send").Msg("send loops did not stop in time, proceeding")
	}
}

func (b *SendBuffer) Stats() SendStats {
	return SendStats{
		Frames:        b.frames.Load(),
		Chunks:        b.chunks.Load(),
		DroppedChunks: b.dropped.Load(),
		SentBytes:     b.sent.Load(),
	}
}

func (b *SendBuffer) captureLoop(ctx context.Context) {
	var sink bytes.Buffer
	framesInGOP := 0
	next := time.Now()

	defer func() {
		// Residual bytes leave as one final chunk.
		if sink.Len() > 0 {
			b.offer(extract(&sink))
		}
		close(b.capDone)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stop:
			return
		default:
		}

		sleepUntil(next)
		next = next.Add(b.cfg.FrameInterval)

		frame, err := b.source.Grab()
		if err != nil {
			log.Error().Err(err).Str("module", "media.send").Msg("frame grab failed")
			continue
		}
		out, err := b.enc.Encode(frame)
		if err != nil {
			log.Error().Err(err).Str("module", "media.send").Msg("encode failed")
			continue
		}
		b.frames.Add(1)
		if len(out) > 0 {
			sink.Write(out)
		}

		framesInGOP++
		if framesInGOP >= b.cfg.GOPFrames && sink.Len() > 0 {
			// GOP boundary: everything accumulated is independently
			// decodable from here.
			b.offer(extract(&sink))
			framesInGOP = 0
		}
	}
}

// offer enqueues a chunk, dropping it when the queue is full.
func (b *SendBuffer) offer(chunk []byte) {
	select {
	case b.queue <- chunk:
		b.chunks.Add(1)
	default:
		b.dropped.Add(1)
		log.Warn().Int("bytes", len(chunk)).Str("module", "media.send").Msg("send queue full, chunk dropped")
	}
}

func (b *SendBuffer) senderLoop(ctx context.Context) {
	poll := time.NewTicker(20 * time.Millisecond)
	defer poll.Stop()
	for {
		select {
		case chunk := <-b.queue:
			b.send(chunk)
			b.sent.Add(uint64(len(chunk)))
		case <-ctx.Done():
			<-b.capDone
			b.drain()
			return
		case <-b.stop:
			// The capture loop flushes its residual before capDone closes.
			<-b.capDone
			b.drain()
			return
		case <-poll.C:
		}
	}
}

func (b *SendBuffer) drain() {
	for {
		select {
		case chunk := <-b.queue:
			b.send(chunk)
			b.sent.Add(uint64(len(chunk)))
		default:
			return
		}
	}
}

func extract(sink *bytes.Buffer) []byte {
	chunk := append([]byte(nil), sink.Bytes()...)
	sink.Reset()
	return chunk
}

// sleepUntil sleeps coarsely, then busy-waits the sub-millisecond
// residual; plain Sleep alone overshoots the frame interval.
func sleepUntil(t time.Time) {
	for {
		d := time.Until(t)
		if d <= 0 {
			return
		}
		if d > time.Millisecond {
			time.Sleep(d - time.Millisecond)
		}
	}
}
