package client

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vijayvir/ScreenAiClient-sub000/internal/codec"
	"github.com/vijayvir/ScreenAiClient-sub000/internal/media"
)

// capturePipeline is the host-side Pipeline: steady-rate capture/encode
// batched through the send buffer onto the wire.
type capturePipeline struct {
	buf *media.SendBuffer
}

func (p *capturePipeline) Run(ctx context.Context) { p.buf.Run(ctx) }

func (p *capturePipeline) Stop(timeout time.Duration) { p.buf.Stop(timeout) }

// playbackPipeline is the viewer-side Pipeline: inbound binary frames are
// accumulated into decodable buffers, smoothed through the jitter buffer,
// then decoded and rendered.
type playbackPipeline struct {
	binaries <-chan []byte
	acc      *media.RecvAccumulator
	jitter   *media.JitterBuffer
	dec      codec.Decoder
	renderer codec.Renderer

	done chan struct{}
	once sync.Once
}

func newPlaybackPipeline(binaries <-chan []byte, acc *media.RecvAccumulator, jitter *media.JitterBuffer, dec codec.Decoder, renderer codec.Renderer) *playbackPipeline {
	return &playbackPipeline{
		binaries: binaries,
		acc:      acc,
		jitter:   jitter,
		dec:      dec,
		renderer: renderer,
		done:     make(chan struct{}),
	}
}

func (p *playbackPipeline) Run(ctx context.Context) {
	defer close(p.done)
	var wg sync.WaitGroup
	wg.Add(3)

	// Network chunks into the accumulator.
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case chunk := <-p.binaries:
				p.acc.Push(chunk)
			}
		}
	}()

	// Accumulated buffers go through the jitter buffer.
	go func() {
		defer wg.Done()
		p.acc.Run(ctx)
	}()

	// Decode loop drains the jitter buffer.
	go func() {
		defer wg.Done()
		poll := time.NewTicker(10 * time.Millisecond)
		defer poll.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-poll.C:
				for {
					buf, ok := p.jitter.Pop()
					if !ok {
						break
					}
					p.decodeAndRender(buf)
				}
			}
		}
	}()

	wg.Wait()
}

func (p *playbackPipeline) decodeAndRender(buf []byte) {
	frames, err := p.dec.Decode(buf)
	if err != nil {
		log.Error().Err(err).Str("module", "client.playback").Msg("decode failed, buffer skipped")
		return
	}
	for _, f := range frames {
		if err := p.renderer.Render(f); err != nil {
			log.Error().Err(err).Str("module", "client.playback").Msg("render failed")
		}
	}
}

func (p *playbackPipeline) Stop(timeout time.Duration) {
	select {
	case <-p.done:
	case <-time.After(timeout):
		log.Warn().Str("module", "client.playback").Msg("playback loops did not stop in time, proceeding")
	}
}
