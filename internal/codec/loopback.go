package codec

import "sync"

// Loopback implementations pass bytes through untouched. They exist for
// tests and for wiring the pipelines without real capture hardware.

type LoopbackSource struct {
	mu     sync.Mutex
	frames [][]byte
	next   int
}

func NewLoopbackSource(frames [][]byte) *LoopbackSource {
	return &LoopbackSource{frames: frames}
}

func (s *LoopbackSource) Grab() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil, nil
	}
	f := s.frames[s.next%len(s.frames)]
	s.next++
	return f, nil
}

func (s *LoopbackSource) Close() error { return nil }

type LoopbackEncoder struct{}

func (LoopbackEncoder) Encode(frame []byte) ([]byte, error) { return frame, nil }
func (LoopbackEncoder) Close() error                        { return nil }

// LoopbackDecoder yields each input buffer back as a single frame.
type LoopbackDecoder struct {
	mu     sync.Mutex
	Frames []Frame
}

func (d *LoopbackDecoder) Decode(buf []byte) ([]Frame, error) {
	f := Frame{Data: append([]byte(nil), buf...)}
	d.mu.Lock()
	d.Frames = append(d.Frames, f)
	d.mu.Unlock()
	return []Frame{f}, nil
}

func (d *LoopbackDecoder) Close() error { return nil }

func (d *LoopbackDecoder) Decoded() []Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Frame(nil), d.Frames...)
}
