// Package codec is the boundary to the actual encode/decode machinery.
// The client core only moves opaque bytes; anything that understands
// pixels lives behind these interfaces.
package codec

// Frame is one decoded picture ready for presentation.
type Frame struct {
	Data   []byte
	Width  int
	Height int
}

// Source produces raw frames at the capture side (screen grab).
type Source interface {
	// Grab returns the next raw frame, blocking at most briefly.
	Grab() ([]byte, error)
	Close() error
}

// Encoder turns raw frames into an encoded byte stream.
type Encoder interface {
	// Encode returns the encoded bytes for one frame; may return nil
	// when the encoder buffers internally.
	Encode(frame []byte) ([]byte, error)
	Close() error
}

// Decoder turns accumulated byte buffers into zero or more frames.
type Decoder interface {
	Decode(buf []byte) ([]Frame, error)
	Close() error
}

// Renderer consumes decoded frames at the viewing side.
type Renderer interface {
	Render(frame Frame) error
	Close() error
}
