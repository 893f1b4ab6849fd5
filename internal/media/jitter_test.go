package media

import (
	"bytes"
	"testing"
)

func mediaSegment(fill byte, n int) []byte {
	return bytes.Repeat([]byte{fill}, n)
}

func TestJitterCapacityDropsExactlyOldest(t *testing.T) {
	j := NewJitterBuffer(3)
	for i := 1; i <= 4; i++ {
		j.Push(mediaSegment(byte(i), 10))
	}

	stats := j.Stats()
	if stats.Depth != 3 {
		t.Fatalf("depth = %d, capacity is 3", stats.Depth)
	}
	if stats.Dropped != 1 {
		t.Fatalf("dropped = %d, want exactly 1", stats.Dropped)
	}

	// Oldest (1) is gone; 2, 3, 4 remain in order — the new entry was
	// retained.
	for want := byte(2); want <= 4; want++ {
		seg, ok := j.Pop()
		if !ok || seg[0] != want {
			t.Fatalf("pop = %v ok=%v, want fill %d", seg, ok, want)
		}
	}
	if _, ok := j.Pop(); ok {
		t.Fatal("buffer should be empty")
	}
}

func TestJitterCountsBytes(t *testing.T) {
	j := NewJitterBuffer(10)
	j.Push(mediaSegment(0x01, 100))
	j.Push(mediaSegment(0x02, 50))
	stats := j.Stats()
	if stats.Received != 2 || stats.TotalBytes != 150 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestJitterCachesInitSegmentAside(t *testing.T) {
	j := NewJitterBuffer(4)

	init := append([]byte{0x00, 0x00, 0x00, 0x18}, []byte("ftypisom")...)
	j.Push(init)
	j.Push(mediaSegment(0x42, 20))

	if got := j.InitSegment(); !bytes.Equal(got, init) {
		t.Fatalf("init segment = %v", got)
	}
	// The init segment is replayed, not queued: only media pops out.
	seg, ok := j.Pop()
	if !ok || seg[0] != 0x42 {
		t.Fatalf("pop = %v ok=%v, want media segment", seg, ok)
	}
	if _, ok := j.Pop(); ok {
		t.Fatal("init segment must not sit in the queue")
	}

	// Only the first init segment is kept.
	other := append([]byte{0x00, 0x00, 0x00, 0x20}, []byte("ftypmp42")...)
	j.Push(other)
	if got := j.InitSegment(); !bytes.Equal(got, init) {
		t.Fatal("a later init segment must not replace the cached one")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want SegmentKind
	}{
		{"ftyp box", append([]byte{0, 0, 0, 0x18}, []byte("ftypisom")...), SegmentInit},
		{"moov box", append([]byte{0, 0, 1, 0x00}, []byte("moovxxxx")...), SegmentInit},
		{"sps long start code", []byte{0, 0, 0, 1, 0x67, 0x42}, SegmentInit},
		{"sps short start code", []byte{0, 0, 1, 0x67, 0x42}, SegmentInit},
		{"idr slice", []byte{0, 0, 0, 1, 0x65, 0x88}, SegmentMedia},
		{"mdat box", append([]byte{0, 0, 2, 0x00}, []byte("mdatxxxx")...), SegmentMedia},
		{"garbage", []byte{0xDE, 0xAD, 0xBE, 0xEF, 0xDE, 0xAD, 0xBE, 0xEF}, SegmentMedia},
		{"empty", nil, SegmentMedia},
		{"short", []byte{0, 0}, SegmentMedia},
	}
	for _, tc := range cases {
		if got := Classify(tc.data); got != tc.want {
			t.Errorf("%s: Classify = %v, want %v", tc.name, got, tc.want)
		}
	}
}
