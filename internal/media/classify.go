package media

// SegmentKind is decided by content sniffing, not by protocol metadata.
// The checks are format-coupled on purpose and isolated here so a codec
// change only touches this file.
type SegmentKind int

const (
	SegmentMedia SegmentKind = iota
	SegmentInit
)

// Classify recognizes initialization segments two ways: an fMP4 box name
// at the fixed header offset, or an SPS NAL right after an Annex-B start
// code. Everything else is ordinary media.
func Classify(b []byte) SegmentKind {
	if len(b) >= 8 {
		box := string(b[4:8])
		if box == "ftyp" || box == "moov" {
			return SegmentInit
		}
	}
	if i := startCodeEnd(b); i >= 0 && i < len(b) {
		if b[i]&0x1F == 7 { // H.264 SPS
			return SegmentInit
		}
	}
	return SegmentMedia
}

// startCodeEnd returns the index just past a leading Annex-B start code
// (00 00 01 or 00 00 00 01), or -1.
func startCodeEnd(b []byte) int {
	if len(b) >= 4 && b[0] == 0 && b[1] == 0 && b[2] == 0 && b[3] == 1 {
		return 4
	}
	if len(b) >= 3 && b[0] == 0 && b[1] == 0 && b[2] == 1 {
		return 3
	}
	return -1
}
