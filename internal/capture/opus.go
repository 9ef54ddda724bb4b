package capture

import (
	"fmt"

	"github.com/hraban/opus"
)

// OpusFeeder decodes 48kHz mono Opus packets into PCM frames and feeds them to
// a Recorder. Used when the client ships its microphone audio as Opus instead
// of raw PCM.
type OpusFeeder struct {
	dec *opus.Decoder
	rec *Recorder
	buf []int16
}

// NewOpusFeeder constructs a feeder for the given recorder. The recorder must
// have been created with a 48kHz native rate.
func NewOpusFeeder(rec *Recorder) (*OpusFeeder, error) {
	dec, err := opus.NewDecoder(48000, 1)
	if err != nil {
		return nil, fmt.Errorf("capture: opus decoder: %w", err)
	}
	// 120ms at 48kHz is the largest opus frame
	return &OpusFeeder{dec: dec, rec: rec, buf: make([]int16, 5760)}, nil
}

// FeedPacket decodes one Opus packet and appends the PCM to the capture.
func (f *OpusFeeder) FeedPacket(pkt []byte) error {
	if len(pkt) == 0 {
		return nil
	}
	n, err := f.dec.Decode(pkt, f.buf)
	if err != nil {
		return fmt.Errorf("capture: opus decode: %w", err)
	}
	frame := make([]int16, n)
	copy(frame, f.buf[:n])
	f.rec.Feed(frame)
	return nil
}
