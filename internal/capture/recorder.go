package capture

import (
	"errors"
	"log"
	"math"
	"sync"
	"time"
)

// TargetSampleRate is the rate every sealed question is resampled to before
// encoding. The transcription service expects 16kHz mono WAV.
const TargetSampleRate = 16000

// silenceRMS is the whole-buffer energy floor (on normalized float samples)
// below which a capture is discarded instead of sealed.
const silenceRMS = 0.001

// trimRMS is the per-window energy floor used to strip leading and trailing
// silence from a capture. Slightly above the discard floor so breath noise at
// the edges still gets trimmed.
const trimRMS = 0.004

// levelSmoothing keeps 85% of the previous smoothed level per frame.
const levelSmoothing = 0.85

var (
	// ErrDeviceUnavailable means the input source could not be acquired.
	// Callers surface it as a warning; it never fails a session.
	ErrDeviceUnavailable = errors.New("capture: input device unavailable")
	// ErrSilenceDiscarded means the sealed buffer carried no voice energy.
	// A policy outcome, not a failure.
	ErrSilenceDiscarded = errors.New("capture: discarded: silence")
	// ErrNotCapturing is returned by Feed/End outside an active capture.
	ErrNotCapturing = errors.New("capture: no active capture")
)

// Question is one sealed user voice question, ready for upload.
type Question struct {
	AudioPayload    []byte // 16-bit PCM WAV at TargetSampleRate
	StartedAt       time.Time
	DurationSeconds float64
	Transcript      string // filled in once the transcription service responds
}

// Source delivers PCM frames from an input device. Open must return
// ErrDeviceUnavailable when permission is denied or no device exists.
type Source interface {
	Open() error
	Frames() <-chan []int16
	SampleRate() int
	Close() error
}

// Recorder converts a begin/end gesture into one encoded audio payload.
// Frames may arrive from an attached Source or be pushed via Feed; either way
// they accumulate in arrival order until End seals the capture.
type Recorder struct {
	mu         sync.Mutex
	source     Source
	sampleRate int
	active     bool
	samples    []int16
	level      float64
	startedAt  time.Time
	sourceDone chan struct{}
}

// NewRecorder returns a Recorder accumulating frames at the given native rate.
// source may be nil when frames are pushed by the caller.
func NewRecorder(source Source, sampleRate int) *Recorder {
	if source != nil {
		sampleRate = source.SampleRate()
	}
	if sampleRate <= 0 {
		sampleRate = TargetSampleRate
	}
	return &Recorder{source: source, sampleRate: sampleRate}
}

// Begin starts a capture. With an attached Source it acquires the device and
// pumps frames until End; without one it just arms the accumulator.
func (r *Recorder) Begin() error {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return nil
	}
	r.active = true
	r.samples = r.samples[:0]
	r.level = 0
	r.startedAt = time.Now()
	src := r.source
	r.mu.Unlock()

	if src == nil {
		return nil
	}
	if err := src.Open(); err != nil {
		r.mu.Lock()
		r.active = false
		r.mu.Unlock()
		if errors.Is(err, ErrDeviceUnavailable) {
			return err
		}
		return errors.Join(ErrDeviceUnavailable, err)
	}
	done := make(chan struct{})
	r.mu.Lock()
	r.sourceDone = done
	r.mu.Unlock()
	go func() {
		defer close(done)
		for frame := range src.Frames() {
			r.Feed(frame)
		}
	}()
	return nil
}

// Feed appends one PCM frame and updates the smoothed input level.
func (r *Recorder) Feed(frame []int16) {
	if len(frame) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}
	r.samples = append(r.samples, frame...)
	rms := frameRMS(frame)
	r.level = levelSmoothing*r.level + (1-levelSmoothing)*rms
}

// Level reports the smoothed input energy for visual feedback.
func (r *Recorder) Level() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.level
}

// Capturing reports whether a capture is in progress.
func (r *Recorder) Capturing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// End seals the capture: releases the device, trims leading/trailing silence,
// resamples to TargetSampleRate and encodes a WAV payload. Returns
// ErrSilenceDiscarded when the whole buffer carries no voice energy.
func (r *Recorder) End() (*Question, error) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return nil, ErrNotCapturing
	}
	r.active = false
	src := r.source
	done := r.sourceDone
	r.sourceDone = nil
	r.mu.Unlock()

	if src != nil {
		_ = src.Close()
		if done != nil {
			<-done
		}
	}

	r.mu.Lock()
	samples := r.samples
	r.samples = nil
	startedAt := r.startedAt
	rate := r.sampleRate
	r.mu.Unlock()

	if bufferRMS(samples) < silenceRMS {
		log.Printf("capture: discarded: silence (%d samples)", len(samples))
		return nil, ErrSilenceDiscarded
	}

	trimmed := trimSilence(samples, rate)
	if len(trimmed) == 0 {
		log.Printf("capture: discarded: silence (all windows below trim floor)")
		return nil, ErrSilenceDiscarded
	}
	resampled := Resample(trimmed, rate, TargetSampleRate)
	return &Question{
		AudioPayload:    EncodeWAV(resampled, TargetSampleRate),
		StartedAt:       startedAt,
		DurationSeconds: float64(len(resampled)) / float64(TargetSampleRate),
	}, nil
}

// Abort drops any in-progress capture and releases the device.
func (r *Recorder) Abort() {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	r.active = false
	r.samples = nil
	src := r.source
	done := r.sourceDone
	r.sourceDone = nil
	r.mu.Unlock()
	if src != nil {
		_ = src.Close()
		if done != nil {
			<-done
		}
	}
}

// frameRMS computes root-mean-square energy normalized to [0,1].
func frameRMS(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		f := float64(s) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(frame)))
}

func bufferRMS(samples []int16) float64 {
	return frameRMS(samples)
}

// trimSilence strips leading and trailing 10ms windows below trimRMS.
func trimSilence(samples []int16, rate int) []int16 {
	win := rate / 100
	if win <= 0 || len(samples) < win {
		return samples
	}
	start := 0
	for ; start+win <= len(samples); start += win {
		if frameRMS(samples[start:start+win]) >= trimRMS {
			break
		}
	}
	end := len(samples)
	for ; end-win >= start; end -= win {
		if frameRMS(samples[end-win:end]) >= trimRMS {
			break
		}
	}
	if start >= end {
		return nil
	}
	return samples[start:end]
}

// Resample converts mono PCM between sample rates by linear interpolation.
func Resample(samples []int16, from, to int) []int16 {
	if from == to || len(samples) == 0 || from <= 0 || to <= 0 {
		return samples
	}
	outLen := int(int64(len(samples)) * int64(to) / int64(from))
	if outLen == 0 {
		return nil
	}
	out := make([]int16, outLen)
	ratio := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		a := float64(samples[idx])
		b := float64(samples[idx+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return out
}
