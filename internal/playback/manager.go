package playback

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// track is the owned state of one logical audio stream. It is mutated only by
// Manager methods under the Manager lock; callbacks never touch it directly.
type track struct {
	kind      Kind
	data      []byte
	pos       int
	playing   bool
	done      bool
	completed bool
	stop      chan struct{}
	// exited closes when the pump spawned for the current stop channel has
	// returned; resumes wait on it so two pumps never drive one track.
	exited chan struct{}
}

// Manager serializes access to the audible output across the Main and QA
// tracks. At most one Main and, transiently, one QA track exist; they are
// never both producing output at the same instant.
type Manager struct {
	mu   sync.Mutex
	sink Sink

	// pacing: one chunk per tick toward the sink
	interval       time.Duration
	chunkBytes     int
	bytesPerSecond int
	settleDelay    time.Duration

	main            *track
	qa              *track
	resumeMainAfter bool
	resumeGen       int

	onMainComplete func()
	onQAComplete   func()
}

// NewManager constructs a Manager pacing 20ms chunks of 16kHz PCM toward sink.
func NewManager(sink Sink) *Manager {
	return &Manager{
		sink:           sink,
		interval:       20 * time.Millisecond,
		chunkBytes:     640, // 20ms of 16kHz mono PCM16
		bytesPerSecond: 32000,
		settleDelay:    200 * time.Millisecond,
	}
}

// OnMainComplete registers the natural-end callback for the Main track.
func (m *Manager) OnMainComplete(fn func()) { m.mu.Lock(); m.onMainComplete = fn; m.mu.Unlock() }

// OnQAComplete registers the completion callback for the QA track. It fires
// exactly once per QA exchange even under duplicate end-of-stream signals.
func (m *Manager) OnQAComplete(fn func()) { m.mu.Lock(); m.onQAComplete = fn; m.mu.Unlock() }

// PlayMain begins or resumes Main playback from src. While a QA track is
// active the call is a logged no-op, not an error; that guard is normal
// control flow.
func (m *Manager) PlayMain(ctx context.Context, src Source) error {
	m.mu.Lock()
	if m.qa != nil && m.qa.playing {
		log.Printf("playback: guard: rejecting main playback while qa active")
		m.mu.Unlock()
		return nil
	}
	if t := m.main; t != nil && !t.done {
		if t.playing {
			m.mu.Unlock()
			return nil
		}
		prev := t.exited
		m.mu.Unlock()
		if prev != nil {
			<-prev
		}
		m.mu.Lock()
		t = m.main
		if t == nil || t.done || t.playing || (m.qa != nil && m.qa.playing) {
			m.mu.Unlock()
			return nil
		}
		t.playing = true
		t.stop = make(chan struct{})
		m.spawnPumpLocked(t)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	data, err := src.Bytes(ctx)
	if err != nil {
		return err
	}
	decoded, err := decode(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.qa != nil && m.qa.playing {
		log.Printf("playback: guard: rejecting main playback while qa active")
		m.mu.Unlock()
		return nil
	}
	t := &track{kind: Main, data: decoded, playing: true, stop: make(chan struct{})}
	m.main = t
	m.spawnPumpLocked(t)
	m.mu.Unlock()
	return nil
}

// PauseMain halts the Main track keeping its position for a later resume.
// Idempotent.
func (m *Manager) PauseMain() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauseMainLocked()
}

func (m *Manager) pauseMainLocked() {
	t := m.main
	if t == nil || !t.playing {
		return
	}
	t.playing = false
	close(t.stop)
}

// StopMain halts and discards the Main track, resetting position to zero.
func (m *Manager) StopMain() {
	m.mu.Lock()
	if t := m.main; t != nil {
		if t.playing {
			close(t.stop)
		}
		m.main = nil
	}
	m.mu.Unlock()
	m.sink.Reset()
}

// PauseForQuestion pauses Main for an incoming user question and records
// whether it was actively playing, which governs the automatic resume after
// the answer. It also supersedes any pending resume from a previous exchange.
func (m *Manager) PauseForQuestion() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumeGen++
	wasPlaying := m.main != nil && m.main.playing
	m.resumeMainAfter = wasPlaying
	if wasPlaying {
		m.pauseMainLocked()
	}
}

// PlayQA decodes the answer payload and plays it under mutual exclusion. Any
// still-playing Main track is forced to paused first (the controller should
// already have done this; the check here keeps the invariant local).
func (m *Manager) PlayQA(payload []byte) error {
	decoded, err := decode(payload)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.resumeGen++
	if m.main != nil && m.main.playing {
		m.resumeMainAfter = true
		m.pauseMainLocked()
	}
	var prev chan struct{}
	if old := m.qa; old != nil && old.playing {
		old.playing = false
		close(old.stop)
		prev = old.exited
	}
	gen := m.resumeGen
	m.mu.Unlock()
	if prev != nil {
		<-prev
	}
	m.mu.Lock()
	if gen != m.resumeGen {
		m.mu.Unlock()
		return nil
	}
	t := &track{kind: QA, data: decoded, playing: true, stop: make(chan struct{})}
	m.qa = t
	m.spawnPumpLocked(t)
	m.mu.Unlock()
	return nil
}

// NotifyQAEnded handles an external end-of-stream notification for the QA
// track. Safe to call multiple times; completion side effects run once.
func (m *Manager) NotifyQAEnded() {
	m.mu.Lock()
	t := m.qa
	m.mu.Unlock()
	if t != nil {
		m.finishQA(t)
	}
}

// QAActive reports whether a QA track currently exists.
func (m *Manager) QAActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.qa != nil && !m.qa.completed
}

// MainPlaying reports whether the Main track is producing output.
func (m *Manager) MainPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.main != nil && m.main.playing
}

// MainPaused reports whether a Main track exists, is not done and is not
// playing.
func (m *Manager) MainPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.main != nil && !m.main.playing && !m.main.done
}

// Position reports the playback offset of a track in seconds. Estimated from
// the PCM byte rate; zero when the track does not exist.
func (m *Manager) Position(kind Kind) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.trackLocked(kind)
	if t == nil {
		return 0
	}
	return float64(t.pos) / float64(m.bytesPerSecond)
}

// Duration reports the total length of a track in seconds.
func (m *Manager) Duration(kind Kind) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.trackLocked(kind)
	if t == nil {
		return 0
	}
	return float64(len(t.data)) / float64(m.bytesPerSecond)
}

func (m *Manager) trackLocked(kind Kind) *track {
	if kind == QA {
		return m.qa
	}
	return m.main
}

// Stop releases both tracks and drops any queued output. Idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.resumeGen++
	m.resumeMainAfter = false
	for _, t := range []*track{m.main, m.qa} {
		if t != nil && t.playing {
			t.playing = false
			close(t.stop)
		}
	}
	m.main = nil
	m.qa = nil
	m.mu.Unlock()
	m.sink.Reset()
}

// spawnPumpLocked starts a pump for t's current stop channel and arranges for
// t.exited to close once that pump has returned. Callers hold m.mu.
func (m *Manager) spawnPumpLocked(t *track) {
	stop := t.stop
	exited := make(chan struct{})
	t.exited = exited
	go func() {
		m.pump(t, stop)
		close(exited)
	}()
}

// pump pushes paced chunks of t toward the sink until pause, stop or
// end-of-data. The stop channel is captured at spawn time: a pause/resume
// cycle replaces t.stop, so a pump that re-read the field could outlive its
// own pause and drive the track alongside the resume pump. Each tick
// re-checks under the lock that this pump still owns the track, and resumes
// wait on the previous pump's exit before starting a new one.
func (m *Manager) pump(t *track, stop chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			if !t.playing || t.stop != stop {
				m.mu.Unlock()
				return
			}
			if t.pos >= len(t.data) {
				t.playing = false
				t.done = true
				kind := t.kind
				m.mu.Unlock()
				if kind == Main {
					m.finishMain(t)
				} else {
					m.finishQA(t)
				}
				return
			}
			end := t.pos + m.chunkBytes
			if end > len(t.data) {
				end = len(t.data)
			}
			chunk := t.data[t.pos:end]
			t.pos = end
			kind := t.kind
			m.mu.Unlock()
			if err := m.sink.WriteAudio(kind, chunk); err != nil {
				log.Printf("playback: sink write error on %s track: %v", kind, err)
			}
		}
	}
}

func (m *Manager) finishMain(t *track) {
	m.mu.Lock()
	if t.completed || m.main != t {
		m.mu.Unlock()
		return
	}
	t.completed = true
	t.done = true
	m.main = nil
	cb := m.onMainComplete
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (m *Manager) finishQA(t *track) {
	m.mu.Lock()
	if t.completed || m.qa != t {
		m.mu.Unlock()
		return
	}
	t.completed = true
	t.done = true
	if t.playing {
		t.playing = false
		close(t.stop)
	}
	m.qa = nil
	resume := m.resumeMainAfter
	m.resumeMainAfter = false
	m.resumeGen++
	gen := m.resumeGen
	cb := m.onQAComplete
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
	if resume {
		time.AfterFunc(m.settleDelay, func() { m.resumeAfterQA(gen) })
	}
}

// resumeAfterQA resumes Main after the settling delay, but only when the
// recorded generation still stands and Main is paused and not already playing.
func (m *Manager) resumeAfterQA(gen int) {
	m.mu.Lock()
	if gen != m.resumeGen {
		log.Printf("playback: stale resume superseded, skipping")
		m.mu.Unlock()
		return
	}
	t := m.main
	if t == nil || t.done || t.playing {
		log.Printf("playback: skipping resume: main not in paused state")
		m.mu.Unlock()
		return
	}
	prev := t.exited
	m.mu.Unlock()
	if prev != nil {
		<-prev
	}
	m.mu.Lock()
	if gen != m.resumeGen {
		log.Printf("playback: stale resume superseded, skipping")
		m.mu.Unlock()
		return
	}
	t = m.main
	if t == nil || t.done || t.playing {
		m.mu.Unlock()
		return
	}
	t.playing = true
	t.stop = make(chan struct{})
	m.spawnPumpLocked(t)
	m.mu.Unlock()
}

// decode validates a payload before playback. Malformed audio surfaces as one
// ErrDecode; the manager never retries.
func decode(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	if len(data) >= 4 && string(data[0:4]) == "RIFF" && len(data) < 44 {
		return nil, fmt.Errorf("%w: truncated WAV header", ErrDecode)
	}
	return data, nil
}
