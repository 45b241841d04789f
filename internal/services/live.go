package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"alfredoptarigan/resume-coach/internal/audio"
	"alfredoptarigan/resume-coach/internal/models"
)

type LiveEventType string

const (
	EventOpen         LiveEventType = "open"
	EventAudio        LiveEventType = "audio"
	EventTranscript   LiveEventType = "transcript"
	EventInterrupted  LiveEventType = "interrupted"
	EventTurnComplete LiveEventType = "turnComplete"
	EventError        LiveEventType = "error"
	EventClose        LiveEventType = "close"
)

// LiveEvent is one message from the live transport. Audio carries PCM16 LE
// mono at SampleRate.
type LiveEvent struct {
	Type       LiveEventType
	Audio      []byte
	SampleRate int
	Role       models.TurnRole
	Text       string
	Err        error
}

type LiveConfig struct {
	SystemInstruction string
	Voice             string
	Transcription     bool
}

// LiveTransport is an open streaming session with the voice model. Events is
// closed after the final error or close event.
type LiveTransport interface {
	Events() <-chan LiveEvent
	SendAudio(pcm []byte, mimeType string) error
	Close() error
}

type LiveDialer interface {
	ConnectLive(ctx context.Context, cfg LiveConfig) (LiveTransport, error)
}

// Microphone delivers captured mono samples on its own clock. ReadSamples
// must return when ctx is done.
type Microphone interface {
	SampleRate() int
	ReadSamples(ctx context.Context) ([]float32, error)
	Close() error
}

// AudioSink plays buffers at absolute times on its own clock.
type AudioSink interface {
	audio.Clock
	Play(buf audio.Buffer, startAt float64) error
	StopAll()
	Close() error
}

// AudioDevices opens the hardware a live session owns. OpenMicrophone returns
// an error wrapping ErrMicrophoneDenied when permission is refused.
type AudioDevices interface {
	OpenMicrophone(ctx context.Context) (Microphone, error)
	OpenSink(ctx context.Context, sampleRate int) (AudioSink, error)
}

type LiveOptions struct {
	OutputSampleRate int
	FrameSize        int
	Voice            string
	Transcription    bool
	OpenTimeout      time.Duration
}

type LiveSessionRequest struct {
	ResumeText     string
	JobDescription string
	Style          models.InterviewStyle
	// OnEvent, when set, sees every transport event after the session
	// has handled it.
	OnEvent func(LiveEvent)
}

type LiveSessionManager struct {
	dialer        LiveDialer
	knowledge     KnowledgeBase
	promptBuilder *PromptBuilder
	opts          LiveOptions
}

func NewLiveSessionManager(dialer LiveDialer, knowledge KnowledgeBase, promptBuilder *PromptBuilder, opts LiveOptions) *LiveSessionManager {
	if knowledge == nil {
		knowledge = NewNoopKnowledgeBase()
	}
	if opts.OutputSampleRate <= 0 {
		opts.OutputSampleRate = 24000
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 15 * time.Second
	}
	return &LiveSessionManager{
		dialer:        dialer,
		knowledge:     knowledge,
		promptBuilder: promptBuilder,
		opts:          opts,
	}
}

// Connect acquires the microphone and sink, dials the model and waits for
// the session to open. On failure everything acquired so far is released
// and no session exists.
func (m *LiveSessionManager) Connect(ctx context.Context, devices AudioDevices, req LiveSessionRequest) (*LiveSession, error) {
	mic, err := devices.OpenMicrophone(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open microphone: %w", err)
	}

	sink, err := devices.OpenSink(ctx, m.opts.OutputSampleRate)
	if err != nil {
		mic.Close()
		return nil, fmt.Errorf("failed to open audio output: %w", err)
	}

	knowledge := ""
	if req.JobDescription != "" {
		knowledge, err = m.knowledge.Retrieve(ctx, m.promptBuilder.BuildRetrievalQuery(req.JobDescription), 3)
		if err != nil {
			log.Printf("⚠️  Failed to retrieve interview knowledge: %v\n", err)
			knowledge = ""
		}
	}

	transport, err := m.dialer.ConnectLive(ctx, LiveConfig{
		SystemInstruction: m.promptBuilder.BuildLiveInstruction(req.ResumeText, req.JobDescription, req.Style, knowledge),
		Voice:             m.opts.Voice,
		Transcription:     m.opts.Transcription,
	})
	if err != nil {
		sink.Close()
		mic.Close()
		return nil, fmt.Errorf("failed to connect live session: %w", err)
	}

	if err := waitForOpen(ctx, transport, m.opts.OpenTimeout); err != nil {
		transport.Close()
		sink.Close()
		mic.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	session := &LiveSession{
		ID:         uuid.NewString(),
		mic:        mic,
		sink:       sink,
		transport:  transport,
		scheduler:  audio.NewScheduler(sink),
		framer:     audio.NewFramer(m.opts.FrameSize),
		outputRate: m.opts.OutputSampleRate,
		onEvent:    req.OnEvent,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	go session.run(runCtx)

	log.Printf("🎙️ Live session %s connected\n", session.ID)
	return session, nil
}

func waitForOpen(ctx context.Context, transport LiveTransport, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("%w: live session did not open within %s", ErrTransport, timeout)
		case ev, ok := <-transport.Events():
			if !ok {
				return fmt.Errorf("%w: %w before open", ErrTransport, ErrLiveClosed)
			}
			switch ev.Type {
			case EventOpen:
				return nil
			case EventError:
				return wrapTransport("open live session", eventErr(ev))
			case EventClose:
				return fmt.Errorf("%w: %w before open", ErrTransport, ErrLiveClosed)
			}
		}
	}
}

// eventErr never returns nil so an error event always ends the session.
func eventErr(ev LiveEvent) error {
	if ev.Err == nil {
		return ErrLiveClosed
	}
	return ev.Err
}

// LiveSession is one connected voice interview. It exclusively owns its
// microphone, sink and transport until teardown.
type LiveSession struct {
	ID string

	mic        Microphone
	sink       AudioSink
	transport  LiveTransport
	scheduler  *audio.Scheduler
	framer     *audio.Framer
	outputRate int
	onEvent    func(LiveEvent)

	cancel   context.CancelFunc
	done     chan struct{}
	teardown sync.Once
	err      error

	mu          sync.Mutex
	transcript  []models.Turn
	pendingRole models.TurnRole
	pendingText strings.Builder
}

func (s *LiveSession) run(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.captureLoop(gctx) })
	g.Go(func() error { return s.receiveLoop(gctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	s.release()
	s.err = err
	close(s.done)

	if err != nil && !errors.Is(err, ErrLiveClosed) {
		log.Printf("❌ Live session %s ended with error: %v\n", s.ID, err)
	} else {
		log.Printf("🔌 Live session %s closed\n", s.ID)
	}
}

// captureLoop streams every captured frame; there is no voice activity
// gating.
func (s *LiveSession) captureLoop(ctx context.Context) error {
	mimeType := audio.MIMEType(s.mic.SampleRate())
	for {
		samples, err := s.mic.ReadSamples(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("microphone read failed: %w", err)
		}

		for _, frame := range s.framer.Push(samples) {
			if err := s.transport.SendAudio(audio.Float32ToPCM16(frame), mimeType); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return wrapTransport("send audio", err)
			}
		}
	}
}

func (s *LiveSession) receiveLoop(ctx context.Context) error {
	events := s.transport.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return ErrLiveClosed
			}
			if err := s.handleEvent(ev); err != nil {
				return err
			}
			if s.onEvent != nil {
				s.onEvent(ev)
			}
		}
	}
}

func (s *LiveSession) handleEvent(ev LiveEvent) error {
	switch ev.Type {
	case EventAudio:
		rate := ev.SampleRate
		if rate <= 0 {
			rate = s.outputRate
		}
		buf, err := audio.DecodePCM16(ev.Audio, rate)
		if err != nil {
			log.Printf("⚠️  Dropping audio chunk on session %s: %v\n", s.ID, err)
			return nil
		}
		startAt := s.scheduler.Schedule(buf.Duration())
		if err := s.sink.Play(buf, startAt); err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}

	case EventInterrupted:
		s.sink.StopAll()
		s.scheduler.Reset()

	case EventTranscript:
		s.appendTranscript(ev.Role, ev.Text)

	case EventTurnComplete:
		s.flushTranscript()

	case EventError:
		return wrapTransport("live session", eventErr(ev))

	case EventClose:
		return ErrLiveClosed
	}
	return nil
}

func (s *LiveSession) appendTranscript(role models.TurnRole, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingText.Len() > 0 && role != s.pendingRole {
		s.flushLocked()
	}
	s.pendingRole = role
	s.pendingText.WriteString(text)
}

func (s *LiveSession) flushTranscript() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
}

func (s *LiveSession) flushLocked() {
	text := strings.TrimSpace(s.pendingText.String())
	s.pendingText.Reset()
	if text == "" {
		return
	}
	s.transcript = append(s.transcript, models.Turn{Role: s.pendingRole, Text: text})
}

// release stops playback, rewinds the cursor and closes every device and
// the transport. It runs once per session.
func (s *LiveSession) release() {
	s.teardown.Do(func() {
		s.sink.StopAll()
		s.scheduler.Reset()

		if err := s.mic.Close(); err != nil {
			log.Printf("⚠️  Failed to release microphone: %v\n", err)
		}
		if err := s.sink.Close(); err != nil {
			log.Printf("⚠️  Failed to close audio output: %v\n", err)
		}
		if err := s.transport.Close(); err != nil {
			log.Printf("⚠️  Failed to close live transport: %v\n", err)
		}

		s.flushTranscript()
	})
}

// Disconnect ends the session and waits for teardown. It is safe to call
// any number of times, including after a remote close.
func (s *LiveSession) Disconnect() {
	s.cancel()
	<-s.done
}

// Done is closed once teardown has finished.
func (s *LiveSession) Done() <-chan struct{} {
	return s.done
}

// Err is the reason the session ended: nil after Disconnect, ErrLiveClosed
// after a remote close, or the transport error. Valid after Done is closed.
func (s *LiveSession) Err() error {
	<-s.done
	return s.err
}

// Transcript returns the transcribed turns so far. It is empty unless
// transcription is enabled.
func (s *LiveSession) Transcript() []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Turn, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// PlaybackCursor is the earliest start time for the next buffer.
func (s *LiveSession) PlaybackCursor() float64 {
	return s.scheduler.Cursor()
}
