package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/resume-coach/internal/audio"
	"alfredoptarigan/resume-coach/internal/models"
)

type fakeTransport struct {
	events chan LiveEvent

	mu         sync.Mutex
	sent       [][]byte
	mimeTypes  []string
	closeCount int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan LiveEvent, 16)}
}

func (t *fakeTransport) Events() <-chan LiveEvent { return t.events }

func (t *fakeTransport) SendAudio(pcm []byte, mimeType string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, pcm)
	t.mimeTypes = append(t.mimeTypes, mimeType)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeCount++
	return nil
}

func (t *fakeTransport) closes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeCount
}

type fakeMic struct {
	rate    int
	samples chan []float32

	mu         sync.Mutex
	closeCount int
}

func newFakeMic() *fakeMic {
	return &fakeMic{rate: 16000, samples: make(chan []float32, 16)}
}

func (m *fakeMic) SampleRate() int { return m.rate }

func (m *fakeMic) ReadSamples(ctx context.Context) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case s := <-m.samples:
		return s, nil
	}
}

func (m *fakeMic) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCount++
	return nil
}

func (m *fakeMic) closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCount
}

type scheduledBuffer struct {
	startAt  float64
	duration float64
}

type fakeSink struct {
	mu         sync.Mutex
	now        float64
	played     []scheduledBuffer
	stopCount  int
	closeCount int
}

func (s *fakeSink) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *fakeSink) setTime(t float64) {
	s.mu.Lock()
	s.now = t
	s.mu.Unlock()
}

func (s *fakeSink) Play(buf audio.Buffer, startAt float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = append(s.played, scheduledBuffer{startAt: startAt, duration: buf.Duration()})
	return nil
}

func (s *fakeSink) StopAll() {
	s.mu.Lock()
	s.stopCount++
	s.mu.Unlock()
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	s.closeCount++
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) snapshot() []scheduledBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]scheduledBuffer, len(s.played))
	copy(out, s.played)
	return out
}

type fakeDevices struct {
	mic       *fakeMic
	sink      *fakeSink
	micErr    error
	sinkOpens int
}

func (d *fakeDevices) OpenMicrophone(context.Context) (Microphone, error) {
	if d.micErr != nil {
		return nil, d.micErr
	}
	return d.mic, nil
}

func (d *fakeDevices) OpenSink(context.Context, int) (AudioSink, error) {
	d.sinkOpens++
	return d.sink, nil
}

type liveFixture struct {
	gemini    *fakeGemini
	transport *fakeTransport
	devices   *fakeDevices
	manager   *LiveSessionManager
}

func newLiveFixture(opts LiveOptions) *liveFixture {
	transport := newFakeTransport()
	gemini := &fakeGemini{transport: transport}
	return &liveFixture{
		gemini:    gemini,
		transport: transport,
		devices:   &fakeDevices{mic: newFakeMic(), sink: &fakeSink{}},
		manager:   NewLiveSessionManager(gemini, nil, NewPromptBuilder("English"), opts),
	}
}

func (f *liveFixture) connect(t *testing.T) *LiveSession {
	t.Helper()
	f.transport.events <- LiveEvent{Type: EventOpen}
	session, err := f.manager.Connect(context.Background(), f.devices, LiveSessionRequest{
		ResumeText:     "resume",
		JobDescription: "Go developer",
		Style:          models.StyleFriendly,
	})
	require.NoError(t, err)
	return session
}

// pcmOfDuration returns silent PCM16 lasting seconds at 24 kHz.
func pcmOfDuration(seconds float64) []byte {
	return make([]byte, int(seconds*24000)*2)
}

func TestLiveSchedulesAudioBackToBack(t *testing.T) {
	f := newLiveFixture(LiveOptions{})
	session := f.connect(t)
	defer session.Disconnect()

	for i := 0; i < 3; i++ {
		f.transport.events <- LiveEvent{Type: EventAudio, Audio: pcmOfDuration(0.5), SampleRate: 24000}
	}
	require.Eventually(t, func() bool { return len(f.devices.sink.snapshot()) == 3 }, time.Second, time.Millisecond)

	played := f.devices.sink.snapshot()
	assert.InDelta(t, 0.0, played[0].startAt, 1e-9)
	for i := 1; i < len(played); i++ {
		assert.GreaterOrEqual(t, played[i].startAt, played[i-1].startAt+played[i-1].duration-1e-9)
		assert.InDelta(t, played[i-1].startAt+played[i-1].duration, played[i].startAt, 1e-9)
	}
	assert.InDelta(t, 1.5, session.PlaybackCursor(), 1e-9)

	// Once the clock passes the cursor, playback starts at the clock.
	f.devices.sink.setTime(5)
	f.transport.events <- LiveEvent{Type: EventAudio, Audio: pcmOfDuration(0.25), SampleRate: 24000}
	require.Eventually(t, func() bool { return len(f.devices.sink.snapshot()) == 4 }, time.Second, time.Millisecond)
	assert.InDelta(t, 5.0, f.devices.sink.snapshot()[3].startAt, 1e-9)
}

func TestLiveSendsFixedPCMFrames(t *testing.T) {
	f := newLiveFixture(LiveOptions{FrameSize: 4096})
	session := f.connect(t)
	defer session.Disconnect()

	f.devices.mic.samples <- make([]float32, 2000)
	f.devices.mic.samples <- make([]float32, 2096)
	f.devices.mic.samples <- make([]float32, 100)

	require.Eventually(t, func() bool {
		f.transport.mu.Lock()
		defer f.transport.mu.Unlock()
		return len(f.transport.sent) == 1
	}, time.Second, time.Millisecond)

	f.transport.mu.Lock()
	defer f.transport.mu.Unlock()
	assert.Len(t, f.transport.sent[0], 4096*2)
	assert.Equal(t, "audio/pcm;rate=16000", f.transport.mimeTypes[0])
}

func TestLiveDoubleDisconnectReleasesOnce(t *testing.T) {
	f := newLiveFixture(LiveOptions{})
	session := f.connect(t)

	session.Disconnect()
	session.Disconnect()

	assert.Equal(t, 1, f.devices.mic.closes())
	assert.Equal(t, 1, f.transport.closes())
	assert.Equal(t, 1, f.devices.sink.closeCount)
	assert.NoError(t, session.Err())
	assert.Zero(t, session.PlaybackCursor())
}

func TestLiveRemoteCloseTearsDown(t *testing.T) {
	f := newLiveFixture(LiveOptions{})
	session := f.connect(t)

	f.transport.events <- LiveEvent{Type: EventAudio, Audio: pcmOfDuration(1), SampleRate: 24000}
	f.transport.events <- LiveEvent{Type: EventClose}

	select {
	case <-session.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not end after remote close")
	}

	assert.ErrorIs(t, session.Err(), ErrLiveClosed)
	assert.Equal(t, 1, f.devices.mic.closes())
	assert.Zero(t, session.PlaybackCursor())

	// A late hangup after the remote close is harmless.
	session.Disconnect()
	assert.Equal(t, 1, f.devices.mic.closes())
}

func TestLiveTransportErrorTearsDown(t *testing.T) {
	f := newLiveFixture(LiveOptions{})
	session := f.connect(t)

	f.transport.events <- LiveEvent{Type: EventError, Err: errors.New("socket reset")}
	<-session.Done()

	assert.ErrorIs(t, session.Err(), ErrTransport)
	assert.Equal(t, 1, f.devices.mic.closes())
	assert.Equal(t, 1, f.transport.closes())
}

func TestLiveErrorEventWithoutCauseTearsDown(t *testing.T) {
	f := newLiveFixture(LiveOptions{})
	session := f.connect(t)

	f.transport.events <- LiveEvent{Type: EventError}
	<-session.Done()

	assert.ErrorIs(t, session.Err(), ErrTransport)
	assert.ErrorIs(t, session.Err(), ErrLiveClosed)
	assert.Equal(t, 1, f.devices.mic.closes())
	assert.Equal(t, 1, f.transport.closes())
}

func TestLiveInterruptedResetsCursor(t *testing.T) {
	f := newLiveFixture(LiveOptions{})
	session := f.connect(t)
	defer session.Disconnect()

	f.transport.events <- LiveEvent{Type: EventAudio, Audio: pcmOfDuration(1), SampleRate: 24000}
	require.Eventually(t, func() bool { return session.PlaybackCursor() > 0 }, time.Second, time.Millisecond)

	f.transport.events <- LiveEvent{Type: EventInterrupted}
	require.Eventually(t, func() bool { return session.PlaybackCursor() == 0 }, time.Second, time.Millisecond)

	f.devices.sink.mu.Lock()
	defer f.devices.sink.mu.Unlock()
	assert.Equal(t, 1, f.devices.sink.stopCount)
}

func TestLiveCollectsTranscript(t *testing.T) {
	f := newLiveFixture(LiveOptions{Transcription: true})
	session := f.connect(t)

	f.transport.events <- LiveEvent{Type: EventTranscript, Role: models.RoleUser, Text: "Hel"}
	f.transport.events <- LiveEvent{Type: EventTranscript, Role: models.RoleUser, Text: "lo"}
	f.transport.events <- LiveEvent{Type: EventTranscript, Role: models.RoleModel, Text: "Welcome."}
	f.transport.events <- LiveEvent{Type: EventTurnComplete}
	require.Eventually(t, func() bool { return len(session.Transcript()) == 2 }, time.Second, time.Millisecond)

	session.Disconnect()

	assert.Equal(t, []models.Turn{
		{Role: models.RoleUser, Text: "Hello"},
		{Role: models.RoleModel, Text: "Welcome."},
	}, session.Transcript())
	require.Len(t, f.gemini.liveCfgs, 1)
	assert.True(t, f.gemini.liveCfgs[0].Transcription)
	assert.Contains(t, f.gemini.liveCfgs[0].SystemInstruction, "Go developer")
}

func TestLiveMicrophoneDeniedAcquiresNothing(t *testing.T) {
	f := newLiveFixture(LiveOptions{})
	f.devices.micErr = ErrMicrophoneDenied

	_, err := f.manager.Connect(context.Background(), f.devices, LiveSessionRequest{})

	assert.ErrorIs(t, err, ErrMicrophoneDenied)
	assert.Zero(t, f.devices.sinkOpens)
	assert.Empty(t, f.gemini.liveCfgs)
}

func TestLiveDialFailureReleasesDevices(t *testing.T) {
	f := newLiveFixture(LiveOptions{})
	f.gemini.liveErr = ErrMissingAPIKey

	_, err := f.manager.Connect(context.Background(), f.devices, LiveSessionRequest{})

	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Equal(t, 1, f.devices.mic.closes())
	assert.Equal(t, 1, f.devices.sink.closeCount)
}

func TestLiveErrorBeforeOpenReleasesEverything(t *testing.T) {
	f := newLiveFixture(LiveOptions{})
	f.transport.events <- LiveEvent{Type: EventError, Err: errors.New("invalid api key")}

	_, err := f.manager.Connect(context.Background(), f.devices, LiveSessionRequest{})

	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, 1, f.transport.closes())
	assert.Equal(t, 1, f.devices.mic.closes())
	assert.Equal(t, 1, f.devices.sink.closeCount)
}

func TestLiveErrorEventWithoutCauseBeforeOpen(t *testing.T) {
	f := newLiveFixture(LiveOptions{})
	f.transport.events <- LiveEvent{Type: EventError}

	session, err := f.manager.Connect(context.Background(), f.devices, LiveSessionRequest{})

	assert.Nil(t, session)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, 1, f.transport.closes())
	assert.Equal(t, 1, f.devices.mic.closes())
}

func TestLiveOpenTimeout(t *testing.T) {
	f := newLiveFixture(LiveOptions{OpenTimeout: 20 * time.Millisecond})

	_, err := f.manager.Connect(context.Background(), f.devices, LiveSessionRequest{})

	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, 1, f.transport.closes())
}
