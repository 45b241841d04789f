package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"alfredoptarigan/resume-coach/internal/audio"
	"alfredoptarigan/resume-coach/internal/models"
	"alfredoptarigan/resume-coach/internal/services"
)

const startMessageTimeout = 30 * time.Second

// liveClientMessage is a text frame from the browser. Microphone audio
// arrives separately as binary frames of float32 LE samples.
type liveClientMessage struct {
	Type              string `json:"type"`
	ResumeText        string `json:"resumeText"`
	JobDescription    string `json:"jobDescription"`
	Style             string `json:"style"`
	SampleRate        int    `json:"sampleRate"`
	MicrophoneGranted *bool  `json:"microphoneGranted"`
}

type liveServerMessage struct {
	Type       string        `json:"type"`
	SessionID  string        `json:"sessionId,omitempty"`
	StartAt    *float64      `json:"startAt,omitempty"`
	SampleRate int           `json:"sampleRate,omitempty"`
	Data       string        `json:"data,omitempty"`
	Role       string        `json:"role,omitempty"`
	Text       string        `json:"text,omitempty"`
	Feedback   string        `json:"feedback,omitempty"`
	Transcript []models.Turn `json:"transcript,omitempty"`
	Error      string        `json:"error,omitempty"`
	Code       string        `json:"code,omitempty"`
}

type messageWriter interface {
	WriteJSON(v interface{}) error
}

type LiveHandler struct {
	manager          *services.LiveSessionManager
	interviewService services.InterviewService
	inputSampleRate  int
}

func NewLiveHandler(
	manager *services.LiveSessionManager,
	interviewService services.InterviewService,
	inputSampleRate int,
) *LiveHandler {
	return &LiveHandler{
		manager:          manager,
		interviewService: interviewService,
		inputSampleRate:  inputSampleRate,
	}
}

// HandleLive bridges one browser socket to one live voice session. The
// browser is the microphone and the speakers.
func (h *LiveHandler) HandleLive(conn *websocket.Conn) {
	out := &socketWriter{conn: conn}
	defer conn.Close()

	start, err := readStartMessage(conn)
	if err != nil {
		sendError(out, err)
		return
	}

	rate := start.SampleRate
	if rate <= 0 {
		rate = h.inputSampleRate
	}
	devices := &socketDevices{
		mic:     newSocketMicrophone(rate),
		sink:    newSocketSink(out),
		granted: start.MicrophoneGranted == nil || *start.MicrophoneGranted,
	}

	ctx := context.Background()
	session, err := h.manager.Connect(ctx, devices, services.LiveSessionRequest{
		ResumeText:     start.ResumeText,
		JobDescription: start.JobDescription,
		Style:          models.ParseInterviewStyle(start.Style),
		OnEvent:        forwardEvent(out),
	})
	if err != nil {
		log.Printf("❌ Failed to start live session: %v\n", err)
		sendError(out, err)
		return
	}

	if err := out.WriteJSON(liveServerMessage{Type: "open", SessionID: session.ID}); err != nil {
		session.Disconnect()
		return
	}

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		pumpInput(conn, devices.mic, session)
	}()

	<-session.Done()
	if err := session.Err(); err != nil && !errors.Is(err, services.ErrLiveClosed) {
		sendError(out, err)
	}

	transcript := session.Transcript()
	feedback := voiceFeedback(ctx, h.interviewService, transcript, start.JobDescription)
	if err := out.WriteJSON(liveServerMessage{
		Type:       "closed",
		SessionID:  session.ID,
		Feedback:   feedback,
		Transcript: transcript,
	}); err != nil {
		log.Printf("⚠️  Failed to send live session summary: %v\n", err)
	}

	conn.Close()
	<-pumpDone
}

// voiceFeedback reviews a voice transcript. Without transcription the
// transcript is empty and the session gets the generic completion message.
func voiceFeedback(ctx context.Context, svc services.InterviewService, transcript []models.Turn, jobDescription string) string {
	if len(transcript) == 0 {
		return services.VoiceSessionCompleted
	}
	return svc.GenerateFeedback(ctx, transcript, jobDescription)
}

func readStartMessage(conn *websocket.Conn) (*liveClientMessage, error) {
	if err := conn.SetReadDeadline(time.Now().Add(startMessageTimeout)); err != nil {
		return nil, err
	}
	defer conn.SetReadDeadline(time.Time{})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("failed to read start message: %w", err)
		}
		if mt != websocket.TextMessage {
			continue
		}
		return parseStartMessage(data)
	}
}

func parseStartMessage(data []byte) (*liveClientMessage, error) {
	var msg liveClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid start message: %w", err)
	}
	if msg.Type != "start" {
		return nil, fmt.Errorf("expected start message, got %q", msg.Type)
	}
	return &msg, nil
}

// pumpInput feeds binary frames to the microphone until the socket closes
// or the browser asks to stop.
func pumpInput(conn *websocket.Conn, mic *socketMicrophone, session *services.LiveSession) {
	defer session.Disconnect()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			if !mic.push(audio.BytesToFloat32(data)) {
				return
			}
		case websocket.TextMessage:
			var msg liveClientMessage
			if err := json.Unmarshal(data, &msg); err == nil && msg.Type == "stop" {
				return
			}
		}
	}
}

func forwardEvent(out messageWriter) func(services.LiveEvent) {
	return func(ev services.LiveEvent) {
		var msg liveServerMessage
		switch ev.Type {
		case services.EventTranscript:
			msg = liveServerMessage{Type: "transcript", Role: string(ev.Role), Text: ev.Text}
		case services.EventTurnComplete:
			msg = liveServerMessage{Type: "turnComplete"}
		default:
			return
		}
		if err := out.WriteJSON(msg); err != nil {
			log.Printf("⚠️  Failed to forward %s event: %v\n", ev.Type, err)
		}
	}
}

func sendError(out messageWriter, err error) {
	_, code := StatusFor(err)
	if werr := out.WriteJSON(liveServerMessage{Type: "error", Error: err.Error(), Code: code}); werr != nil {
		log.Printf("⚠️  Failed to send error to client: %v\n", werr)
	}
}

// socketWriter serializes writes; the session goroutines and the handler
// share one connection.
type socketWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *socketWriter) WriteJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

type socketDevices struct {
	mic     *socketMicrophone
	sink    *socketSink
	granted bool
}

func (d *socketDevices) OpenMicrophone(context.Context) (services.Microphone, error) {
	if !d.granted {
		return nil, services.ErrMicrophoneDenied
	}
	return d.mic, nil
}

func (d *socketDevices) OpenSink(context.Context, int) (services.AudioSink, error) {
	return d.sink, nil
}

type socketMicrophone struct {
	rate      int
	frames    chan []float32
	closed    chan struct{}
	closeOnce sync.Once
}

func newSocketMicrophone(rate int) *socketMicrophone {
	return &socketMicrophone{
		rate:   rate,
		frames: make(chan []float32, 32),
		closed: make(chan struct{}),
	}
}

func (m *socketMicrophone) SampleRate() int {
	return m.rate
}

func (m *socketMicrophone) ReadSamples(ctx context.Context) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.closed:
		return nil, io.EOF
	case samples := <-m.frames:
		return samples, nil
	}
}

func (m *socketMicrophone) push(samples []float32) bool {
	select {
	case m.frames <- samples:
		return true
	case <-m.closed:
		return false
	}
}

func (m *socketMicrophone) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

// socketSink plays audio by sending it to the browser with its start time
// on the sink clock, which counts seconds since the sink opened.
type socketSink struct {
	out     messageWriter
	started time.Time
	now     func() time.Time

	mu     sync.Mutex
	closed bool
}

func newSocketSink(out messageWriter) *socketSink {
	return &socketSink{
		out:     out,
		started: time.Now(),
		now:     time.Now,
	}
}

func (s *socketSink) CurrentTime() float64 {
	return s.now().Sub(s.started).Seconds()
}

func (s *socketSink) Play(buf audio.Buffer, startAt float64) error {
	if s.isClosed() {
		return services.ErrLiveClosed
	}
	return s.out.WriteJSON(liveServerMessage{
		Type:       "audio",
		StartAt:    &startAt,
		SampleRate: buf.SampleRate,
		Data:       audio.EncodeBase64(audio.Float32ToBytes(buf.Samples)),
	})
}

func (s *socketSink) StopAll() {
	if s.isClosed() {
		return
	}
	if err := s.out.WriteJSON(liveServerMessage{Type: "stop"}); err != nil {
		log.Printf("⚠️  Failed to send stop to client: %v\n", err)
	}
}

func (s *socketSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *socketSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
