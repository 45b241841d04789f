package services

import (
	"context"
	"log"
	"strings"
	"sync"

	"google.golang.org/genai"

	"alfredoptarigan/resume-coach/internal/audio"
	"alfredoptarigan/resume-coach/internal/models"
)

const defaultLiveOutputRate = 24000

// ConnectLive implements GeminiService.
func (g *geminiService) ConnectLive(ctx context.Context, cfg LiveConfig) (LiveTransport, error) {
	if err := g.ready(); err != nil {
		return nil, err
	}

	connectConfig := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SystemInstruction:  genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser),
	}
	if cfg.Voice != "" {
		connectConfig.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.Transcription {
		connectConfig.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
		connectConfig.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}

	session, err := g.client.Live.Connect(ctx, g.liveModel, connectConfig)
	if err != nil {
		return nil, wrapTransport("connect live session", err)
	}

	t := &genaiLiveTransport{
		session: session,
		events:  make(chan LiveEvent, 64),
		closed:  make(chan struct{}),
	}
	go t.readLoop()

	return t, nil
}

type genaiLiveTransport struct {
	session *genai.Session
	events  chan LiveEvent

	sendMu    sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

func (t *genaiLiveTransport) Events() <-chan LiveEvent {
	return t.events
}

// SendAudio implements LiveTransport. The SDK base64-encodes the payload
// on the wire.
func (t *genaiLiveTransport) SendAudio(pcm []byte, mimeType string) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	select {
	case <-t.closed:
		return ErrLiveClosed
	default:
	}

	return t.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: pcm, MIMEType: mimeType},
	})
}

func (t *genaiLiveTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.session.Close()
	})
	return err
}

func (t *genaiLiveTransport) readLoop() {
	defer close(t.events)

	for {
		msg, err := t.session.Receive()
		if err != nil {
			select {
			case <-t.closed:
				t.emit(LiveEvent{Type: EventClose})
			default:
				t.emit(LiveEvent{Type: EventError, Err: err})
			}
			return
		}

		for _, ev := range translateServerMessage(msg) {
			if !t.emit(ev) {
				return
			}
		}
	}
}

func (t *genaiLiveTransport) emit(ev LiveEvent) bool {
	select {
	case t.events <- ev:
		return true
	case <-t.closed:
		return false
	}
}

// translateServerMessage maps one server message to zero or more events in
// the order they must be handled.
func translateServerMessage(msg *genai.LiveServerMessage) []LiveEvent {
	var events []LiveEvent

	if msg.SetupComplete != nil {
		events = append(events, LiveEvent{Type: EventOpen})
	}

	if msg.GoAway != nil {
		log.Printf("⚠️  Live server sent go-away, time left: %v\n", msg.GoAway.TimeLeft)
	}

	content := msg.ServerContent
	if content == nil {
		return events
	}

	if content.Interrupted {
		events = append(events, LiveEvent{Type: EventInterrupted})
	}

	if content.InputTranscription != nil && content.InputTranscription.Text != "" {
		events = append(events, LiveEvent{
			Type: EventTranscript,
			Role: models.RoleUser,
			Text: content.InputTranscription.Text,
		})
	}

	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part == nil || part.InlineData == nil {
				continue
			}
			if !strings.HasPrefix(part.InlineData.MIMEType, "audio/") {
				continue
			}
			events = append(events, LiveEvent{
				Type:       EventAudio,
				Audio:      part.InlineData.Data,
				SampleRate: audio.ParseRate(part.InlineData.MIMEType, defaultLiveOutputRate),
			})
		}
	}

	if content.OutputTranscription != nil && content.OutputTranscription.Text != "" {
		events = append(events, LiveEvent{
			Type: EventTranscript,
			Role: models.RoleModel,
			Text: content.OutputTranscription.Text,
		})
	}

	if content.TurnComplete {
		events = append(events, LiveEvent{Type: EventTurnComplete})
	}

	return events
}
