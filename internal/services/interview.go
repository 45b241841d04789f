package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"alfredoptarigan/resume-coach/internal/models"
)

const (
	FeedbackUnavailable   = "Sorry, feedback could not be generated right now. Please try again later."
	VoiceSessionCompleted = "Interview completed. Thank you for practicing! A detailed report is not available for this voice session."
	NoAnswersToReview     = "The interview ended before any answers were given, so there is nothing to review yet."
)

type SessionState string

const (
	StateUninitialized SessionState = "uninitialized"
	StateActive        SessionState = "active"
	StateEnded         SessionState = "ended"
)

type InterviewService interface {
	StartSession(ctx context.Context, resumeText, jobDescription string, style models.InterviewStyle) (*InterviewSession, error)
	SendMessage(ctx context.Context, sessionID, text string) (string, error)
	GetSession(sessionID string) (*InterviewSession, error)
	EndSession(sessionID string) (*InterviewSession, []models.Turn, error)
	GenerateFeedback(ctx context.Context, transcript []models.Turn, jobDescription string) string
	Start(ctx context.Context)
	Stop()
}

// InterviewSession owns one chat and its transcript. At most one send is in
// flight at a time.
type InterviewSession struct {
	ID             string
	Style          models.InterviewStyle
	JobDescription string
	ResumeText     string

	chat     ChatSession
	sendSlot chan struct{}

	mu         sync.Mutex
	state      SessionState
	transcript []models.Turn
	lastActive time.Time
	endedAt    time.Time
}

func (s *InterviewSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns a copy of the turns so far.
func (s *InterviewSession) Transcript() []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Turn, len(s.transcript))
	copy(out, s.transcript)
	return out
}

type interviewService struct {
	geminiService GeminiService
	knowledge     KnowledgeBase
	promptBuilder *PromptBuilder

	sessionTTL    time.Duration
	idleTimeout   time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	mu       sync.Mutex
	sessions map[string]*InterviewSession

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

type InterviewOptions struct {
	SessionTTL    time.Duration
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

func NewInterviewService(
	geminiService GeminiService,
	knowledge KnowledgeBase,
	promptBuilder *PromptBuilder,
	opts InterviewOptions,
) InterviewService {
	if knowledge == nil {
		knowledge = NewNoopKnowledgeBase()
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	return &interviewService{
		geminiService: geminiService,
		knowledge:     knowledge,
		promptBuilder: promptBuilder,
		sessionTTL:    opts.SessionTTL,
		idleTimeout:   opts.IdleTimeout,
		sweepInterval: opts.SweepInterval,
		now:           time.Now,
		sessions:      make(map[string]*InterviewSession),
		stopChan:      make(chan struct{}),
	}
}

// StartSession implements InterviewService. No greeting is produced.
func (i *interviewService) StartSession(ctx context.Context, resumeText, jobDescription string, style models.InterviewStyle) (*InterviewSession, error) {
	session := &InterviewSession{
		ID:             uuid.NewString(),
		Style:          style,
		JobDescription: jobDescription,
		ResumeText:     resumeText,
		sendSlot:       make(chan struct{}, 1),
		state:          StateUninitialized,
	}

	knowledge := i.retrieveKnowledge(ctx, jobDescription)
	instruction := i.promptBuilder.BuildInterviewInstruction(resumeText, jobDescription, style, knowledge)

	chat, err := i.geminiService.StartChat(ctx, instruction)
	if err != nil {
		return nil, fmt.Errorf("failed to start interview: %w", err)
	}

	session.chat = chat
	session.state = StateActive
	session.lastActive = i.now()

	i.mu.Lock()
	i.sessions[session.ID] = session
	i.mu.Unlock()

	log.Printf("🎤 Interview session %s started (%s)\n", session.ID, style)
	return session, nil
}

// SendMessage implements InterviewService. The user and model turns are
// appended together only when the round trip succeeds.
func (i *interviewService) SendMessage(ctx context.Context, sessionID, text string) (string, error) {
	session, err := i.lookup(sessionID)
	if err != nil {
		return "", err
	}

	select {
	case session.sendSlot <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-session.sendSlot }()

	if session.State() != StateActive {
		return "", ErrSessionEnded
	}

	reply, err := session.chat.Send(ctx, text)
	if err != nil {
		return "", err
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	if session.state != StateActive {
		return "", ErrSessionEnded
	}
	session.transcript = append(session.transcript,
		models.Turn{Role: models.RoleUser, Text: text},
		models.Turn{Role: models.RoleModel, Text: reply},
	)
	session.lastActive = i.now()

	return reply, nil
}

// GetSession implements InterviewService.
func (i *interviewService) GetSession(sessionID string) (*InterviewSession, error) {
	return i.lookup(sessionID)
}

// EndSession implements InterviewService. Ending again returns the same
// transcript until the sweeper evicts the ended session after SessionTTL;
// after that the session is gone and ErrSessionNotFound is returned.
func (i *interviewService) EndSession(sessionID string) (*InterviewSession, []models.Turn, error) {
	session, err := i.lookup(sessionID)
	if err != nil {
		return nil, nil, err
	}

	session.mu.Lock()
	if session.state != StateEnded {
		session.state = StateEnded
		session.endedAt = i.now()
		log.Printf("🏁 Interview session %s ended with %d turns\n", sessionID, len(session.transcript))
	}
	session.mu.Unlock()

	return session, session.Transcript(), nil
}

// GenerateFeedback implements InterviewService. It never fails; errors are
// logged and replaced by a fallback message. Voice callers pick their own
// message for an empty transcript.
func (i *interviewService) GenerateFeedback(ctx context.Context, transcript []models.Turn, jobDescription string) string {
	if len(transcript) == 0 {
		return NoAnswersToReview
	}

	knowledge := i.retrieveKnowledge(ctx, jobDescription)
	prompt := i.promptBuilder.BuildFeedbackPrompt(transcript, jobDescription, knowledge)

	feedback, err := i.geminiService.GenerateText(ctx, prompt, 0.4)
	if err != nil {
		log.Printf("❌ Failed to generate interview feedback: %v\n", err)
		return FeedbackUnavailable
	}

	return strings.TrimSpace(feedback)
}

// Start runs the janitor that evicts ended and idle sessions.
func (i *interviewService) Start(ctx context.Context) {
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		ticker := time.NewTicker(i.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-i.stopChan:
				return
			case <-ticker.C:
				if n := i.sweep(); n > 0 {
					log.Printf("🧹 Evicted %d interview sessions\n", n)
				}
			}
		}
	}()
}

func (i *interviewService) Stop() {
	i.stopOnce.Do(func() { close(i.stopChan) })
	i.wg.Wait()
}

func (i *interviewService) sweep() int {
	now := i.now()

	i.mu.Lock()
	defer i.mu.Unlock()

	evicted := 0
	for id, s := range i.sessions {
		s.mu.Lock()
		expired := (s.state == StateEnded && now.Sub(s.endedAt) >= i.sessionTTL) ||
			(i.idleTimeout > 0 && s.state == StateActive && now.Sub(s.lastActive) >= i.idleTimeout)
		s.mu.Unlock()

		if expired {
			delete(i.sessions, id)
			evicted++
		}
	}
	return evicted
}

func (i *interviewService) lookup(sessionID string) (*InterviewSession, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	session, ok := i.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (i *interviewService) retrieveKnowledge(ctx context.Context, jobDescription string) string {
	if jobDescription == "" {
		return ""
	}
	knowledge, err := i.knowledge.Retrieve(ctx, i.promptBuilder.BuildRetrievalQuery(jobDescription), 3)
	if err != nil {
		log.Printf("⚠️  Failed to retrieve interview knowledge: %v\n", err)
		return ""
	}
	return knowledge
}
