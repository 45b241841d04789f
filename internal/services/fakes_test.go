package services

import (
	"context"
	"sync"

	"alfredoptarigan/resume-coach/internal/config"
	"alfredoptarigan/resume-coach/internal/models"
)

func testGeminiConfig(apiKey string) config.GeminiConfig {
	return config.GeminiConfig{
		APIKey:     apiKey,
		Model:      "gemini-2.5-flash",
		LiveModel:  "gemini-live-2.5-flash-preview",
		EmbedModel: "text-embedding-004",
	}
}

type fakeGemini struct {
	mu sync.Mutex

	structuredResponse string
	structuredErr      error
	structuredCalls    []StructuredRequest

	textResponse string
	textErr      error
	textPrompts  []string

	embedding []float32
	embedErr  error

	chat         *fakeChat
	chatErr      error
	instructions []string

	transport LiveTransport
	liveErr   error
	liveCfgs  []LiveConfig
}

func (f *fakeGemini) GenerateStructured(_ context.Context, req StructuredRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.structuredCalls = append(f.structuredCalls, req)
	return f.structuredResponse, f.structuredErr
}

func (f *fakeGemini) GenerateText(_ context.Context, prompt string, _ float32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textPrompts = append(f.textPrompts, prompt)
	return f.textResponse, f.textErr
}

func (f *fakeGemini) GenerateEmbedding(context.Context, string) ([]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	if f.embedding == nil {
		return []float32{0.1, 0.2, 0.3}, nil
	}
	return f.embedding, nil
}

func (f *fakeGemini) StartChat(_ context.Context, instruction string) (ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instructions = append(f.instructions, instruction)
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	if f.chat == nil {
		f.chat = &fakeChat{}
	}
	return f.chat, nil
}

func (f *fakeGemini) ConnectLive(_ context.Context, cfg LiveConfig) (LiveTransport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.liveCfgs = append(f.liveCfgs, cfg)
	if f.liveErr != nil {
		return nil, f.liveErr
	}
	return f.transport, nil
}

// fakeChat echoes every message unless err is set.
type fakeChat struct {
	mu    sync.Mutex
	err   error
	sent  []string
	block chan struct{}
}

func (c *fakeChat) Send(ctx context.Context, text string) (string, error) {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	c.sent = append(c.sent, text)
	return "reply to " + text, nil
}

type fakeKnowledge struct {
	context string
	err     error
	queries []string
}

func (k *fakeKnowledge) Retrieve(_ context.Context, query string, _ int) (string, error) {
	k.queries = append(k.queries, query)
	return k.context, k.err
}

func (k *fakeKnowledge) Ingest(context.Context, string, string, string) (int, error) {
	return 0, nil
}

type fakeParser struct {
	pdfText string
	pdfErr  error
	docText string
	docErr  error
}

func (p *fakeParser) ExtractPDFText([]byte) (*PDFContent, error) {
	if p.pdfErr != nil {
		return nil, p.pdfErr
	}
	return &PDFContent{Text: p.pdfText, PageCount: 1}, nil
}

func (p *fakeParser) ExtractDocxText([]byte) (string, error) {
	return p.docText, p.docErr
}

func sampleBundle() *models.UserInputBundle {
	return &models.UserInputBundle{
		Name:           "Lin Mei",
		Email:          "mei@example.com",
		Phone:          "0912-345-678",
		TargetPosition: "Backend Engineer",
		Summary:        "five years of Go",
		Education:      "NTU CS",
		Experiences: []models.Experience{
			{Company: "Acme", Title: "Engineer", Period: "2020-2024", Content: "built APIs"},
		},
		Projects: []models.Project{
			{Title: `Realtime "Chat" Service`, URL: "https://example.com/chat", Description: "websocket chat"},
			{Title: "Billing Pipeline", Description: "kafka consumers"},
		},
	}
}

const validResumeJSON = `{
  "professionalTitle": "Backend Engineer | Go",
  "professionalSummary": "Builds reliable services.",
  "skills": ["Go", "PostgreSQL"],
  "experiences": [{"company": "Acme", "title": "Engineer", "period": "2020-2024", "highlights": ["Cut latency 40%"]}],
  "projects": [{"title": "Billing Pipeline", "role": "Lead", "techStack": ["Go", "Kafka"], "description": "Event-driven billing."}],
  "education": ["NTU CS"],
  "autobiography": "I grew up in Taipei.",
  "interviewTips": "Prepare STAR stories."
}`
