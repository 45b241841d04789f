package services

import (
	"context"
	"fmt"
	"log"

	"google.golang.org/genai"

	"alfredoptarigan/resume-coach/internal/config"
	"alfredoptarigan/resume-coach/internal/models"
)

type GeminiService interface {
	GenerateStructured(ctx context.Context, req StructuredRequest) (string, error)
	GenerateText(ctx context.Context, prompt string, temperature float32) (string, error)
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	StartChat(ctx context.Context, systemInstruction string) (ChatSession, error)
	ConnectLive(ctx context.Context, cfg LiveConfig) (LiveTransport, error)
}

// StructuredRequest is one schema-constrained generation. Images are sent
// before the prompt text.
type StructuredRequest struct {
	SystemInstruction string
	Prompt            string
	Images            []models.FilePart
	Schema            *genai.Schema
	Temperature       float32
}

// ChatSession is one stateful conversation with the model. Send returns the
// model's reply to text.
type ChatSession interface {
	Send(ctx context.Context, text string) (string, error)
}

type geminiService struct {
	client     *genai.Client
	modelName  string
	liveModel  string
	embedModel string
}

// NewGeminiService builds the client. A missing API key is not an error
// here: every call fails with ErrMissingAPIKey instead so the server can
// still boot.
func NewGeminiService(ctx context.Context, cfg config.GeminiConfig) (GeminiService, error) {
	svc := &geminiService{
		modelName:  cfg.Model,
		liveModel:  cfg.LiveModel,
		embedModel: cfg.EmbedModel,
	}

	if cfg.APIKey == "" {
		log.Println("⚠️  GEMINI_API_KEY is not set, generation endpoints will fail")
		return svc, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	svc.client = client

	return svc, nil
}

func (g *geminiService) ready() error {
	if g.client == nil {
		return ErrMissingAPIKey
	}
	return nil
}

// GenerateStructured implements GeminiService.
func (g *geminiService) GenerateStructured(ctx context.Context, req StructuredRequest) (string, error) {
	if err := g.ready(); err != nil {
		return "", err
	}

	parts := make([]*genai.Part, 0, len(req.Images)+1)
	for _, img := range req.Images {
		parts = append(parts, genai.NewPartFromBytes(img.Bytes, img.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   req.Schema,
	}
	if req.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if req.Temperature > 0 {
		config.Temperature = &req.Temperature
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, config)
	if err != nil {
		log.Printf("❌ Gemini API error: %v\n", err)
		return "", wrapTransport("generate structured content", err)
	}

	if resp == nil {
		return "", fmt.Errorf("%w: empty response", ErrParse)
	}

	return resp.Text(), nil
}

// GenerateText implements GeminiService.
func (g *geminiService) GenerateText(ctx context.Context, prompt string, temperature float32) (string, error) {
	if err := g.ready(); err != nil {
		return "", err
	}

	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: 4096,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, genai.Text(prompt), config)
	if err != nil {
		log.Printf("❌ Gemini API error: %v\n", err)
		return "", wrapTransport("generate text", err)
	}

	if resp == nil {
		return "", fmt.Errorf("%w: empty response", ErrParse)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: no text content in response", ErrParse)
	}

	return text, nil
}

// GenerateEmbedding implements GeminiService.
func (g *geminiService) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := g.ready(); err != nil {
		return nil, err
	}

	// Keep well under the embedding model's input limit.
	if len(text) > 40000 {
		text = text[:40000]
	}

	result, err := g.client.Models.EmbedContent(ctx, g.embedModel, genai.Text(text), nil)
	if err != nil {
		return nil, wrapTransport("generate embedding", err)
	}

	if result == nil || len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: empty embedding result", ErrParse)
	}

	return result.Embeddings[0].Values, nil
}

// StartChat implements GeminiService. No request is made until the first
// Send.
func (g *geminiService) StartChat(ctx context.Context, systemInstruction string) (ChatSession, error) {
	if err := g.ready(); err != nil {
		return nil, err
	}

	chat, err := g.client.Chats.Create(ctx, g.modelName, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}

	return &geminiChat{chat: chat}, nil
}

type geminiChat struct {
	chat *genai.Chat
}

// Send implements ChatSession.
func (c *geminiChat) Send(ctx context.Context, text string) (string, error) {
	resp, err := c.chat.SendMessage(ctx, genai.Part{Text: text})
	if err != nil {
		return "", wrapTransport("send chat message", err)
	}

	reply := resp.Text()
	if reply == "" {
		return "", fmt.Errorf("%w: empty chat reply", ErrParse)
	}

	return reply, nil
}
