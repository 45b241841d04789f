package services

import (
	"context"
	"fmt"
	"log"
)

// KnowledgeBase retrieves interview guides and rubrics relevant to a query.
type KnowledgeBase interface {
	Retrieve(ctx context.Context, query string, limit int) (string, error)
	Ingest(ctx context.Context, source, docType, text string) (int, error)
}

type knowledgeBase struct {
	geminiService GeminiService
	qdrantService QdrantService
	chunker       TextChunker
}

func NewKnowledgeBase(geminiService GeminiService, qdrantService QdrantService, chunker TextChunker) KnowledgeBase {
	return &knowledgeBase{
		geminiService: geminiService,
		qdrantService: qdrantService,
		chunker:       chunker,
	}
}

// Retrieve implements KnowledgeBase. Guides and rubrics are searched
// separately so one type cannot crowd out the other.
func (k *knowledgeBase) Retrieve(ctx context.Context, query string, limit int) (string, error) {
	embedding, err := k.geminiService.GenerateEmbedding(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to generate query embedding: %w", err)
	}

	var allResults []SearchResult
	for _, docType := range []string{DocTypeInterviewGuide, DocTypeFeedbackRubric} {
		results, err := k.qdrantService.SearchSimilar(ctx, embedding, docType, limit)
		if err != nil {
			log.Printf("⚠️  Failed to search for %s: %v\n", docType, err)
			continue
		}
		allResults = append(allResults, results...)
	}

	return FormatRAGContext(allResults), nil
}

// Ingest implements KnowledgeBase. It replaces any earlier version of source
// and returns the number of stored chunks.
func (k *knowledgeBase) Ingest(ctx context.Context, source, docType, text string) (int, error) {
	chunks := k.chunker.ChunkText(text, 1000, 200)
	if len(chunks) == 0 {
		return 0, nil
	}

	if err := k.qdrantService.DeleteSource(ctx, source); err != nil {
		return 0, err
	}

	embedded := make([]EmbeddedChunk, 0, len(chunks))
	for i, chunk := range chunks {
		embedding, err := k.geminiService.GenerateEmbedding(ctx, chunk)
		if err != nil {
			return 0, fmt.Errorf("failed to embed chunk %d of %s: %w", i, source, err)
		}
		embedded = append(embedded, EmbeddedChunk{Index: i, Text: chunk, Embedding: embedding})
	}

	if err := k.qdrantService.UpsertChunks(ctx, source, docType, embedded); err != nil {
		return 0, err
	}

	return len(embedded), nil
}

type noopKnowledgeBase struct{}

// NewNoopKnowledgeBase is used when no vector store is configured.
func NewNoopKnowledgeBase() KnowledgeBase {
	return noopKnowledgeBase{}
}

func (noopKnowledgeBase) Retrieve(context.Context, string, int) (string, error) {
	return "", nil
}

func (noopKnowledgeBase) Ingest(context.Context, string, string, string) (int, error) {
	return 0, fmt.Errorf("knowledge base is not configured")
}
