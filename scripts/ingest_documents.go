package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"

	"alfredoptarigan/resume-coach/internal/config"
	"alfredoptarigan/resume-coach/internal/services"
)

func main() {
	log.Println("🚀 Starting knowledge base ingestion...")

	cfg := config.Load()
	ctx := context.Background()

	geminiService, err := services.NewGeminiService(ctx, cfg.Gemini)
	if err != nil {
		log.Fatalf("❌ Failed to initialize Gemini: %v", err)
	}

	qdrantService, err := services.NewQdrantService(
		cfg.Qdrant.URL,
		cfg.Qdrant.APIKey,
		cfg.Qdrant.Collection,
	)
	if err != nil {
		log.Fatalf("❌ Failed to initialize Qdrant: %v", err)
	}
	defer qdrantService.Close()

	if err := qdrantService.InitCollection(ctx); err != nil {
		log.Fatalf("❌ Failed to initialize collection: %v", err)
	}

	parser := services.NewDocumentParser()
	knowledge := services.NewKnowledgeBase(geminiService, qdrantService, services.NewTextChunker())

	documents := []struct {
		Path    string
		DocType string
		Name    string
	}{
		{
			Path:    "./reference_docs/behavioral_interview_guide.md",
			DocType: services.DocTypeInterviewGuide,
			Name:    "Behavioral Interview Guide",
		},
		{
			Path:    "./reference_docs/technical_interview_guide.pdf",
			DocType: services.DocTypeInterviewGuide,
			Name:    "Technical Interview Guide",
		},
		{
			Path:    "./reference_docs/interview_feedback_rubric.pdf",
			DocType: services.DocTypeFeedbackRubric,
			Name:    "Interview Feedback Rubric",
		},
		{
			Path:    "./reference_docs/star_answer_rubric.docx",
			DocType: services.DocTypeFeedbackRubric,
			Name:    "STAR Answer Rubric",
		},
	}

	successCount := 0
	failCount := 0

	for _, doc := range documents {
		log.Printf("\n📄 Processing: %s", doc.Name)
		log.Printf("   Path: %s", doc.Path)
		log.Printf("   Type: %s", doc.DocType)

		data, err := os.ReadFile(doc.Path)
		if err != nil {
			if os.IsNotExist(err) {
				log.Printf("   ⚠️  File not found, skipping...")
			} else {
				log.Printf("   ❌ Failed to read file: %v", err)
			}
			failCount++
			continue
		}

		log.Printf("   📖 Extracting text...")
		text, err := extractText(parser, doc.Path, data)
		if err != nil {
			log.Printf("   ❌ Failed to extract text: %v", err)
			failCount++
			continue
		}
		if strings.TrimSpace(text) == "" {
			log.Printf("   ❌ No text could be extracted")
			failCount++
			continue
		}
		log.Printf("   ✅ Extracted %d characters", len(text))

		count, err := knowledge.Ingest(ctx, filepath.Base(doc.Path), doc.DocType, text)
		if err != nil {
			log.Printf("   ❌ Failed to ingest: %v", err)
			failCount++
			continue
		}

		log.Printf("   ✅ Stored %d chunks for %s", count, doc.Name)
		successCount++
	}

	log.Println("\n" + strings.Repeat("=", 60))
	log.Printf("📊 Ingestion Summary:")
	log.Printf("   ✅ Successful: %d documents", successCount)
	log.Printf("   ❌ Failed: %d documents", failCount)
	log.Println(strings.Repeat("=", 60))

	if failCount > 0 {
		log.Println("⚠️  Some documents failed to ingest. Please check the logs above.")
		os.Exit(1)
	}

	log.Println("✅ All documents ingested successfully!")
}

func extractText(parser services.DocumentParser, path string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		content, err := parser.ExtractPDFText(data)
		if err != nil {
			return "", err
		}
		return content.Text, nil
	case ".docx":
		return parser.ExtractDocxText(data)
	default:
		return string(data), nil
	}
}
