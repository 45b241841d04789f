package services

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"alfredoptarigan/resume-coach/internal/models"
)

const (
	mimePDF          = "application/pdf"
	mimeDocx         = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	defaultImageMIME = "image/jpeg"
)

type IngestionService interface {
	Ingest(blob models.FileBlob) models.FilePart
}

type ingestionService struct {
	parser DocumentParser
}

func NewIngestionService(parser DocumentParser) IngestionService {
	return &ingestionService{parser: parser}
}

// Ingest implements IngestionService. It never fails: unreadable input
// becomes a text part holding a marker so the rest of the bundle still goes
// through.
func (s *ingestionService) Ingest(blob models.FileBlob) models.FilePart {
	mimeType := resolveMIMEType(blob)

	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return models.FilePart{
			Kind:     models.PartImage,
			Name:     blob.Name,
			MIMEType: mimeType,
			Bytes:    blob.Data,
		}

	case isTextFile(mimeType, blob.Name):
		content := string(blob.Data)
		if !utf8.ValidString(content) {
			content = strings.ToValidUTF8(content, "�")
		}
		return textPart(blob.Name, mimeType, content)

	case mimeType == mimePDF:
		pdfContent, err := s.parser.ExtractPDFText(blob.Data)
		if err != nil {
			log.Printf("⚠️  Failed to read PDF %s: %v\n", blob.Name, err)
			return textPart(blob.Name, mimeType, fmt.Sprintf("[Error reading PDF: %s]", blob.Name))
		}
		return textPart(blob.Name, mimeType, pdfContent.Text)

	case mimeType == mimeDocx:
		text, err := s.parser.ExtractDocxText(blob.Data)
		if err != nil {
			log.Printf("⚠️  Failed to read DOCX %s: %v\n", blob.Name, err)
			return textPart(blob.Name, mimeType, fmt.Sprintf("[Error reading document: %s]", blob.Name))
		}
		return textPart(blob.Name, mimeType, text)

	default:
		return textPart(blob.Name, mimeType, fmt.Sprintf("[Unsupported attachment: %s (%s)]", blob.Name, mimeType))
	}
}

func textPart(name, mimeType, content string) models.FilePart {
	return models.FilePart{
		Kind:     models.PartText,
		Name:     name,
		MIMEType: mimeType,
		Content:  content,
	}
}

// resolveMIMEType trusts the declared type unless it is missing or generic,
// in which case the content is sniffed and the extension consulted.
func resolveMIMEType(blob models.FileBlob) string {
	declared := normalizeMIME(blob.MIMEType)
	if declared != "" && declared != "application/octet-stream" && declared != "application/zip" {
		return declared
	}

	switch strings.ToLower(filepath.Ext(blob.Name)) {
	case ".pdf":
		return mimePDF
	case ".docx":
		return mimeDocx
	case ".md":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	}

	if len(blob.Data) > 0 {
		detected := mimetype.Detect(blob.Data)
		if detected.Is(mimePDF) || detected.Is(mimeDocx) {
			return normalizeMIME(detected.String())
		}
		if strings.HasPrefix(detected.String(), "image/") || strings.HasPrefix(detected.String(), "text/") {
			return normalizeMIME(detected.String())
		}
	}

	if looksLikeImageName(blob.Name) {
		return defaultImageMIME
	}

	if declared == "" {
		return "application/octet-stream"
	}
	return declared
}

func normalizeMIME(mimeType string) string {
	return strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
}

func isTextFile(mimeType, name string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".md" || ext == ".txt"
}

func looksLikeImageName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".heic":
		return true
	}
	return false
}
