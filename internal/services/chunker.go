package services

import (
	"strings"
	"unicode/utf8"
)

type TextChunker interface {
	ChunkText(text string, maxChunkSize int, overlap int) []string
}

type textChunker struct{}

func NewTextChunker() TextChunker {
	return &textChunker{}
}

// ChunkText implements TextChunker. Sizes are in runes. Paragraphs are kept
// whole when they fit; longer ones are split on sentence boundaries, and each
// chunk after the first starts with the last overlap runes of its
// predecessor.
func (tc *textChunker) ChunkText(text string, maxChunkSize int, overlap int) []string {
	if maxChunkSize <= 0 {
		maxChunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxChunkSize {
		overlap = maxChunkSize / 4
	}

	var pieces []piece
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if utf8.RuneCountInString(para) <= maxChunkSize {
			pieces = append(pieces, piece{text: para, sep: "\n\n"})
			continue
		}
		for _, sentence := range splitIntoSentences(para) {
			pieces = append(pieces, piece{text: sentence, sep: " "})
		}
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func(nextSep string) {
		if currentLen == 0 {
			return
		}
		chunk := current.String()
		chunks = append(chunks, chunk)
		current.Reset()
		currentLen = 0
		if tail := lastRunes(chunk, overlap); tail != "" {
			current.WriteString(tail)
			current.WriteString(nextSep)
			currentLen = utf8.RuneCountInString(tail) + utf8.RuneCountInString(nextSep)
		}
	}

	for _, p := range pieces {
		pLen := utf8.RuneCountInString(p.text)
		sepLen := utf8.RuneCountInString(p.sep)

		if currentLen > 0 && currentLen+sepLen+pLen > maxChunkSize {
			// flush leaves either nothing or the overlap tail plus separator.
			flush(p.sep)
		} else if currentLen > 0 {
			current.WriteString(p.sep)
			currentLen += sepLen
		}

		current.WriteString(p.text)
		currentLen += pLen
	}

	if currentLen > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

type piece struct {
	text string
	sep  string
}

// splitIntoSentences splits after ., ! and ? and their full-width forms,
// keeping the terminator.
func splitIntoSentences(text string) []string {
	var result []string
	var sb strings.Builder
	for _, r := range text {
		sb.WriteRune(r)
		switch r {
		case '.', '!', '?', '。', '！', '？':
			if s := strings.TrimSpace(sb.String()); s != "" {
				result = append(result, s)
			}
			sb.Reset()
		}
	}
	if s := strings.TrimSpace(sb.String()); s != "" {
		result = append(result, s)
	}
	return result
}

func lastRunes(text string, n int) string {
	if n <= 0 {
		return ""
	}

	runes := []rune(text)
	if len(runes) <= n {
		return text
	}

	return string(runes[len(runes)-n:])
}
