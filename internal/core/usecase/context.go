package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/sop-rag/internal/core/domain"
)

const defaultSystemPrompt = "You are an assistant answering questions about standard operating procedures. " +
	"Answer only from the numbered sources below and cite them as [Source N]. " +
	"If the sources do not contain the answer, say so."

// assembleContext renders results into numbered source blocks within a
// character budget. Chunks are included whole; assembly stops at the first
// block that would overflow. Returns the context text and how many results
// made it in.
func assembleContext(results []domain.RetrievedResult, budget int) (string, int) {
	var builder strings.Builder
	used := 0

	for i, result := range results {
		block := fmt.Sprintf("[Source %d: %s]\n%s", i+1, sourceName(result.Chunk), result.Chunk.Content)
		cost := len(block)
		if used > 0 {
			cost += 2
		}
		if builder.Len()+cost > budget {
			break
		}
		if used > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(block)
		used++
	}
	return builder.String(), used
}

// buildCitations produces 1-based citations matching the [Source N] markers
// of the assembled context.
func buildCitations(results []domain.RetrievedResult, used int) []domain.Citation {
	citations := make([]domain.Citation, 0, used)
	for i := 0; i < used && i < len(results); i++ {
		chunk := results[i].Chunk
		citations = append(citations, domain.Citation{
			Index:          i + 1,
			Source:         sourceName(chunk),
			Page:           chunk.Metadata.Page,
			ContentPreview: preview(chunk.Content, 180),
		})
	}
	return citations
}

func buildAnswerPrompt(systemPrompt, contextText, query string) string {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}
	return fmt.Sprintf("%s\n\nSources:\n%s\n\nQuestion: %s\n\nAnswer:", systemPrompt, contextText, query)
}

func sourceName(chunk domain.Chunk) string {
	if chunk.Metadata.SourceFile != "" {
		return chunk.Metadata.SourceFile
	}
	return chunk.Metadata.DocumentID
}

func preview(content string, limit int) string {
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit]) + "…"
}
