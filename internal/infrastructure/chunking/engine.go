package chunking

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/kirillkom/sop-rag/internal/core/domain"
)

const (
	// Word count scaled by this factor approximates subword tokenization.
	// Used for sizing only, not for exact LLM context accounting.
	tokenMultiplier = 1.3

	// Windows below this token count are dropped entirely.
	minViableTokens = 10

	// Chunks below this token count trigger a validation warning, non-fatal.
	warnTokenFloor = 5

	minCaptionChars = 3

	// Data rows per table chunk are derived from the configured chunk size.
	rowsPerChunkDivisor = 50
)

type Engine struct {
	chunkSize int
	overlap   int
}

func NewEngine(chunkSize, overlap int) *Engine {
	if chunkSize <= 0 {
		chunkSize = 512
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Engine{
		chunkSize: chunkSize,
		overlap:   overlap,
	}
}

// ChunkText slides a window of chunkSize whitespace tokens over the text with
// stride chunkSize-overlap. Inputs under the viable-token floor yield nothing.
func (e *Engine) ChunkText(text, documentID string, meta domain.ChunkMetadata) []domain.Chunk {
	words := strings.Fields(text)
	if len(words) < minViableTokens {
		return nil
	}

	step := e.chunkSize - e.overlap
	if step <= 0 {
		step = e.chunkSize
	}

	out := make([]domain.Chunk, 0, len(words)/step+1)
	for start := 0; start < len(words); start += step {
		end := start + e.chunkSize
		if end > len(words) {
			end = len(words)
		}
		window := words[start:end]
		if len(window) < minViableTokens {
			break
		}

		m := meta
		m.DocumentID = documentID
		m.StartToken = start
		m.EndToken = end
		out = append(out, e.newChunk(strings.Join(window, " "), domain.ChunkTypeText, documentID, len(out), m))

		if end == len(words) {
			break
		}
	}
	return out
}

// ChunkTable groups data rows under a repeated header row into pipe-delimited
// chunks. Tables with fewer than two rows produce no chunks.
func (e *Engine) ChunkTable(rows [][]string, documentID string, meta domain.ChunkMetadata) []domain.Chunk {
	if len(rows) < 2 {
		return nil
	}

	header := rows[0]
	data := rows[1:]
	perChunk := e.chunkSize / rowsPerChunkDivisor
	if perChunk < 1 {
		perChunk = 1
	}

	out := make([]domain.Chunk, 0, len(data)/perChunk+1)
	for from := 0; from < len(data); from += perChunk {
		to := from + perChunk
		if to > len(data) {
			to = len(data)
		}

		var b strings.Builder
		b.WriteString(strings.Join(header, " | "))
		for _, row := range data[from:to] {
			b.WriteString("\n")
			b.WriteString(strings.Join(row, " | "))
		}

		m := meta
		m.DocumentID = documentID
		m.RowFrom = from + 1
		m.RowTo = to
		out = append(out, e.newChunk(b.String(), domain.ChunkTypeTable, documentID, len(out), m))
	}
	return out
}

// ChunkImage wraps a generated caption as one atomic chunk. Captions shorter
// than three characters yield no chunk.
func (e *Engine) ChunkImage(caption, imageID string, meta domain.ChunkMetadata) (domain.Chunk, bool) {
	caption = strings.TrimSpace(caption)
	if len([]rune(caption)) < minCaptionChars {
		return domain.Chunk{}, false
	}
	return e.newChunk(caption, domain.ChunkTypeImage, imageID, 0, meta), true
}

// ChunkComposite wraps pre-merged mixed content as a single chunk tagged with
// its component inventory. Position is the composite's ordinal within the
// document, so its id encodes position like every other chunk type.
func (e *Engine) ChunkComposite(content string, components []string, documentID string, position int, meta domain.ChunkMetadata) []domain.Chunk {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	m := meta
	m.DocumentID = documentID
	m.Components = components
	return []domain.Chunk{e.newChunk(content, domain.ChunkTypeComposite, documentID, position, m)}
}

func (e *Engine) CountTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return int(math.Round(float64(words) * tokenMultiplier))
}

// ValidateChunkBoundaries rejects chunk sets with empty content or duplicate
// ids. Chunks under the warning floor are logged but accepted.
func (e *Engine) ValidateChunkBoundaries(chunks []domain.Chunk) bool {
	seen := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c.Content) == "" {
			return false
		}
		if _, dup := seen[c.ID]; dup {
			return false
		}
		seen[c.ID] = struct{}{}
		if c.TokenCount < warnTokenFloor {
			slog.Warn("chunk below token floor", "chunk_id", c.ID, "token_count", c.TokenCount)
		}
	}
	return true
}

func (e *Engine) newChunk(content string, chunkType domain.ChunkType, ownerID string, position int, meta domain.ChunkMetadata) domain.Chunk {
	return domain.Chunk{
		ID:         chunkID(ownerID, chunkType, position, content),
		Content:    content,
		Type:       chunkType,
		TokenCount: e.CountTokens(content),
		Metadata:   meta,
	}
}

func chunkID(ownerID string, chunkType domain.ChunkType, position int, content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%s_%s_%d_%s", ownerID, chunkType, position, hex.EncodeToString(sum[:6]))
}
