package domain

type ChunkType string

const (
	ChunkTypeText      ChunkType = "text"
	ChunkTypeImage     ChunkType = "image"
	ChunkTypeTable     ChunkType = "table"
	ChunkTypeComposite ChunkType = "composite"
)

// Vector index collection names, one per content modality.
const (
	CollectionText      = "text_chunks"
	CollectionImage     = "image_chunks"
	CollectionTable     = "table_chunks"
	CollectionComposite = "composite_chunks"
)

func AllCollections() []string {
	return []string{CollectionText, CollectionImage, CollectionTable, CollectionComposite}
}

func CollectionFor(t ChunkType) string {
	switch t {
	case ChunkTypeImage:
		return CollectionImage
	case ChunkTypeTable:
		return CollectionTable
	case ChunkTypeComposite:
		return CollectionComposite
	default:
		return CollectionText
	}
}

// ChunkMetadata carries provenance for a chunk. Named fields instead of an
// open map so shape mismatches surface at compile time.
type ChunkMetadata struct {
	DocumentID string   `json:"document_id"`
	SourceFile string   `json:"source_file,omitempty"`
	Page       int      `json:"page,omitempty"`
	StartToken int      `json:"start_token,omitempty"`
	EndToken   int      `json:"end_token,omitempty"`
	RowFrom    int      `json:"row_from,omitempty"`
	RowTo      int      `json:"row_to,omitempty"`
	Components []string `json:"components,omitempty"`
}

// Chunk is an addressable unit of retrievable content. For images Content is
// the generated caption. IDs are derived deterministically from document id,
// position and a content hash, so re-processing the same input reproduces the
// same ids.
type Chunk struct {
	ID         string        `json:"id"`
	Content    string        `json:"content"`
	Type       ChunkType     `json:"type"`
	TokenCount int           `json:"token_count"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// EmbeddedChunk pairs a chunk with its embedding vector for indexing.
type EmbeddedChunk struct {
	Chunk  Chunk
	Vector []float32
}
