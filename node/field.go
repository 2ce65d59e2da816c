package node

import "fmt"

// EmbedMode controls which slices of a Node are produced by AsEmbeddables.
type EmbedMode int

const (
	// EmbedModeSingleWithMetadata embeds the chunk combined with its metadata
	// as a single Combined field. This is the default.
	EmbedModeSingleWithMetadata EmbedMode = iota
	// EmbedModePerField embeds the chunk and each metadata entry separately.
	EmbedModePerField
	// EmbedModeBoth embeds both the Combined field and the PerField entries.
	EmbedModeBoth
)

// Field identifies which logical slice of a Node an embedding was computed
// from. It is a tagged sum: Combined, Chunk, or Metadata(name).
type Field struct {
	kind kind
	name string
}

type kind int

const (
	kindCombined kind = iota
	kindChunk
	kindMetadata
)

// FieldCombined is the field produced by combining metadata and chunk.
var FieldCombined = Field{kind: kindCombined}

// FieldChunk is the field produced from the chunk text alone.
var FieldChunk = Field{kind: kindChunk}

// FieldMetadata returns the field for a single metadata entry.
func FieldMetadata(name string) Field {
	return Field{kind: kindMetadata, name: name}
}

// String renders the field the way it is stored as a vector/payload key.
func (f Field) String() string {
	switch f.kind {
	case kindCombined:
		return "Combined"
	case kindChunk:
		return "Chunk"
	case kindMetadata:
		return fmt.Sprintf("Metadata: %s", f.name)
	default:
		return "Unknown"
	}
}

// SparseName returns the name under which a sparse embedding for this field
// is stored: the rendered name suffixed with "_sparse".
func (f Field) SparseName() string {
	return f.String() + "_sparse"
}
