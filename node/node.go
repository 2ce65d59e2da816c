// Package node defines the canonical unit of data flowing through the
// indexing pipeline: a chunk of text with metadata, lineage, and optional
// dense/sparse embeddings.
package node

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Metadata is an ordered string -> JSON-value mapping. Iteration order is
// insertion order and is observable in embedding assembly (AsEmbeddables).
type Metadata = *orderedmap.OrderedMap[string, any]

// NewMetadata returns an empty, ready-to-use Metadata map.
func NewMetadata() Metadata {
	return orderedmap.New[string, any]()
}

// SparseVector is a sparse vector encoded as parallel index/value arrays.
// Indices must be strictly nondecreasing and len(Indices) == len(Values).
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// Node is the canonical unit of data produced by a loader, optionally split
// by a chunker, transformed by stages, and finally persisted.
//
// Node is immutable by convention: stages receive ownership of a Node,
// produce a new or mutated Node, and pass it downstream. Nothing outside
// this package recomputes or overwrites the identifier.
type Node struct {
	// OriginPath is the opaque path (filesystem path or similar) the chunk
	// was produced from.
	OriginPath string
	// Chunk is the UTF-8 text content of this node.
	Chunk string
	// ParentID is set when this node was produced by a chunker splitting a
	// parent node. HasParent reports whether ParentID is meaningful; when it
	// is false the node has no parent, whatever ParentID holds.
	ParentID  uint64
	HasParent bool

	Metadata Metadata

	// Dense holds dense embeddings keyed by the field they were computed
	// from. Nil until a stage embeds the node.
	Dense map[Field][]float32
	// Sparse holds sparse embeddings keyed by the field they were computed
	// from. Nil until a stage sparse-embeds the node.
	Sparse map[Field]SparseVector

	EmbedMode EmbedMode

	// OriginalSize is the byte length of the chunk at construction time.
	OriginalSize int
	// Offset is the byte offset of this chunk within its origin.
	Offset int
}

// New creates a Node from a chunk of text. OriginalSize is filled from the
// chunk length; metadata starts empty; embed mode defaults to
// EmbedModeSingleWithMetadata.
func New(chunk string) *Node {
	return &Node{
		Chunk:        chunk,
		OriginalSize: len(chunk),
		Metadata:     NewMetadata(),
		EmbedMode:    EmbedModeSingleWithMetadata,
	}
}

// ID returns the stable identifier for this node, derived deterministically
// from (OriginPath, Chunk). It is recomputed on every call, never stored
// durably from outside the package, so it is stable across clones and runs.
func (n *Node) ID() uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(n.OriginPath))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(n.Chunk))
	return h.Sum64()
}

// SetParent marks n as a chunker-produced child of parentID. It is a
// pipeline-fatal invariant violation for parentID to equal n.ID(); callers
// (chunker stage adapters) must not call SetParent with the node's own id.
func (n *Node) SetParent(parentID uint64) {
	n.ParentID = parentID
	n.HasParent = true
}

// renderValue renders a metadata value as its embedding-time string form:
// raw if it is already a string, JSON-encoded otherwise.
func renderValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func (n *Node) combineChunkWithMetadata() string {
	var lines []string
	for pair := n.Metadata.Oldest(); pair != nil; pair = pair.Next() {
		lines = append(lines, fmt.Sprintf("%s: %s", pair.Key, renderValue(pair.Value)))
	}
	lines = append(lines, n.Chunk)
	return strings.Join(lines, "\n")
}

// Embeddable is one (field, text) pair produced by AsEmbeddables.
type Embeddable struct {
	Field Field
	Text  string
}

// AsEmbeddables computes the ordered sequence of (Field, text) pairs to
// embed for this node, according to EmbedMode. The result is pure and
// deterministic given (Chunk, Metadata, EmbedMode):
//
//   - SingleWithMetadata: one Combined entry — metadata rendered as
//     "key: value" lines (insertion order) followed by the chunk.
//   - PerField: a Chunk entry, then one Metadata(name) entry per metadata
//     key in insertion order.
//   - Both: the Combined entry first, then the PerField entries.
func (n *Node) AsEmbeddables() []Embeddable {
	var out []Embeddable

	if n.EmbedMode == EmbedModeSingleWithMetadata || n.EmbedMode == EmbedModeBoth {
		out = append(out, Embeddable{Field: FieldCombined, Text: n.combineChunkWithMetadata()})
	}

	if n.EmbedMode == EmbedModePerField || n.EmbedMode == EmbedModeBoth {
		out = append(out, Embeddable{Field: FieldChunk, Text: n.Chunk})
		for pair := n.Metadata.Oldest(); pair != nil; pair = pair.Next() {
			out = append(out, Embeddable{Field: FieldMetadata(pair.Key), Text: renderValue(pair.Value)})
		}
	}

	return out
}

// Clone returns a deep-enough copy of n: metadata and vector maps are
// copied, the chunk and origin strings are shared (Go strings are
// immutable, so sharing is safe).
func (n *Node) Clone() *Node {
	c := *n
	c.Metadata = NewMetadata()
	for pair := n.Metadata.Oldest(); pair != nil; pair = pair.Next() {
		c.Metadata.Set(pair.Key, pair.Value)
	}
	if n.Dense != nil {
		c.Dense = make(map[Field][]float32, len(n.Dense))
		for f, v := range n.Dense {
			cp := make([]float32, len(v))
			copy(cp, v)
			c.Dense[f] = cp
		}
	}
	if n.Sparse != nil {
		c.Sparse = make(map[Field]SparseVector, len(n.Sparse))
		for f, v := range n.Sparse {
			idx := make([]uint32, len(v.Indices))
			copy(idx, v.Indices)
			val := make([]float32, len(v.Values))
			copy(val, v.Values)
			c.Sparse[f] = SparseVector{Indices: idx, Values: val}
		}
	}
	return &c
}
