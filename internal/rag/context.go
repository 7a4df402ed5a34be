package rag

import (
	"sort"
	"strings"
)

// DocumentContext is the reassembled text of a single source document within
// a retrieval result. Metadata is taken from the first retrieved chunk of the
// document, which is sufficient for per-document attribution by callers.
type DocumentContext struct {
	// Metadata is the metadata of the document's first-seen chunk.
	Metadata ChunkMetadata

	// Text is the document's retrieved chunks joined with newlines, in
	// ascending ChunkIndex order.
	Text string
}

// GroupByDocument groups retrieved chunks by DocumentID and restores the
// original in-document order within each group.
//
// Group order is the first-seen order of DocumentID values in the input —
// retrieval already ranked documents by their best-matching chunk, so groups
// are deliberately not re-sorted. Within a group, chunks are sorted stably
// by ascending ChunkIndex; chunks missing an index carry the zero value and
// therefore sort first.
func GroupByDocument(chunks []Chunk) []DocumentContext {
	if len(chunks) == 0 {
		return nil
	}

	order := make([]string, 0, len(chunks))
	groups := make(map[string][]Chunk, len(chunks))

	for _, c := range chunks {
		id := c.Metadata.DocumentID
		if _, seen := groups[id]; !seen {
			order = append(order, id)
		}
		groups[id] = append(groups[id], c)
	}

	out := make([]DocumentContext, 0, len(order))
	for _, id := range order {
		group := groups[id]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Metadata.ChunkIndex < group[j].Metadata.ChunkIndex
		})

		texts := make([]string, len(group))
		for i, c := range group {
			texts[i] = c.Text
		}

		out = append(out, DocumentContext{
			Metadata: group[0].Metadata,
			Text:     strings.Join(texts, "\n"),
		})
	}

	return out
}

// BuildContext assembles retrieved chunks into a single context string for
// prompt injection. Chunks of the same document are concatenated in ascending
// ChunkIndex order; distinct documents are separated by a blank line.
// Empty input yields an empty string — there are no failure modes.
func BuildContext(chunks []Chunk) string {
	docs := GroupByDocument(chunks)
	if len(docs) == 0 {
		return ""
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	return strings.Join(texts, "\n\n")
}
