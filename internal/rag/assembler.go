package rag

import (
	"fmt"
	"strings"
)

// passageSeparator sits between numbered passages in the context block.
const passageSeparator = "\n\n"

// Assemble joins the usable passages of result into a numbered context block,
// keeping result order. Documents without a "text" or "content" field are
// skipped. The boolean is false when nothing usable remains.
func Assemble(result *RetrievalResult) (GroundedContext, bool) {
	if result.Len() == 0 {
		return GroundedContext{}, false
	}

	passages := make([]Passage, 0, len(result.Documents))
	for _, doc := range result.Documents {
		text := doc.Text()
		if text == "" {
			continue
		}
		passages = append(passages, Passage{
			Index:      len(passages) + 1,
			DocumentID: doc.ID,
			Source:     doc.Source(),
			Score:      doc.Score,
			Text:       text,
		})
	}

	if len(passages) == 0 {
		return GroundedContext{}, false
	}

	blocks := make([]string, 0, len(passages))
	for _, p := range passages {
		blocks = append(blocks, fmt.Sprintf("[%d] %s", p.Index, p.Text))
	}

	return GroundedContext{
		Text:     strings.Join(blocks, passageSeparator),
		Passages: passages,
	}, true
}
