package rag

import (
	"fmt"
	"strconv"
	"strings"
)

// TopK is the number of passages retrieved for every question.
const TopK = 3

// Metadata keys read from vector store matches.
const (
	MetadataText    = "text"
	MetadataContent = "content"
	MetadataSource  = "source"
)

// UserData carries optional biometric details used to personalize answers.
// A nil *UserData means the caller sent nothing.
type UserData struct {
	Age                *int     `json:"age,omitempty" validate:"omitempty,gt=0,lte=150"`
	Weight             *float64 `json:"weight,omitempty" validate:"omitempty,gt=0"`
	Height             *float64 `json:"height,omitempty" validate:"omitempty,gt=0"`
	Gender             *string  `json:"gender,omitempty" validate:"omitempty,max=64"`
	ActivityLevel      *string  `json:"activity_level,omitempty" validate:"omitempty,max=64"`
	Goal               *string  `json:"goal,omitempty" validate:"omitempty,max=256"`
	DietaryPreferences *string  `json:"dietary_preferences,omitempty" validate:"omitempty,max=512"`
}

// Lines renders the populated fields, one per line, in a fixed order.
func (u *UserData) Lines() []string {
	if u == nil {
		return nil
	}

	var lines []string
	if u.Age != nil {
		lines = append(lines, fmt.Sprintf("Età: %d anni", *u.Age))
	}
	if u.Weight != nil {
		lines = append(lines, fmt.Sprintf("Peso: %s kg", formatNumber(*u.Weight)))
	}
	if u.Height != nil {
		lines = append(lines, fmt.Sprintf("Altezza: %s cm", formatNumber(*u.Height)))
	}
	if s := trimmed(u.Gender); s != "" {
		lines = append(lines, "Genere: "+s)
	}
	if s := trimmed(u.ActivityLevel); s != "" {
		lines = append(lines, "Livello di attività: "+s)
	}
	if s := trimmed(u.Goal); s != "" {
		lines = append(lines, "Obiettivo: "+s)
	}
	if s := trimmed(u.DietaryPreferences); s != "" {
		lines = append(lines, "Preferenze alimentari/allergie: "+s)
	}
	return lines
}

// IsEmpty reports whether no field is populated.
func (u *UserData) IsEmpty() bool {
	return len(u.Lines()) == 0
}

// Summary is a single-line rendering of the populated fields.
func (u *UserData) Summary() string {
	return strings.Join(u.Lines(), "; ")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// Document is a single vector store match.
type Document struct {
	ID       string
	Score    float64
	Metadata map[string]interface{}
}

// Text returns the passage text, preferring the "text" metadata field over
// "content". Returns "" when neither holds a non-blank string.
func (d Document) Text() string {
	if s := metadataString(d.Metadata, MetadataText); s != "" {
		return s
	}
	return metadataString(d.Metadata, MetadataContent)
}

// Source returns the "source" metadata field when present.
func (d Document) Source() string {
	return metadataString(d.Metadata, MetadataSource)
}

func metadataString(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// RetrievalResult is the ordered output of a nearest-neighbour query,
// highest score first. It may be empty.
type RetrievalResult struct {
	Documents []Document
}

// Len returns the number of documents, tolerating a nil receiver.
func (r *RetrievalResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Documents)
}

// IDs returns the document ids in result order.
func (r *RetrievalResult) IDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.Documents))
	for _, d := range r.Documents {
		ids = append(ids, d.ID)
	}
	return ids
}

// Passage is one usable document inside a GroundedContext.
type Passage struct {
	Index      int
	DocumentID string
	Source     string
	Score      float64
	Text       string
}

// GroundedContext is the delimited evidence block handed to the generator.
type GroundedContext struct {
	Text     string
	Passages []Passage
}

// Answer is the generated response.
type Answer struct {
	Text         string
	Model        string
	Provider     string
	PromptTokens int
	OutputTokens int
}
