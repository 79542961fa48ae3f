package query

import (
	"github.com/longevity/longevity-backend/internal/rag"
	"github.com/longevity/longevity-backend/services"
)

// State is a step of the question answering pipeline
type State string

const (
	StateReceived        State = "received"
	StateEmbedding       State = "embedding"
	StateRetrieving      State = "retrieving"
	StateAssembling      State = "assembling"
	StateGenerating      State = "generating"
	StateCompleted       State = "completed"
	StateNoEvidenceFound State = "no_evidence_found"
	StateFailed          State = "failed"
)

// IsTerminal reports whether no further transition can follow s
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateNoEvidenceFound || s == StateFailed
}

// Request is one question to answer
type Request struct {
	Question  string
	UserData  *rag.UserData
	RequestID string
}

// Result is the outcome of Handle. Answer is set only when State is
// StateCompleted; FailureKind only when State is StateFailed.
type Result struct {
	RequestID   string
	State       State
	Answer      rag.Answer
	Sources     []rag.Passage
	FailureKind services.ErrorType
}

// Answered reports whether the pipeline produced an answer
func (r *Result) Answered() bool {
	return r != nil && r.State == StateCompleted
}
