// Package rag holds the value types that flow through the question answering
// pipeline and the context assembly step.
//
// Everything here is constructed per request and is safe to share read-only
// between goroutines. Remote collaborators (embedding models, vector stores,
// chat models) live in the services and repositories packages.
package rag
