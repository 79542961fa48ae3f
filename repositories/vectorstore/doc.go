// Package vectorstore groups the repositories.VectorStore backends and the
// factory that selects one from configuration.
package vectorstore
