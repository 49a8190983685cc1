// Package reembed migrates a chunk store to a new embedding model.
//
// A Reembedder walks every chunk in batches, embeds the batch contents
// with one call under exponential-backoff retry, tags each chunk with the
// provider's model and writes it back in place. With OnlyStale set, chunks
// already embedded by the active model are left untouched, so an
// interrupted pass can be resumed.
package reembed
