// Package mock provides test double implementations of AI service interfaces.
//
// MockEmbedder and MockProvider let tests run without an embedding service
// and give controlled, deterministic vectors.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	mockProvider := mock.NewMockProvider()
//	vec, err := mockProvider.Embedder().EmbedText(ctx, "test")
//
//	// Fixed vectors for chosen texts
//	mockEmbedder := mock.NewMockEmbedder().WithVectors(map[string][]float32{
//	    "deploy": {1, 0},
//	})
//
//	// Check call counts
//	count := mockEmbedder.CallCount()
//
// # Default Behavior
//
// MockEmbedder returns unit-length vectors of DefaultDimensions derived
// from an FNV hash of the text. MockProvider reports DefaultModel.
package mock
