// Package ingestion turns documents on disk into embedded chunks in the
// chunk store.
//
// A Chunker cuts each document into overlapping windows, preferring to end
// a window after a sentence when one is close to the hard limit. The
// Indexer embeds every chunk through the configured ai.Embedder, writes the
// chunks under IDs derived from (path, index) and increments the index
// metrics once per document.
//
// # Usage
//
//	indexer, err := ingestion.NewIndexer(chunkRepo, metricsRepo, provider)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer indexer.Release()
//
//	doc := indexer.IndexFile(ctx, "docs/deploy.md", core.Metadata{"team": "ops"})
//	if !doc.Success {
//	    log.Printf("index failed: %s", doc.Error())
//	}
//
//	dir := indexer.IndexDirectory(ctx, "docs", nil)
//	fmt.Println(dir.Summary.Succeeded, dir.Summary.Failed, dir.Summary.Skipped)
//
// # Failure Isolation
//
// IndexFile and IndexDirectory never return errors. Failures are carried
// in DocumentResult.Err and DirectoryResult.Err and wrap the sentinels in
// package core, so callers can test them with errors.Is.
package ingestion
