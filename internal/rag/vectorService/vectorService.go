package vectorService

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/akolanti/ProposalAPI/internal/config"
	"github.com/akolanti/ProposalAPI/internal/data/blobStore"
	"github.com/akolanti/ProposalAPI/internal/data/store"
	"github.com/akolanti/ProposalAPI/internal/domain/commonModels"
	"github.com/akolanti/ProposalAPI/internal/domain/jobModel"
	"github.com/akolanti/ProposalAPI/internal/metrics"
	"github.com/akolanti/ProposalAPI/internal/rag/embedding"
	"github.com/akolanti/ProposalAPI/internal/rag/ingest"
	"github.com/akolanti/ProposalAPI/internal/rag/vectorDB"
	"github.com/akolanti/ProposalAPI/internal/rag/vectorKey"
	"github.com/akolanti/ProposalAPI/pkg/logger_i"
	"golang.org/x/time/rate"
)

// Service is what the stage handlers and the upload path see. Only Embed returns
// errors; every other operation logs and degrades to false or an empty result so a
// failed vectorization never blocks the caller.
type Service interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Insert(ctx context.Context, index, jobID, text string, meta commonModels.ChunkMetadata) bool
	Query(ctx context.Context, index, text string, topK int, filter Filter) []commonModels.ChunkMatch
	ReconstructByJob(ctx context.Context, jobID, index string, maxDocs int) []commonModels.Document
	SearchAndReconstruct(ctx context.Context, query string, topK int, index string) []commonModels.Document
	DeleteByJob(ctx context.Context, jobID string) bool
	DeleteByDocumentName(ctx context.Context, name, index, jobID string) bool
	IngestDocument(ctx context.Context, index, jobID, filename string, blob []byte, attrs [3]string) (int, error)
}

// Filter narrows a query. Empty fields match anything.
type Filter struct {
	JobID        string
	DocumentName string
	Attrs        [3]string
}

type Options struct {
	ChunkSize         int
	ChunkOverlap      int
	MaxExtractedChars int
	// EmbeddingsPerSecond <= 0 disables pacing.
	EmbeddingsPerSecond float64
	OverFetchRatio      int
	Indices             []string
}

func DefaultOptions() Options {
	return Options{
		ChunkSize:           config.ChunkSize,
		ChunkOverlap:        config.ChunkOverlap,
		MaxExtractedChars:   config.MaxExtractedChars,
		EmbeddingsPerSecond: config.EmbeddingsPerSecond,
		OverFetchRatio:      config.OverFetchRatio,
		Indices:             []string{config.ReferenceIndexName, config.ExistingWorkIndexName},
	}
}

type service struct {
	index    vectorDB.Index
	table    store.Table
	blobs    blobStore.Store
	embedder embedding.Embedder
	limiter  *rate.Limiter
	opts     Options
	logger   *logger_i.Logger
}

func NewService(index vectorDB.Index, table store.Table, blobs blobStore.Store, em embedding.Embedder, opts Options) Service {
	limit := rate.Inf
	if opts.EmbeddingsPerSecond > 0 {
		limit = rate.Limit(opts.EmbeddingsPerSecond)
	}
	if opts.OverFetchRatio <= 0 {
		opts.OverFetchRatio = config.OverFetchRatio
	}
	return &service{
		index:    index,
		table:    table,
		blobs:    blobs,
		embedder: em,
		limiter:  rate.NewLimiter(limit, 1),
		opts:     opts,
		logger:   logger_i.NewLogger("vector_service"),
	}
}

// Embed is paced by the limiter and never retries.
func (s *service) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", jobModel.ErrEmbedding, err)
	}
	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("embedding", time.Since(start)) }()

	vector, err := s.embedder.GetEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", jobModel.ErrEmbedding, err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty vector", jobModel.ErrEmbedding)
	}
	return vector, nil
}

// Insert embeds text and stores it under the composite key built from jobID and
// meta, with the structured metadata written to the side table.
func (s *service) Insert(ctx context.Context, index, jobID, text string, meta commonModels.ChunkMetadata) bool {
	meta.JobID = jobID
	meta.Text = text
	if meta.TotalChunks <= 0 {
		meta.TotalChunks = 1
	}
	key := vectorKey.Encode(vectorKey.Key{
		JobID:        jobID,
		Attrs:        meta.Attrs,
		DocumentName: meta.DocumentName,
		ChunkIndex:   meta.ChunkIndex,
		TotalChunks:  meta.TotalChunks,
	})
	log := s.logger.ForContext(ctx).With("index", index, "key", key)

	fail := func(step string, err error) bool {
		log.Error("vector insert failed", "step", step, "error", err)
		metrics.IncrementVectorInsertFailures(index)
		return false
	}

	vector, err := s.Embed(ctx, text)
	if err != nil {
		return fail("embed", err)
	}
	if err := s.index.EnsureIndex(ctx, index); err != nil {
		return fail("ensure_index", err)
	}
	payload := map[string]string{
		vectorDB.PayloadKey:          key,
		vectorDB.PayloadJobID:        jobID,
		vectorDB.PayloadDocumentName: meta.DocumentName,
	}
	if err := s.index.Upsert(ctx, index, key, vector, payload); err != nil {
		return fail("upsert", err)
	}
	if err := s.table.Put(ctx, metaKey(index, jobID, key), metaToItem(meta)); err != nil {
		return fail("metadata", err)
	}
	return true
}

// Query returns matches ordered by ascending distance, or nothing on any error.
func (s *service) Query(ctx context.Context, index, text string, topK int, filter Filter) []commonModels.ChunkMatch {
	log := s.logger.ForContext(ctx).With("index", index)
	if topK <= 0 {
		return nil
	}
	vector, err := s.Embed(ctx, text)
	if err != nil {
		log.Error("query embedding failed", "error", err)
		return nil
	}

	start := time.Now()
	hits, err := s.index.Query(ctx, index, vector, topK, filter.payload())
	metrics.CaptureExecutionMetrics("vector_search", time.Since(start))
	if err != nil {
		log.Error("vector query failed", "error", err)
		return nil
	}

	matches := make([]commonModels.ChunkMatch, 0, len(hits))
	for _, hit := range hits {
		key, ok := vectorKey.Decode(hit.Key)
		if !ok || !filter.matchesAttrs(key) {
			continue
		}
		matches = append(matches, commonModels.ChunkMatch{
			Key:      hit.Key,
			Meta:     s.lookupMeta(ctx, index, hit.Key, key),
			Distance: hit.Distance,
		})
	}
	return matches
}

func (s *service) lookupMeta(ctx context.Context, index, raw string, key vectorKey.Key) commonModels.ChunkMetadata {
	item, err := s.table.Get(ctx, metaKey(index, key.JobID, raw))
	if err == nil {
		return metaFromItem(item)
	}
	return commonModels.ChunkMetadata{
		JobID:        key.JobID,
		Attrs:        key.Attrs,
		DocumentName: key.DocumentName,
		ChunkIndex:   key.ChunkIndex,
		TotalChunks:  key.TotalChunks,
	}
}

func (f Filter) payload() map[string]string {
	out := map[string]string{}
	if f.JobID != "" {
		out[vectorDB.PayloadJobID] = f.JobID
	}
	if f.DocumentName != "" {
		out[vectorDB.PayloadDocumentName] = f.DocumentName
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (f Filter) matchesAttrs(k vectorKey.Key) bool {
	for i, want := range f.Attrs {
		if want != "" && k.Attrs[i] != want {
			return false
		}
	}
	return true
}

// side table: partition CHUNKMETA#<index>#<job_id>, sort <key>
func metaPartition(index, jobID string) string {
	return "CHUNKMETA#" + index + "#" + jobID
}

func metaKey(index, jobID, key string) store.Key {
	return store.Key{Partition: metaPartition(index, jobID), Sort: key}
}

func metaToItem(m commonModels.ChunkMetadata) store.Item {
	return store.Item{
		"job_id":        m.JobID,
		"attr1":         m.Attrs[0],
		"attr2":         m.Attrs[1],
		"attr3":         m.Attrs[2],
		"document_name": m.DocumentName,
		"chunk_index":   strconv.Itoa(m.ChunkIndex),
		"total_chunks":  strconv.Itoa(m.TotalChunks),
		"start_offset":  strconv.Itoa(m.StartOffset),
		"text":          m.Text,
	}
}

func metaFromItem(item store.Item) commonModels.ChunkMetadata {
	m := commonModels.ChunkMetadata{
		JobID:        item["job_id"],
		Attrs:        [3]string{item["attr1"], item["attr2"], item["attr3"]},
		DocumentName: item["document_name"],
		Text:         item["text"],
	}
	m.ChunkIndex, _ = strconv.Atoi(item["chunk_index"])
	m.TotalChunks, _ = strconv.Atoi(item["total_chunks"])
	m.StartOffset, _ = strconv.Atoi(item["start_offset"])
	return m
}

// IngestDocument extracts, chunks and inserts one uploaded document, replacing any
// chunks already stored for it. Only extraction errors are returned; failed
// inserts are counted out.
func (s *service) IngestDocument(ctx context.Context, index, jobID, filename string, blob []byte, attrs [3]string) (int, error) {
	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("Document_ingestion", time.Since(start)) }()
	log := s.logger.ForContext(ctx).With("index", index, "jobId", jobID, "document", filename)

	text, err := ingest.ExtractLimit(blob, filename, s.opts.MaxExtractedChars)
	if err != nil {
		return 0, err
	}
	s.DeleteByDocumentName(ctx, filename, index, jobID)

	chunks := ingest.Chunk(text, s.opts.ChunkSize, s.opts.ChunkOverlap)
	inserted := 0
	for _, c := range chunks {
		ok := s.Insert(ctx, index, jobID, c.Text, commonModels.ChunkMetadata{
			Attrs:        attrs,
			DocumentName: filename,
			ChunkIndex:   c.Index,
			TotalChunks:  len(chunks),
			StartOffset:  c.Start,
		})
		if ok {
			inserted++
		}
	}
	if inserted < len(chunks) {
		log.Warn("document partially vectorized", "inserted", inserted, "chunks", len(chunks))
	} else {
		log.Info("document vectorized", "chunks", inserted)
	}
	return inserted, nil
}
