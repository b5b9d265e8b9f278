package vectorService

import (
	"context"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/akolanti/ProposalAPI/internal/data/blobStore"
	"github.com/akolanti/ProposalAPI/internal/domain/commonModels"
	"github.com/akolanti/ProposalAPI/internal/rag/ingest"
	"github.com/akolanti/ProposalAPI/internal/rag/vectorDB"
	"github.com/akolanti/ProposalAPI/internal/rag/vectorKey"
)

// docGroup is the set of chunk keys belonging to one source document.
type docGroup struct {
	jobID    string
	name     string
	attrs    [3]string
	keys     []vectorKey.Key
	rawKeys  []string
	distance float64
}

func (g *docGroup) add(raw string, k vectorKey.Key) {
	if len(g.keys) == 0 {
		g.attrs = k.Attrs
	}
	g.keys = append(g.keys, k)
	g.rawKeys = append(g.rawKeys, raw)
}

// ReconstructByJob rebuilds at most maxDocs whole documents of jobID from index,
// ordered by document name.
func (s *service) ReconstructByJob(ctx context.Context, jobID, index string, maxDocs int) []commonModels.Document {
	log := s.logger.ForContext(ctx).With("index", index, "jobId", jobID)
	keys, err := s.index.ListKeys(ctx, index, map[string]string{vectorDB.PayloadJobID: jobID})
	if err != nil {
		log.Error("listing chunk keys failed", "error", err)
		return nil
	}

	groups := map[string]*docGroup{}
	for _, raw := range keys {
		if !vectorKey.HasJob(raw, jobID) {
			continue
		}
		k, ok := vectorKey.Decode(raw)
		if !ok {
			continue
		}
		g, found := groups[k.DocumentName]
		if !found {
			g = &docGroup{jobID: jobID, name: k.DocumentName}
			groups[k.DocumentName] = g
		}
		g.add(raw, k)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	slices.Sort(names)
	if maxDocs > 0 && len(names) > maxDocs {
		names = names[:maxDocs]
	}

	docs := make([]commonModels.Document, 0, len(names))
	for _, name := range names {
		if doc, ok := s.reconstruct(ctx, index, groups[name]); ok {
			docs = append(docs, doc)
		}
	}
	log.Debug("documents reconstructed", "documents", len(docs), "chunks", len(keys))
	return docs
}

// SearchAndReconstruct over-fetches chunks, ranks their documents by mean distance
// and rebuilds the topK closest. Documents from any job are candidates.
func (s *service) SearchAndReconstruct(ctx context.Context, query string, topK int, index string) []commonModels.Document {
	if topK <= 0 || strings.TrimSpace(query) == "" {
		return nil
	}
	matches := s.Query(ctx, index, query, topK*s.opts.OverFetchRatio, Filter{})

	groups := map[string]*docGroup{}
	for _, m := range matches {
		k, ok := vectorKey.Decode(m.Key)
		if !ok {
			continue
		}
		id := k.JobID + "/" + k.DocumentName
		g, found := groups[id]
		if !found {
			g = &docGroup{jobID: k.JobID, name: k.DocumentName}
			groups[id] = g
		}
		g.add(m.Key, k)
		g.distance += m.Distance
	}

	ranked := make([]*docGroup, 0, len(groups))
	for _, g := range groups {
		g.distance /= float64(len(g.keys))
		ranked = append(ranked, g)
	}
	slices.SortFunc(ranked, func(a, b *docGroup) int {
		switch {
		case a.distance < b.distance:
			return -1
		case a.distance > b.distance:
			return 1
		}
		return strings.Compare(a.jobID+"/"+a.name, b.jobID+"/"+b.name)
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	docs := make([]commonModels.Document, 0, len(ranked))
	for _, g := range ranked {
		if doc, ok := s.reconstruct(ctx, index, g); ok {
			doc.MeanDistance = g.distance
			docs = append(docs, doc)
		}
	}
	return docs
}

// reconstruct reads the source blob and falls back to stitching the stored chunk
// texts when the blob is gone or cannot be extracted.
func (s *service) reconstruct(ctx context.Context, index string, g *docGroup) (commonModels.Document, bool) {
	log := s.logger.ForContext(ctx).With("index", index, "jobId", g.jobID, "document", g.name)
	slices.SortFunc(g.keys, func(a, b vectorKey.Key) int { return a.ChunkIndex - b.ChunkIndex })

	doc := commonModels.Document{
		JobID:      g.jobID,
		Name:       g.name,
		Index:      index,
		Attrs:      g.attrs,
		ChunkCount: len(g.keys),
	}

	kind := commonModels.KindForIndex(index)
	blob, err := s.blobs.Get(ctx, blobStore.DocumentPath(g.jobID, string(kind), g.name))
	if err == nil {
		text, extractErr := ingest.ExtractLimit(blob, g.name, s.opts.MaxExtractedChars)
		if extractErr == nil && text != "" {
			doc.Text = text
			return doc, true
		}
		err = extractErr
	}
	log.Warn("source blob unavailable, rebuilding from chunks", "error", err)

	text := s.stitch(ctx, index, g)
	if text == "" {
		log.Error("document could not be reconstructed")
		return doc, false
	}
	doc.Text = text
	doc.FromChunks = true
	return doc, true
}

func (s *service) stitch(ctx context.Context, index string, g *docGroup) string {
	records, err := s.table.QueryPartition(ctx, metaPartition(index, g.jobID))
	if err != nil {
		return ""
	}
	var chunks []ingest.TextChunk
	for _, r := range records {
		m := metaFromItem(r.Item)
		if m.DocumentName != g.name || m.Text == "" {
			continue
		}
		chunks = append(chunks, ingest.TextChunk{
			Index: m.ChunkIndex,
			Start: m.StartOffset,
			End:   m.StartOffset + utf8.RuneCountInString(m.Text),
			Text:  m.Text,
		})
	}
	return ingest.ReassembleWithOverlap(chunks, s.opts.ChunkOverlap)
}
