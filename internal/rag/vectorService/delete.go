package vectorService

import (
	"context"

	"github.com/akolanti/ProposalAPI/internal/rag/vectorDB"
	"github.com/akolanti/ProposalAPI/internal/rag/vectorKey"
	"golang.org/x/sync/errgroup"
)

// DeleteByJob removes every chunk of jobID from all indices concurrently. It
// reports true when nothing was left behind, including when nothing matched.
func (s *service) DeleteByJob(ctx context.Context, jobID string) bool {
	g, gctx := errgroup.WithContext(ctx)
	for _, index := range s.opts.Indices {
		g.Go(func() error {
			keys, err := s.index.ListKeys(gctx, index, map[string]string{vectorDB.PayloadJobID: jobID})
			if err != nil {
				return err
			}
			var owned []string
			for _, k := range keys {
				if vectorKey.HasJob(k, jobID) {
					owned = append(owned, k)
				}
			}
			return s.deleteKeys(gctx, index, owned)
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.ForContext(ctx).Error("deleting job vectors failed", "jobId", jobID, "error", err)
		return false
	}
	return true
}

// DeleteByDocumentName removes the chunks of one document. jobID scopes the delete
// to a single job; empty deletes the name across jobs.
func (s *service) DeleteByDocumentName(ctx context.Context, name, index, jobID string) bool {
	filter := map[string]string{vectorDB.PayloadDocumentName: name}
	if jobID != "" {
		filter[vectorDB.PayloadJobID] = jobID
	}
	keys, err := s.index.ListKeys(ctx, index, filter)
	if err != nil {
		s.logger.ForContext(ctx).Error("listing document chunks failed", "document", name, "error", err)
		return false
	}
	var owned []string
	for _, raw := range keys {
		k, ok := vectorKey.Decode(raw)
		if ok && k.DocumentName == name && (jobID == "" || k.JobID == jobID) {
			owned = append(owned, raw)
		}
	}
	if err := s.deleteKeys(ctx, index, owned); err != nil {
		s.logger.ForContext(ctx).Error("deleting document chunks failed", "document", name, "error", err)
		return false
	}
	return true
}

func (s *service) deleteKeys(ctx context.Context, index string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.index.DeleteKeys(ctx, index, keys); err != nil {
		return err
	}
	for _, raw := range keys {
		k, _ := vectorKey.Decode(raw)
		if err := s.table.Delete(ctx, metaKey(index, k.JobID, raw)); err != nil {
			return err
		}
	}
	return nil
}
