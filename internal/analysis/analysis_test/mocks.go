package analysis_test

import (
	"context"
	"sync"

	"github.com/akolanti/ProposalAPI/internal/domain/commonModels"
	"github.com/akolanti/ProposalAPI/internal/rag/llm"
	"github.com/akolanti/ProposalAPI/internal/rag/vectorService"
)

// MockLLM implements llm.Invoker and records every request
type MockLLM struct {
	mu       sync.Mutex
	Requests []llm.Request
	OnInvoke func(ctx context.Context, req llm.Request) (string, error)
}

func (m *MockLLM) Invoke(ctx context.Context, req llm.Request) (string, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.OnInvoke != nil {
		return m.OnInvoke(ctx, req)
	}
	return `{"narrative":"mocked llm response"}`, nil
}

func (m *MockLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// MockVectors implements vectorService.Service
type MockVectors struct {
	OnSearchAndReconstruct func(ctx context.Context, query string, topK int, index string) []commonModels.Document
	OnReconstructByJob     func(ctx context.Context, jobID, index string, maxDocs int) []commonModels.Document
}

var _ vectorService.Service = (*MockVectors)(nil)

func (m *MockVectors) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1}, nil
}

func (m *MockVectors) Insert(ctx context.Context, index, jobID, text string, meta commonModels.ChunkMetadata) bool {
	return true
}

func (m *MockVectors) Query(ctx context.Context, index, text string, topK int, filter vectorService.Filter) []commonModels.ChunkMatch {
	return nil
}

func (m *MockVectors) ReconstructByJob(ctx context.Context, jobID, index string, maxDocs int) []commonModels.Document {
	if m.OnReconstructByJob != nil {
		return m.OnReconstructByJob(ctx, jobID, index, maxDocs)
	}
	return nil
}

func (m *MockVectors) SearchAndReconstruct(ctx context.Context, query string, topK int, index string) []commonModels.Document {
	if m.OnSearchAndReconstruct != nil {
		return m.OnSearchAndReconstruct(ctx, query, topK, index)
	}
	return nil
}

func (m *MockVectors) DeleteByJob(ctx context.Context, jobID string) bool { return true }

func (m *MockVectors) DeleteByDocumentName(ctx context.Context, name, index, jobID string) bool {
	return true
}

func (m *MockVectors) IngestDocument(ctx context.Context, index, jobID, filename string, blob []byte, attrs [3]string) (int, error) {
	return 1, nil
}
