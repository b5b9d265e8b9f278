// Package app builds the component graph shared by the HTTP server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/akolanti/ProposalAPI/internal/analysis"
	"github.com/akolanti/ProposalAPI/internal/config"
	"github.com/akolanti/ProposalAPI/internal/data/badgerStore"
	"github.com/akolanti/ProposalAPI/internal/data/blobStore"
	"github.com/akolanti/ProposalAPI/internal/data/redisStore"
	"github.com/akolanti/ProposalAPI/internal/data/store"
	"github.com/akolanti/ProposalAPI/internal/domain/jobModel"
	"github.com/akolanti/ProposalAPI/internal/job"
	"github.com/akolanti/ProposalAPI/internal/rag/embedding"
	"github.com/akolanti/ProposalAPI/internal/rag/embedding/googleEmbedding"
	"github.com/akolanti/ProposalAPI/internal/rag/embedding/openaiEmbedding"
	"github.com/akolanti/ProposalAPI/internal/rag/llm"
	anthropicLLM "github.com/akolanti/ProposalAPI/internal/rag/llm/anthropic"
	"github.com/akolanti/ProposalAPI/internal/rag/llm/gemini"
	openaiLLM "github.com/akolanti/ProposalAPI/internal/rag/llm/openai"
	"github.com/akolanti/ProposalAPI/internal/rag/prompt"
	"github.com/akolanti/ProposalAPI/internal/rag/vectorDB"
	"github.com/akolanti/ProposalAPI/internal/rag/vectorDB/qdrantDB"
	"github.com/akolanti/ProposalAPI/internal/rag/vectorDB/sqliteDB"
	"github.com/akolanti/ProposalAPI/internal/rag/vectorService"
	"github.com/akolanti/ProposalAPI/internal/worker"
	"github.com/akolanti/ProposalAPI/pkg/logger_i"
)

const tableName = "proposals"

// App holds the wired components. Core fields are always set; the model-backed
// ones are nil for an App built with NewCore.
type App struct {
	Settings config.Settings

	Table   store.Table
	Blobs   blobStore.Store
	Tracker *job.Tracker
	Prompts *prompt.Loader

	Vectors    vectorService.Service
	LLM        llm.Invoker
	Registry   *analysis.Registry
	Dispatcher *worker.Dispatcher
	JobService *job.Service
	Sweeper    *worker.Sweeper

	closers []func() error
	logger  *logger_i.Logger
}

// NewCore wires storage only: enough for status, reset and prompt administration.
func NewCore(ctx context.Context, s config.Settings) (*App, error) {
	a := &App{Settings: s, logger: logger_i.NewLogger("App")}

	if err := a.initTable(ctx); err != nil {
		return nil, err
	}
	if err := a.initBlobs(); err != nil {
		a.Close()
		return nil, err
	}
	a.Tracker = job.NewTracker(a.Table)
	a.Prompts = prompt.NewLoader(a.Table)
	return a, nil
}

// New wires everything, including the vector index, embedder and model provider.
func New(ctx context.Context, s config.Settings) (*App, error) {
	a, err := NewCore(ctx, s)
	if err != nil {
		return nil, err
	}

	index, err := a.initIndex(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	embedder, err := a.initEmbedder(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.LLM, err = a.initLLM(ctx); err != nil {
		a.Close()
		return nil, err
	}

	vectorOpts := vectorService.DefaultOptions()
	vectorOpts.ChunkSize = s.Embedding.ChunkSize
	vectorOpts.ChunkOverlap = s.Embedding.Overlap
	vectorOpts.MaxExtractedChars = s.Embedding.MaxExtract
	vectorOpts.EmbeddingsPerSecond = s.Embedding.PerSecond
	a.Vectors = vectorService.NewService(index, a.Table, a.Blobs, embedder, vectorOpts)

	a.Registry = analysis.NewRegistry(analysis.Deps{
		Blobs:   a.Blobs,
		Vectors: a.Vectors,
		LLM:     a.LLM,
		Options: analysis.Options{
			MaxDocuments:      s.Pipeline.MaxDocuments,
			Temperature:       s.LLM.Temperature,
			MaxTokens:         s.LLM.MaxTokens,
			DocumentMaxTokens: s.LLM.DocumentTokens,
			MaxExtractedChars: s.Embedding.MaxExtract,
		},
	})
	a.Dispatcher = worker.NewDispatcher(worker.DispatcherConfig{
		Tracker:        a.Tracker,
		Registry:       a.Registry,
		Prompts:        a.Prompts,
		PromptSection:  s.Pipeline.PromptSection,
		StageTimeout:   s.Pipeline.StageTimeout,
		MaxRetries:     s.Pipeline.MaxRetries,
		RetryBaseDelay: s.Pipeline.RetryBaseDelay,
	})
	a.JobService = job.InitJobService(job.ServiceConfig{
		JobChannel:        make(chan jobModel.JobDescriptor, config.BufferLimit),
		DispatcherChannel: make(chan bool, 1),
		Tracker:           a.Tracker,
		Checker:           a.Registry,
	})
	a.Sweeper = worker.NewSweeper(a.Tracker, s.Pipeline.StageTimeout+config.SweepGrace)
	return a, nil
}

func (a *App) initTable(ctx context.Context) error {
	switch a.Settings.Storage.KVBackend {
	case "redis":
		t := store.GetRedisTable(ctx, tableName, redisStore.Options{
			Addr:     a.Settings.Storage.RedisAddr,
			Password: a.Settings.Storage.RedisPassword,
			DB:       a.Settings.Storage.RedisDB,
		})
		if t != nil {
			a.Table = t
			return nil
		}
		if !config.FALLBACK_REDIS_TO_INTERNALSTORE {
			return errors.New("redis is unreachable")
		}
		a.logger.Error("Redis is offline, falling back to the in-memory table")
		a.Table = store.InitInMemoryTable()
	case "badger":
		t, err := badgerStore.Open(a.Settings.Storage.BadgerPath)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, t.Close)
		a.Table = t
	case "memory", "":
		a.Table = store.InitInMemoryTable()
	default:
		return fmt.Errorf("unknown kv backend %q", a.Settings.Storage.KVBackend)
	}
	return nil
}

func (a *App) initBlobs() error {
	if a.Settings.Storage.BlobRoot == "" {
		a.Blobs = blobStore.NewInMemory()
		return nil
	}
	fs, err := blobStore.NewLocalFS(a.Settings.Storage.BlobRoot)
	if err != nil {
		return err
	}
	a.Blobs = fs
	return nil
}

func (a *App) initIndex(ctx context.Context) (vectorDB.Index, error) {
	v := a.Settings.Vector
	switch v.Backend {
	case "qdrant":
		holder := qdrantDB.GetQuadrantClient(ctx, qdrantDB.Options{
			Host:      v.QdrantHost,
			Port:      v.QdrantPort,
			UseTLS:    v.QdrantTLS,
			Dimension: uint64(a.Settings.Embedding.Dimension),
		})
		if holder != nil {
			return holder, nil
		}
		a.logger.Error("Qdrant is offline, falling back to the sqlite index", "path", v.SqlitePath)
		fallthrough
	case "sqlite":
		s, err := sqliteDB.Open(v.SqlitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	}
	return nil, fmt.Errorf("unknown vector backend %q", v.Backend)
}

func (a *App) initEmbedder(ctx context.Context) (embedding.Embedder, error) {
	e := a.Settings.Embedding
	switch e.Provider {
	case "google":
		em := googleEmbedding.GetGoogleEmbeddingClient(ctx, e.Model, a.Settings.LLM.GoogleAPIKey, e.Dimension)
		if em == nil {
			return nil, errors.New("google embedding client could not be created")
		}
		return em, nil
	case "openai":
		if a.Settings.LLM.OpenAIAPIKey == "" {
			return nil, errors.New("OPENAI_API_KEY is required for openai embeddings")
		}
		return openaiEmbedding.New(a.Settings.LLM.OpenAIAPIKey, e.Model, e.Dimension), nil
	}
	return nil, fmt.Errorf("unknown embedding provider %q", e.Provider)
}

func (a *App) initLLM(ctx context.Context) (llm.Invoker, error) {
	l := a.Settings.LLM
	switch l.Provider {
	case "gemini":
		inv := gemini.GetGeminiClient(ctx, l.Model, l.GoogleAPIKey)
		if inv == nil {
			return nil, errors.New("gemini client could not be created")
		}
		return inv, nil
	case "anthropic":
		if l.AnthropicAPIKey == "" {
			return nil, errors.New("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
		return anthropicLLM.New(l.AnthropicAPIKey, l.Model), nil
	case "openai":
		if l.OpenAIAPIKey == "" {
			return nil, errors.New("OPENAI_API_KEY is required for the openai provider")
		}
		return openaiLLM.New(l.OpenAIAPIKey, l.Model), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", l.Provider)
}

// DeleteJob removes a job's vectors, blobs and record.
func (a *App) DeleteJob(ctx context.Context, jobID string) error {
	if a.Vectors != nil && !a.Vectors.DeleteByJob(ctx, jobID) {
		a.logger.ForContext(ctx).Warn("some vectors were not deleted", "jobId", jobID)
	}
	paths, err := a.Blobs.List(ctx, blobStore.JobPrefix(jobID))
	if err != nil {
		return fmt.Errorf("listing blobs of %s: %w", jobID, err)
	}
	for _, p := range paths {
		if err := a.Blobs.Delete(ctx, p); err != nil && !errors.Is(err, blobStore.ErrNotFound) {
			return fmt.Errorf("deleting %s: %w", p, err)
		}
	}
	return a.Tracker.Delete(ctx, jobID)
}

func (a *App) Close() {
	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("closing component failed", "error", err)
		}
	}
	a.closers = nil
}
