package handlers

import (
	"context"
	"sync"

	"github.com/akolanti/ProposalAPI/internal/data/blobStore"
	"github.com/akolanti/ProposalAPI/internal/job"
	"github.com/akolanti/ProposalAPI/internal/rag/prompt"
	"github.com/akolanti/ProposalAPI/internal/rag/vectorService"
	"github.com/akolanti/ProposalAPI/pkg/logger_i"
)

var (
	handlerInstance *JobHandler //private singleton
	once            sync.Once
	logJH           *logger_i.Logger
)

type JobHandler struct {
	service   *job.Service
	tracker   *job.Tracker
	blobs     blobStore.Store
	vectors   vectorService.Service
	prompts   *prompt.Loader
	deleteJob func(ctx context.Context, jobID string) error
}

type Deps struct {
	Service *job.Service
	Blobs   blobStore.Store
	Vectors vectorService.Service
	Prompts *prompt.Loader
	// DeleteJob cascades a job deletion to vectors and blobs.
	DeleteJob func(ctx context.Context, jobID string) error
}

func InitJobHandler(deps Deps) {
	once.Do(func() {
		handlerInstance = &JobHandler{
			service:   deps.Service,
			tracker:   deps.Service.Tracker,
			blobs:     deps.Blobs,
			vectors:   deps.Vectors,
			prompts:   deps.Prompts,
			deleteJob: deps.DeleteJob,
		}

		logJH = logger_i.NewLogger("JobHandler")
		logRH = logger_i.NewLogger("RequestHandler")
		logJH.Info("Starting job handler")
	})
}

func ready() bool {
	return handlerInstance != nil
}
