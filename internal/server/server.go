package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"

	"github.com/akolanti/ProposalAPI/internal/adapter/utils"
	"github.com/akolanti/ProposalAPI/internal/config"
	"github.com/akolanti/ProposalAPI/internal/middleware"
	"github.com/akolanti/ProposalAPI/pkg/logger_i"
	"github.com/go-chi/chi/v5"
)

var (
	server  *http.Server
	_logger *logger_i.Logger
)

type ShutdownParams struct {
	GracefulShutdown chan os.Signal
	StopExecution    chan bool
	WorkerStop       chan bool
	Group            *sync.WaitGroup
	CloseServices    context.CancelFunc
}

func RegisterRoutes(r chi.Router) {
	r.Get("/health", middleware.GetHandler)

	r.Delete("/jobs/{id}", middleware.DeleteJobHandler)
	r.Put("/jobs/{id}/concept", middleware.SetConceptHandler)

	r.Post("/jobs/{id}/documents/{kind}", middleware.UploadDocumentHandler)
	r.Delete("/jobs/{id}/documents/{kind}/{name}", middleware.DeleteDocumentHandler)

	r.Post("/jobs/{id}/analysis/{type}", middleware.DispatchStageHandler)
	r.Get("/jobs/{id}/analysis/{type}", middleware.GetStageHandler)
	r.Post("/jobs/{id}/analysis/{type}/reset", middleware.ResetStageHandler)

	r.Post("/prompts", middleware.SavePromptHandler)
	r.Get("/prompts", middleware.ListPromptsHandler)
}

func CreateServer(listenAddr string) {
	_logger = logger_i.NewLogger("Server")

	r := utils.GetRouter()
	RegisterRoutes(r.Router)

	server = &http.Server{
		Addr:         listenAddr,
		Handler:      r.Router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	_logger.Info("Server is listening at", "address", listenAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		_logger.Error("Server crashed", "error", err.Error(), "addr", listenAddr)
	}
}

func ShutDownHandler(shutdownParams ShutdownParams) {
	log := logger_i.NewLogger("Server")
	state := <-shutdownParams.GracefulShutdown
	log.Info("Server is shutting down", "signal", state.String())

	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownContextTimeout)
	defer cancel()

	done := make(chan struct{})

	go func() {
		server.SetKeepAlivesEnabled(false)

		if err := server.Shutdown(ctx); err != nil {
			log.Error("Could not shutdown gracefully", "error", err)
		}

		//close workers
		close(shutdownParams.WorkerStop)
		shutdownParams.Group.Wait()
		shutdownParams.CloseServices()
		close(shutdownParams.StopExecution)
		close(done)
	}()

	select {
	case <-done:
		log.Info("Gracefully shut down")
	case <-ctx.Done():
		log.Info("Force Shut down")
		os.Exit(1)
	}
}
