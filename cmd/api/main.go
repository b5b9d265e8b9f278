// @title           Proposal Analysis API
// @version         1.0
// @description     Triggers, polls and resets the stages of the proposal analysis pipeline.
// @termsOfService  http://swagger.io/terms/

// @contact.name    API Support
// @contact.url
// @contact.email   ank.github@gmail.com

// @license.name    Apache 2.0
// @license.url     http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:3000
// @BasePath  /
// @schemes   http https
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/akolanti/ProposalAPI/internal/app"
	"github.com/akolanti/ProposalAPI/internal/config"
	"github.com/akolanti/ProposalAPI/internal/handlers"
	"github.com/akolanti/ProposalAPI/internal/middleware"
	"github.com/akolanti/ProposalAPI/internal/server"
	"github.com/akolanti/ProposalAPI/internal/worker"
	"github.com/akolanti/ProposalAPI/pkg/logger_i"
)

var (
	configPath        string
	listenAddr        string
	stopWorkerChannel chan bool
	workerWaitGroup   sync.WaitGroup
)

func main() {
	flag.StringVar(&configPath, "config", "", "path to a TOML config file")
	flag.StringVar(&listenAddr, "listen-addr", "", "server listen address, overrides the config")
	flag.Parse()

	settings, err := config.Load(configPath)
	logger_i.Init(settings.Prod, nil)
	var logger = logger_i.NewLogger("main")
	if err != nil {
		logger.Error("Could not load config", "error", err)
		os.Exit(1)
	}
	if listenAddr != "" {
		settings.ListenAddr = listenAddr
	}

	serviceContext, closeExternalServices := context.WithCancel(context.Background())
	defer closeExternalServices()

	logger.Info("Starting services", "kv", settings.Storage.KVBackend, "vector", settings.Vector.Backend, "llm", settings.LLM.Provider)
	application, err := app.New(serviceContext, settings)
	if err != nil {
		logger.Error("One or more services failed to initialize. Shutting down.", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	handlers.InitJobHandler(handlers.Deps{
		Service:   application.JobService,
		Blobs:     application.Blobs,
		Vectors:   application.Vectors,
		Prompts:   application.Prompts,
		DeleteJob: application.DeleteJob,
	})
	middleware.InitMiddleware(settings.AuthToken)

	//init worker pool
	stopWorkerChannel = make(chan bool, 1)
	worker.InitServices(application.JobService, application.Dispatcher)
	worker.InitWorkerPool(stopWorkerChannel, &workerWaitGroup)

	if err := application.Sweeper.Start(settings.Pipeline.SweepSchedule); err != nil {
		logger.Error("Stale stage sweeper not started", "error", err)
	}

	//server handling
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)
	stopExecution := make(chan bool, 1)

	shutdownParams := server.ShutdownParams{
		GracefulShutdown: gracefulShutdown,
		StopExecution:    stopExecution,
		WorkerStop:       stopWorkerChannel,
		Group:            &workerWaitGroup,
		CloseServices:    closeExternalServices,
	}
	go server.ShutDownHandler(shutdownParams)
	go server.CreateServer(settings.ListenAddr)

	<-stopExecution
	logger.Info("Server stopped")
}
