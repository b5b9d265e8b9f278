package middleware

import (
	"net/http"
	"strconv"

	"github.com/akolanti/ProposalAPI/internal/handlers"
	"github.com/akolanti/ProposalAPI/internal/metrics"
	"github.com/akolanti/ProposalAPI/pkg/logger_i"
	"github.com/go-chi/chi/v5"
)

type requestResponseStruct struct {
	writer     http.ResponseWriter
	req        *http.Request
	badRequest failureStruct
	logger     *logger_i.Logger
}

type failureStruct struct {
	isBadRequest bool
	httpCode     int
	errorMessage string
}

var authToken string

// InitMiddleware sets the bearer token every wrapped route requires.
func InitMiddleware(token string) {
	authToken = token
}

var GetHandler = Wrap(handlers.GetHandler)

var UploadDocumentHandler = Wrap(handlers.UploadDocumentHandler)
var DeleteDocumentHandler = Wrap(handlers.DeleteDocumentHandler)
var SetConceptHandler = Wrap(handlers.SetConceptHandler)
var DispatchStageHandler = Wrap(handlers.DispatchStageHandler)
var GetStageHandler = Wrap(handlers.GetStageHandler)
var ResetStageHandler = Wrap(handlers.ResetStageHandler)
var DeleteJobHandler = Wrap(handlers.DeleteJobHandler)
var SavePromptHandler = Wrap(handlers.SavePromptHandler)
var ListPromptsHandler = Wrap(handlers.ListPromptsHandler)

func Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &metrics.HttpStatusRecorder{ResponseWriter: w, Status: 200} //metrics
		re := processRequest(requestResponseStruct{req: r, writer: rec})

		if !re.badRequest.isBadRequest {
			next(rec, re.req)
		}

		metrics.HttpRequestsTotal.WithLabelValues(routePattern(re.req), strconv.Itoa(rec.Status)).Inc() //metrics
	}
}

func processRequest(re requestResponseStruct) requestResponseStruct {
	re.logger = logger_i.NewLogger("middleware")
	re.logger.Debug("New request received", "path", re.req.URL.Path)
	for _, step := range []func(requestResponseStruct) requestResponseStruct{injectTrace, authenticate, rateLimiter} {
		re = step(re)
		if re.badRequest.isBadRequest {
			handleBadRequest(re)
			return re
		}
	}
	return re
}

// routePattern keeps the metric label cardinality bounded by job ids.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
