package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/akolanti/ProposalAPI/internal/adapter"
	"github.com/akolanti/ProposalAPI/internal/config"
)

func writeJsonResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log the error but can't send a clean status code now
		logRH.Error("Error encoding response", "error", err)
	}
}

func validateContext(ctx context.Context) bool {
	if ctx.Err() != nil {
		logRH.ForContext(ctx).Warn("context error", "error", ctx.Err())
		return false
	}
	if !ready() {
		logRH.Error("job handler is not initialised")
		return false
	}
	return true
}

func traceID(ctx context.Context) string {
	trace, _ := ctx.Value(config.TRACE_ID_KEY).(string)
	return trace
}

func WriteErrorResponse(w http.ResponseWriter, httpCode int, id string, error string) {
	writeJsonResponse(w, httpCode, adapter.BadRequest(id, error, httpCode))
}

// writeDomainError maps err through the adapter and logs server-side failures.
func writeDomainError(ctx context.Context, w http.ResponseWriter, id string, err error) {
	jobErr := adapter.ToJobError(err)
	if jobErr.Code >= http.StatusInternalServerError {
		logRH.ForContext(ctx).Error("request failed", "id", id, "error", err)
	}
	writeJsonResponse(w, jobErr.Code, adapter.FromJobError(id, jobErr))
}

// decodeOptionalBody decodes a JSON body into dst; an empty body leaves dst as is.
func decodeOptionalBody(body io.ReadCloser, dst any) error {
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			logRH.Error("Couldn't close the request body", "error", err)
		}
	}(body)
	err := json.NewDecoder(body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
