package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	amerrors "github.com/Aman-CERP/bulletinsearch/internal/errors"
	"github.com/Aman-CERP/bulletinsearch/internal/search"
	"github.com/Aman-CERP/bulletinsearch/pkg/version"
)

const (
	codeRateLimited   = "ERR_429_RATE_LIMITED"
	codeMalformedBody = "ERR_400_MALFORMED_BODY"

	// statusClientClosedRequest is the nginx convention for a caller that
	// went away before the response was ready.
	statusClientClosedRequest = 499

	// HeaderDegraded is set on search responses built from a subset of
	// the requested techniques.
	HeaderDegraded = "X-Search-Degraded"

	healthCheckTimeout = 2 * time.Second
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var req search.Request
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, codeMalformedBody,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, codeMalformedBody, "malformed request body: "+err.Error())
		return
	}

	resp, err := s.searcher.Search(r.Context(), req)
	if err != nil {
		s.writeSearchError(w, r, err)
		return
	}

	if resp.Diagnostics.Degraded {
		w.Header().Set(HeaderDegraded, "true")
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeSearchError maps a search failure to its HTTP status. Internal
// failures are logged in full and reported generically.
func (s *Server) writeSearchError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := search.RequestIDFromContext(r.Context())
	ae, _ := amerrors.As(err)

	detail := errorDetail{RequestID: requestID}
	var status int
	switch amerrors.Classify(err) {
	case amerrors.ClassBadRequest:
		status = http.StatusBadRequest
		detail.Code = ae.Code
		detail.Message = stripCode(err.Error(), ae.Code)
	case amerrors.ClassUnavailable:
		status = http.StatusServiceUnavailable
		if ae != nil {
			detail.Code = ae.Code
			detail.Message = ae.Message
			detail.Suggestion = ae.Suggestion
		} else {
			detail.Code = amerrors.ErrCodeServiceUnavailable
			detail.Message = "search timed out"
		}
	case amerrors.ClassCanceled:
		status = statusClientClosedRequest
		detail.Code = "ERR_499_CANCELED"
		detail.Message = "request canceled"
	default:
		status = http.StatusInternalServerError
		detail.Code = amerrors.ErrCodeInternal
		detail.Message = "internal error"
	}

	level := slog.LevelWarn
	if status == http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.LogAttrs(r.Context(), level, "search_failed",
		slog.String("request_id", requestID),
		slog.Int("status", status),
		amerrors.LogAttr(err))

	writeJSON(w, status, errorBody{Error: detail})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	queries := s.metrics.Queries()
	if queries == nil {
		writeError(w, http.StatusNotFound, "ERR_404_NOT_FOUND", "query statistics are disabled")
		return
	}
	writeJSON(w, http.StatusOK, queries.Snapshot())
}

type healthResponse struct {
	Status  string            `json:"status"`
	Version version.BuildInfo `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Version: version.GetInfo()}
	status := http.StatusOK

	if len(s.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		resp.Checks = make(map[string]string, len(s.checks))
		for _, c := range s.checks {
			if err := c.check(ctx); err != nil {
				resp.Checks[c.name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.name] = "ok"
		}
	}
	writeJSON(w, status, resp)
}

func stripCode(msg, code string) string {
	return strings.TrimPrefix(msg, "["+code+"] ")
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
