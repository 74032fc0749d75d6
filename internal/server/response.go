package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/apperr"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/vectorstore"
)

// ResponseModel is the envelope of every API response.
type ResponseModel struct {
	Status   string                 `json:"status"`
	Data     interface{}            `json:"data,omitempty"`
	Error    *ErrorInfo             `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ErrorInfo describes a failed request.
type ErrorInfo struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

const (
	statusSuccess = "success"
	statusError   = "error"
)

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondOK(w http.ResponseWriter, status int, data interface{}, meta map[string]interface{}) {
	s.respondJSON(w, status, ResponseModel{Status: statusSuccess, Data: data, Metadata: meta})
}

// respondError maps err to a status code and stable error code.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, info := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request error",
			zap.String("path", r.URL.Path),
			zap.String("code", info.Code),
			zap.Error(err))
	} else {
		s.logger.Debug("request rejected",
			zap.String("path", r.URL.Path),
			zap.String("code", info.Code),
			zap.Error(err))
	}
	s.respondJSON(w, status, ResponseModel{Status: statusError, Error: info})
}

func (s *Server) respondInvalid(w http.ResponseWriter, r *http.Request, format string, args ...interface{}) {
	s.respondError(w, r, apperr.Invalidf(format, args...))
}

func classify(err error) (int, *ErrorInfo) {
	if ae, ok := apperr.As(err); ok {
		msg := ae.Message
		if msg == "" {
			msg = ae.Error()
		}
		if ae.Kind == apperr.Internal {
			msg = "internal error"
		}
		return ae.Kind.HTTPStatus(), &ErrorInfo{Code: ae.StableCode(), Message: msg, Details: ae.Details}
	}
	switch {
	case errors.Is(err, vectorstore.ErrNotPersisted):
		return http.StatusInternalServerError, &ErrorInfo{
			Code:    apperr.CodeProcessingError,
			Message: "vector index checkpoint failed",
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, &ErrorInfo{
			Code:    apperr.CodeServiceUnavailable,
			Message: "request cancelled or timed out",
		}
	default:
		return http.StatusInternalServerError, &ErrorInfo{Code: apperr.CodeInternal, Message: "internal error"}
	}
}

// persistedOnly reports whether err only says the vector checkpoint after a
// successful mutation failed. The mutation stands and is reported with persisted=false.
func (s *Server) persistedOnly(err error) bool {
	if err == nil || !errors.Is(err, vectorstore.ErrNotPersisted) {
		return false
	}
	s.logger.Warn("mutation applied but vector checkpoint failed", zap.Error(err))
	return true
}
