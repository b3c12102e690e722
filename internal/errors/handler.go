package errors

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

// ErrorResponse is the JSON body written for failed API requests.
type ErrorResponse struct {
	Error     *AppError `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}

// ErrorHandler renders errors as JSON and logs them by severity.
type ErrorHandler struct {
	logger *logrus.Logger
}

func NewErrorHandler(logger *logrus.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleError writes err to w. Errors that are not AppErrors become
// internal errors so their text never reaches the client.
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := AsAppError(err)
	if !ok {
		appErr = WrapInternalError(err, "internal error")
	}

	requestID := r.Header.Get("X-Request-ID")
	entry := h.logger.WithFields(logrus.Fields{
		"error_type": appErr.Type,
		"request_id": requestID,
		"method":     r.Method,
		"path":       r.URL.Path,
	})
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		entry.Error(appErr.Error())
	} else {
		entry.Debug(appErr.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.HTTPStatus)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: appErr, RequestID: requestID}); err != nil {
		h.logger.WithError(err).Error("Failed to encode error response")
	}
}

// HandleNotFound is used as the router's NotFoundHandler.
func (h *ErrorHandler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.HandleError(w, r, NewNotFoundError("endpoint"))
}

// Middleware turns handler panics into 500 responses.
func (h *ErrorHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				h.logger.WithFields(logrus.Fields{
					"panic":  recovered,
					"method": r.Method,
					"path":   r.URL.Path,
				}).Error("Panic recovered in HTTP handler")
				h.HandleError(w, r, WrapInternalError(nil, "internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
