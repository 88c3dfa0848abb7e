package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	apperrors "loan-appraiser/internal/common/errors"
)

const maxBodyBytes = 1 << 20

// writeJSON marshals v as JSON and writes it with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", map[string]interface{}{"error": err.Error()})
	}
}

// writeError writes err as a structured JSON error with the status its code maps to.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	stdErr := apperrors.AsStandardError(err)
	status := apperrors.HTTPStatus(stdErr.Code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", map[string]interface{}{
			"code":    string(stdErr.Code),
			"details": stdErr.Details,
		})
	}

	body := map[string]interface{}{
		"error": stdErr.Message,
		"code":  stdErr.Code,
	}
	if fieldErrs, ok := stdErr.Metadata["errors"]; ok {
		body["errors"] = fieldErrs
	}
	s.writeJSON(w, status, body)
}

// decodeJSON decodes the request body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return apperrors.NewInvalidRequestError("malformed JSON body: " + err.Error())
	}
	return nil
}

// queryInt reads a non-negative integer query parameter, falling back to def.
func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
