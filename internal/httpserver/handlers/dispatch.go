package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/dispatchprobe/internal/domain"
	"github.com/MrSnakeDoc/dispatchprobe/internal/httpserver/deps"
	"github.com/MrSnakeDoc/dispatchprobe/internal/httpserver/mw"
	"github.com/MrSnakeDoc/dispatchprobe/internal/logger"
)

const defaultMaxBodyBytes int64 = 1 << 20

// Dispatch runs one send request through the delivery cascade.
// Every outcome, including rejected input, is answered with HTTP 200 and a
// JSON envelope carrying "success".
func Dispatch(d deps.Deps) http.HandlerFunc {
	limit := d.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}

	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				requestID := uuid.NewString()
				d.Logger.Error("dispatch handler panic",
					logger.String("request_id", requestID),
					logger.String("panic", fmt.Sprint(rec)))
				w.Header().Set(mw.DispatchIDHeader, requestID)
				writeJSON(w, http.StatusOK, domain.NewErrorEnvelope(requestID, fmt.Sprintf("Erro interno: %v", rec)))
			}
		}()

		raw := decodeBody(http.MaxBytesReader(w, r.Body, limit), d.Logger)
		resp := d.Dispatcher.Send(r.Context(), raw)

		w.Header().Set(mw.DispatchIDHeader, resp.RequestID())
		writeJSON(w, http.StatusOK, resp.Body())
	}
}

// decodeBody reads a JSON object. Anything else (empty, malformed, an array,
// oversized) yields an empty map so validation reports the missing fields.
func decodeBody(body io.Reader, log logger.Logger) map[string]any {
	raw := map[string]any{}
	if body == nil {
		return raw
	}

	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warn("dispatch body too large", logger.Int64("limit", tooLarge.Limit))
		} else if !errors.Is(err, io.EOF) {
			log.Debug("dispatch body is not a JSON object", logger.Error(err))
		}
		return map[string]any{}
	}
	if raw == nil {
		return map[string]any{}
	}
	return raw
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
