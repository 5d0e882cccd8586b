package app

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
)

// errorBody is the structured error returned to HTTP callers.
type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Handler exposes the pipeline over HTTP: POST /api/convert takes
// {url, no_filter} and streams the PDF; GET /api/health reports
// liveness. The handler is stateless beyond the App it wraps.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/convert", requireMethod(http.MethodPost, a.handleConvert))
	mux.HandleFunc("/api/health", requireMethod(http.MethodGet, handleHealth))
	return mux
}

func (a *App) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "request body must be JSON with a url field")
		return
	}

	log.Info().Str("url", req.URL).Bool("no_filter", req.NoFilter).Msg("conversion request")
	doc, _, err := a.Convert(r.Context(), req)
	if err != nil {
		kind, status := errKind(err)
		log.Error().Err(err).Str("kind", kind).Msg("conversion failed")
		writeError(w, status, kind, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename=article.pdf`)
	_, _ = w.Write(doc)
}

// requireMethod rejects requests whose method differs from want with
// 405, mirroring the method-pattern mux behavior of newer Go releases.
func requireMethod(want string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != want {
			w.Header().Set("Allow", want)
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// errKind maps pipeline sentinels onto the wire taxonomy.
func errKind(err error) (kind string, status int) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "validation", http.StatusBadRequest
	case errors.Is(err, ErrNoImages):
		return "fetch", http.StatusBadRequest
	case errors.Is(err, ErrAllFiltered):
		return "assembly", http.StatusBadRequest
	default:
		return "internal", http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Kind: kind, Message: message})
}
