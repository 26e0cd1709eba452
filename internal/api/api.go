// Package api serves the content services as the JSON routes the site's
// front end calls.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/leonardcser/content-mcp/internal/content"
	"github.com/leonardcser/content-mcp/internal/logger"
)

const maxRequestBody = 16 << 10

// Handler routes /api/... requests to the content services.
type Handler struct {
	svc *content.Services
	mux *http.ServeMux
}

// New registers every route on a fresh mux.
func New(svc *content.Services) *Handler {
	h := &Handler{svc: svc, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /api/newsletter/latest", h.newsletterLatest)
	h.mux.HandleFunc("GET /api/newsletter/all", h.newsletterAll)
	h.mux.HandleFunc("GET /api/newsletter/{id}", h.newsletterContent)
	h.mux.HandleFunc("POST /api/newsletter/subscribe", h.newsletterSubscribe)
	h.mux.HandleFunc("GET /api/podcast/latest", h.podcastLatest)
	h.mux.HandleFunc("GET /api/podcast/episodes", h.podcastEpisodes)
	h.mux.HandleFunc("GET /api/youtube/playlist", h.youtubePlaylist)
	h.mux.HandleFunc("GET /api/youtube/playlist/{id}", h.youtubePlaylistDetails)
	h.mux.HandleFunc("GET /api/youtube/guides", h.youtubeGuides)
	h.mux.HandleFunc("GET /api/youtube/projects", h.youtubeProjects)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("%s %s", r.Method, r.URL.Path)
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) newsletterLatest(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Newsletter.Latest(r.Context())
	if err != nil {
		writeError(w, err, "Failed to fetch newsletter")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: n})
}

func (h *Handler) newsletterAll(w http.ResponseWriter, r *http.Request) {
	all, err := h.svc.Newsletter.All(r.Context())
	if err != nil {
		writeError(w, err, "Failed to fetch newsletters")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: all})
}

func (h *Handler) newsletterContent(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Newsletter.Content(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, "Failed to fetch newsletter content")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: c})
}

type subscribeRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (h *Handler) newsletterSubscribe(w http.ResponseWriter, r *http.Request) {
	var in subscribeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Error: "Invalid request body"})
		return
	}
	res, err := h.svc.Newsletter.Subscribe(r.Context(), in.Email, strings.TrimSpace(in.Name))
	if err != nil {
		writeError(w, err, "Subscription failed")
		return
	}
	msg := "Subscribed to the newsletter!"
	if res.Updated {
		msg = "Your details were updated!"
	}
	writeJSON(w, http.StatusOK, envelope{Data: map[string]string{"message": msg}})
}

func (h *Handler) podcastLatest(w http.ResponseWriter, r *http.Request) {
	ep, err := h.svc.Podcast.Latest(r.Context())
	if err != nil {
		writeError(w, err, "Failed to fetch podcast episode")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: ep})
}

func (h *Handler) podcastEpisodes(w http.ResponseWriter, r *http.Request) {
	eps, err := h.svc.Podcast.Episodes(r.Context())
	if err != nil {
		writeError(w, err, "Failed to fetch podcast episodes")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: eps})
}

func (h *Handler) youtubePlaylist(w http.ResponseWriter, r *http.Request) {
	videos, err := h.svc.YouTube.Playlist(r.Context())
	if err != nil {
		writeError(w, err, "Failed to fetch YouTube playlist")
		return
	}
	writeJSON(w, http.StatusOK, videosEnvelope{Videos: videos})
}

func (h *Handler) youtubePlaylistDetails(w http.ResponseWriter, r *http.Request) {
	videos, err := h.svc.YouTube.PlaylistDetails(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, "Failed to fetch videos")
		return
	}
	writeJSON(w, http.StatusOK, videosEnvelope{Videos: videos})
}

// The guides and projects routes answer with a bare array.

func (h *Handler) youtubeGuides(w http.ResponseWriter, r *http.Request) {
	videos, err := h.svc.YouTube.Guides(r.Context())
	if err != nil {
		writeError(w, err, "Failed to fetch guides")
		return
	}
	writeJSON(w, http.StatusOK, videos)
}

func (h *Handler) youtubeProjects(w http.ResponseWriter, r *http.Request) {
	videos, err := h.svc.YouTube.Projects(r.Context())
	if err != nil {
		writeError(w, err, "Failed to fetch projects")
		return
	}
	writeJSON(w, http.StatusOK, videos)
}

type envelope struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type videosEnvelope struct {
	Videos []content.Video `json:"videos"`
}

// statusMessages are the client-facing texts for upstream failures that pass
// through with their own status.
var statusMessages = map[int]string{
	http.StatusUnauthorized:        "Authentication with the provider failed",
	http.StatusForbidden:           "Not permitted by the provider",
	http.StatusNotFound:            "Not found",
	http.StatusUnprocessableEntity: "The submitted data is invalid",
	http.StatusTooManyRequests:     "Too many requests; try again in a few minutes",
}

// writeError maps err to a status and a message. fallback is used for
// anything unexpected.
func writeError(w http.ResponseWriter, err error, fallback string) {
	status, msg := classify(err, fallback)
	if status >= http.StatusInternalServerError {
		logger.Errorf("%s: %v", fallback, err)
	} else {
		logger.Warnf("%s: %v", fallback, err)
	}
	writeJSON(w, status, envelope{Error: msg})
}

func classify(err error, fallback string) (int, string) {
	var uerr *content.UpstreamError
	switch {
	case errors.Is(err, content.ErrMissingEmail):
		return http.StatusBadRequest, "Please enter an email address"
	case errors.Is(err, content.ErrInvalidEmail):
		return http.StatusUnprocessableEntity, "The email address is invalid"
	case errors.Is(err, content.ErrAlreadySubscribed):
		return http.StatusUnprocessableEntity, "The email address is already subscribed"
	case errors.Is(err, content.ErrNotFound):
		return http.StatusNotFound, "No items found"
	case errors.Is(err, content.ErrInvalidEpisode):
		return http.StatusInternalServerError, "Invalid podcast episode data"
	case errors.Is(err, content.ErrNotConfigured):
		return http.StatusInternalServerError, "Service configuration error"
	case errors.As(err, &uerr):
		if msg, ok := statusMessages[uerr.StatusCode]; ok {
			return uerr.StatusCode, msg
		}
	}
	return http.StatusInternalServerError, fallback
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("encode response: %v", err)
	}
}
