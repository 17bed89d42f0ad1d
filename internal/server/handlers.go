// ABOUTME: HTTP handlers for user/emoji lookups, redirects, analytics and purge
// ABOUTME: Misses delegate to the upstream fetcher and populate the store

package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/taciturnaxolotl/cachet/internal/store"
	"github.com/taciturnaxolotl/cachet/internal/upstream"
)

// UserResponse is the JSON shape for user lookups.
type UserResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Pronouns    string `json:"pronouns,omitempty"`
	ImageURL    string `json:"image_url"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

// EmojiResponse is the JSON shape for emoji lookups.
type EmojiResponse struct {
	Name      string `json:"name"`
	Alias     string `json:"alias,omitempty"`
	ImageURL  string `json:"image_url"`
	ExpiresAt string `json:"expires_at"`
}

// PurgeResponse is the JSON shape for purge operations.
type PurgeResponse struct {
	Users  int64 `json:"users"`
	Emojis int64 `json:"emojis"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.store.HealthCheck(r.Context()) {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// lookupUser serves from the cache, falling back to the upstream on a miss.
// The fetched profile is cached before returning so the next read hits.
func (s *Server) lookupUser(w http.ResponseWriter, r *http.Request) (*UserResponse, bool) {
	externalID := store.NormalizeUserID(r.PathValue("id"))

	if rec, ok := s.store.GetUser(r.Context(), externalID); ok {
		return &UserResponse{
			ID:          rec.ExternalID,
			DisplayName: rec.DisplayName,
			Pronouns:    rec.Pronouns,
			ImageURL:    rec.ImageURL,
			ExpiresAt:   rec.ExpiresAt.Format(time.RFC3339),
		}, true
	}

	profile, err := s.fetcher.FetchUser(r.Context(), externalID)
	if errors.Is(err, upstream.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return nil, false
	}
	if err != nil {
		s.logger.Warn("upstream lookup failed", "external_id", externalID, "error", err)
		writeError(w, http.StatusBadGateway, "upstream lookup failed")
		return nil, false
	}

	s.store.InsertUser(r.Context(), store.UserUpsert{
		ExternalID:  profile.ID,
		DisplayName: profile.DisplayName,
		Pronouns:    profile.Pronouns,
		ImageURL:    profile.ImageURL,
		TTL:         s.opts.UserTTL,
	})

	// Mirror the expiry the insert computed so the first and the cached
	// response carry the same shape.
	ttl := s.opts.UserTTL
	if ttl <= 0 {
		ttl = store.DefaultUserTTL
	}

	return &UserResponse{
		ID:          store.NormalizeUserID(profile.ID),
		DisplayName: profile.DisplayName,
		Pronouns:    profile.Pronouns,
		ImageURL:    profile.ImageURL,
		ExpiresAt:   time.Now().UTC().Add(ttl).Format(time.RFC3339),
	}, true
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, ok := s.lookupUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUserRedirect(w http.ResponseWriter, r *http.Request) {
	user, ok := s.lookupUser(w, r)
	if !ok {
		return
	}
	if user.ImageURL == "" {
		writeError(w, http.StatusNotFound, "user has no image")
		return
	}
	http.Redirect(w, r, user.ImageURL, http.StatusFound)
}

func (s *Server) handleListEmojis(w http.ResponseWriter, r *http.Request) {
	emojis := s.store.ListEmojis(r.Context())

	out := make([]EmojiResponse, 0, len(emojis))
	for _, e := range emojis {
		out = append(out, EmojiResponse{
			Name:      e.Name,
			Alias:     e.Alias,
			ImageURL:  e.ImageURL,
			ExpiresAt: e.ExpiresAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// maxAliasHops bounds alias chains so a cycle can't loop a request forever.
const maxAliasHops = 5

// resolveEmoji follows alias records to the emoji that carries an image.
func (s *Server) resolveEmoji(r *http.Request, name string) (*store.EmojiRecord, bool) {
	for hop := 0; hop < maxAliasHops; hop++ {
		rec, ok := s.store.GetEmoji(r.Context(), name)
		if !ok {
			return nil, false
		}
		if rec.Alias == "" {
			return rec, true
		}
		name = rec.Alias
	}
	return nil, false
}

func (s *Server) handleGetEmoji(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.store.GetEmoji(r.Context(), r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, "emoji not found")
		return
	}
	writeJSON(w, http.StatusOK, EmojiResponse{
		Name:      rec.Name,
		Alias:     rec.Alias,
		ImageURL:  rec.ImageURL,
		ExpiresAt: rec.ExpiresAt.Format(time.RFC3339),
	})
}

func (s *Server) handleEmojiRedirect(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.resolveEmoji(r, r.PathValue("name"))
	if !ok || rec.ImageURL == "" {
		writeError(w, http.StatusNotFound, "emoji not found")
		return
	}
	http.Redirect(w, r, rec.ImageURL, http.StatusFound)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = parsed
	}

	writeJSON(w, http.StatusOK, s.analytics.Query(r.Context(), days))
}

func (s *Server) handlePurgeAll(w http.ResponseWriter, r *http.Request) {
	result := s.store.PurgeAll(r.Context())
	writeJSON(w, http.StatusOK, PurgeResponse{Users: result.Users, Emojis: result.Emojis})
}

func (s *Server) handlePurgeUser(w http.ResponseWriter, r *http.Request) {
	externalID := r.PathValue("id")
	if !s.store.PurgeUser(r.Context(), externalID) {
		writeError(w, http.StatusNotFound, "user not cached")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"purged": store.NormalizeUserID(externalID)})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("encoding response", "error", err)
	}
}

// writeError writes a JSON error body with the given status code.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
