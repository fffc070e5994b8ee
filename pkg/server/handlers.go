package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/finverse/finverse/pkg/canvas"
	"github.com/finverse/finverse/pkg/domain"
	"github.com/finverse/finverse/pkg/gallery"
	"github.com/finverse/finverse/pkg/policy"
	"github.com/finverse/finverse/pkg/session"
)

type healthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	model := "unconfigured"
	if s.deps.Loader != nil {
		model = s.deps.Loader.State().String()
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Model: model})
}

type createSessionRequest struct {
	ClientID string `json:"client_id"`
}

type sessionResponse struct {
	ID       string           `json:"id"`
	ClientID string           `json:"client_id"`
	Width    int              `json:"width"`
	Height   int              `json:"height"`
	Pen      canvas.Pen       `json:"pen"`
	State    domain.GateState `json:"state"`
}

func newSessionResponse(sess *session.Session) sessionResponse {
	w, h := sess.Size()
	return sessionResponse{
		ID:       sess.ID(),
		ClientID: sess.ClientID(),
		Width:    w,
		Height:   h,
		Pen:      sess.Pen(),
		State:    sess.State(),
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.deps.Sessions.Create(strings.TrimSpace(req.ClientID))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(sess))
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.deps.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleSessionState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sessions.Delete(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetPen(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	pen := sess.Pen()
	if err := decodeJSON(r, &pen); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := sess.SetPen(pen); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Pen())
}

// Pointer event types.
const (
	pointerDown  = "down"
	pointerMove  = "move"
	pointerUp    = "up"
	pointerLeave = "leave"
)

type pointerRequest struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

func (s *Server) handlePointer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req pointerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	p := canvas.Point{X: req.X, Y: req.Y}
	switch req.Type {
	case pointerDown:
		sess.PointerDown(p)
	case pointerMove:
		sess.PointerMove(p)
	case pointerLeave, "cancel":
		sess.PointerLeave()
	case pointerUp:
		state, err := sess.PointerUp(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
		return
	default:
		s.writeError(w, r, fmt.Errorf("%w: unknown pointer event %q", domain.ErrInvalidInput, req.Type))
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

func (s *Server) handleEdit(edit func(*session.Session, context.Context) (domain.GateState, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.session(w, r)
		if !ok {
			return
		}
		state, err := edit(sess, r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

func (s *Server) handleCanvas(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := sess.CanvasPNG(w); err != nil {
		s.logger.WarnContext(r.Context(), "canvas encode failed", "session_id", sess.ID(), "error", err)
	}
}

type storageValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Server) handleStorageList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Store.All(r.Context(), chi.URLParam(r, "client"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleStorageGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	v, err := s.deps.Store.Get(r.Context(), chi.URLParam(r, "client"), key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, storageValue{Key: key, Value: v})
}

func (s *Server) handleStoragePut(w http.ResponseWriter, r *http.Request) {
	var req storageValue
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.Key = chi.URLParam(r, "key")
	if err := s.deps.Store.Set(r.Context(), chi.URLParam(r, "client"), req.Key, req.Value); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleStorageDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Delete(r.Context(), chi.URLParam(r, "client"), chi.URLParam(r, "key")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleContracts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Addresses == nil {
		writeJSON(w, http.StatusOK, map[string]string{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Addresses.Addresses())
}

func (s *Server) handleContract(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if s.deps.Addresses == nil {
		s.writeError(w, r, fmt.Errorf("%w: %s", domain.ErrAddressNotFound, name))
		return
	}
	addr, err := s.deps.Addresses.RequireAddress(name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name, "address": addr})
}

type actionRequest struct {
	policy.Input
	// SessionID names the drawing session whose gate decision a mint is
	// checked against.
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleActionCheck(w http.ResponseWriter, r *http.Request) {
	if s.deps.Policy == nil {
		s.writeError(w, r, errNotConfigured)
		return
	}
	var req actionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	// Gate acceptance is never taken from the client.
	req.GateAccepted = false
	if req.SessionID != "" {
		sess, err := s.deps.Sessions.Get(req.SessionID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if d, ok := sess.Decision(); ok {
			req.GateAccepted = d.IsFish
		}
	}

	d, err := s.deps.Policy.Evaluate(r.Context(), req.Input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type profileResponse struct {
	ClientID    string `json:"client_id"`
	InitScore   int    `json:"init_score"`
	MetadataURI string `json:"metadata_uri,omitempty"`
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	client := chi.URLParam(r, "client")
	resp := profileResponse{ClientID: client}

	p, err := s.deps.Store.Get(r.Context(), client, domain.KeyFishProbability)
	switch {
	case err == nil:
		resp.InitScore = gallery.InitScore(p)
	case !errors.Is(err, domain.ErrKeyNotFound):
		s.writeError(w, r, err)
		return
	}

	uri, err := s.deps.Store.Get(r.Context(), client, domain.KeyLastMetadata)
	switch {
	case err == nil:
		resp.MetadataURI = uri
	case !errors.Is(err, domain.ErrKeyNotFound):
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	if s.deps.Gallery == nil {
		s.writeError(w, r, errNotConfigured)
		return
	}
	list, err := s.deps.Gallery.Load(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	gallery.MarkHot(list, s.deps.HotCount)
	writeJSON(w, http.StatusOK, gallery.Sort(list, gallery.ParseSortKey(r.URL.Query().Get("sort"))))
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	if s.deps.Gallery == nil || s.deps.Market == nil {
		s.writeError(w, r, errNotConfigured)
		return
	}
	items, err := s.deps.Gallery.Market(r.Context(), s.deps.Market, r.URL.Query().Get("viewer"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleRewards(w http.ResponseWriter, r *http.Request) {
	if s.deps.Gallery == nil || s.deps.Claims == nil {
		s.writeError(w, r, errNotConfigured)
		return
	}
	summary, err := s.deps.Gallery.Rewards(r.Context(), s.deps.Claims, chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
