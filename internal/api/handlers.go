package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/FocuswithJustin/enriched/core/builder"
	"github.com/FocuswithJustin/enriched/core/cache"
	"github.com/FocuswithJustin/enriched/core/document"
	"github.com/FocuswithJustin/enriched/core/errors"
	"github.com/FocuswithJustin/enriched/core/store"
	"github.com/FocuswithJustin/enriched/core/transcode"
	"github.com/FocuswithJustin/enriched/internal/logging"
)

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ConvertRequest is the body of the conversion endpoints and the payload
// of a WebSocket frame.
type ConvertRequest struct {
	ID     string          `json:"id,omitempty"`
	Op     string          `json:"op,omitempty"`
	Markup string          `json:"markup,omitempty"`
	Model  json.RawMessage `json:"model,omitempty"`
}

// ConvertResult is the outcome of one conversion.
type ConvertResult struct {
	ID     string          `json:"id,omitempty"`
	Markup string          `json:"markup,omitempty"`
	Model  json.RawMessage `json:"model,omitempty"`
	Hash   string          `json:"hash,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// HealthInfo is the health check response.
type HealthInfo struct {
	Status  string       `json:"status"`
	Version string       `json:"version"`
	Uptime  string       `json:"uptime"`
	Clients int          `json:"clients"`
	Models  *cache.Stats `json:"models,omitempty"`
	Markups *cache.Stats `json:"markups,omitempty"`
}

// DocumentInfo is a stored document as returned by the document endpoints.
type DocumentInfo struct {
	Name      string          `json:"name"`
	Hash      string          `json:"hash"`
	Markup    string          `json:"markup"`
	Model     json.RawMessage `json:"model,omitempty"`
	UpdatedAt string          `json:"updated_at"`
}

// StoreEvent is broadcast to WebSocket clients when a stored document
// changes.
type StoreEvent struct {
	Event string `json:"event"` // "stored" or "deleted"
	Name  string `json:"name"`
	Hash  string `json:"hash,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := HealthInfo{
		Status:  "healthy",
		Version: s.cfg.Version,
		Uptime:  time.Since(s.start).Round(time.Second).String(),
		Clients: s.hub.Len(),
	}
	if c := s.tr.Cache(); c != nil {
		models, markups := c.Stats()
		info.Models, info.Markups = &models, &markups
	}
	respond(w, r, http.StatusOK, info)
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	res, err := s.toModel(r.Context(), req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, res)
}

func (s *Server) handleMarkup(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	res, err := s.toMarkup(r.Context(), req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, res)
}

// toModel builds req.Markup and returns the model JSON.
func (s *Server) toModel(ctx context.Context, req ConvertRequest) (*ConvertResult, error) {
	doc, err := s.tr.FromMarkup(ctx, req.Markup, builder.Options{})
	if err != nil {
		return nil, err
	}
	model, err := doc.MarshalJSON()
	if err != nil {
		return nil, errors.Wrap(err, "encode model")
	}
	return &ConvertResult{ID: req.ID, Model: model, Hash: doc.Hash()}, nil
}

// toMarkup decodes req.Model and serializes it.
func (s *Server) toMarkup(ctx context.Context, req ConvertRequest) (*ConvertResult, error) {
	if len(req.Model) == 0 {
		return nil, errors.NewValidation("model", "is required")
	}
	doc, err := document.Decode(req.Model)
	if err != nil {
		return nil, err
	}
	return &ConvertResult{ID: req.ID, Markup: s.tr.ToMarkup(ctx, doc), Hash: doc.Hash()}, nil
}

// roundTrip normalizes req.Markup and returns both forms.
func (s *Server) roundTrip(ctx context.Context, req ConvertRequest) (*ConvertResult, error) {
	markup, doc, err := s.tr.RoundTrip(ctx, req.Markup)
	if err != nil {
		return nil, err
	}
	model, err := doc.MarshalJSON()
	if err != nil {
		return nil, errors.Wrap(err, "encode model")
	}
	return &ConvertResult{ID: req.ID, Markup: markup, Model: model, Hash: doc.Hash()}, nil
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	entries, err := s.cfg.Store.List(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	respondList(w, r, entries, len(entries))
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	rec, err := s.cfg.Store.Get(r.Context(), r.PathValue("name"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	info, err := documentInfo(rec)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, info)
}

func (s *Server) handlePutDocument(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	rec, err := s.cfg.Store.Put(r.Context(), r.PathValue("name"), req.Markup)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	info, err := documentInfo(rec)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	s.hub.Broadcast(StoreEvent{Event: "stored", Name: rec.Name, Hash: rec.Hash})
	respond(w, r, http.StatusOK, info)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.cfg.Store.Delete(r.Context(), name); err != nil {
		respondErr(w, r, err)
		return
	}
	s.hub.Broadcast(StoreEvent{Event: "deleted", Name: name})
	w.WriteHeader(http.StatusNoContent)
}

func documentInfo(rec *store.Record) (*DocumentInfo, error) {
	model, err := rec.Document.MarshalJSON()
	if err != nil {
		return nil, errors.Wrap(err, "encode model")
	}
	return &DocumentInfo{
		Name:      rec.Name,
		Hash:      rec.Hash,
		Markup:    rec.Markup,
		Model:     model,
		UpdatedAt: rec.UpdatedAt.Format(time.RFC3339),
	}, nil
}

// decodeRequest reads a ConvertRequest, answering the client itself when
// the body is too large or malformed.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (ConvertRequest, bool) {
	var req ConvertRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", err.Error())
			return req, false
		}
		respondError(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return req, false
	}
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_INPUT", "request body must be a JSON object: "+err.Error())
		return req, false
	}
	return req, true
}

// statusFor maps an error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "CANCELLED"
	case errors.Is(err, errors.ErrUnsupported):
		return http.StatusBadRequest, "UNSUPPORTED"
	case errors.Is(err, errors.ErrInternal):
		return http.StatusInternalServerError, "INTERNAL"
	}
	var (
		pe *errors.ParseError
		ve *errors.ValidationError
	)
	if errors.As(err, &pe) || errors.As(err, &ve) || errors.Is(err, errors.ErrInvalidInput) {
		return http.StatusBadRequest, "INVALID_INPUT"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func meta(r *http.Request) *APIMeta {
	return &APIMeta{
		RequestID: logging.GetRequestID(r.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func respond(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, status, APIResponse{Success: true, Data: data, Meta: meta(r)})
}

func respondList(w http.ResponseWriter, r *http.Request, data any, total int) {
	m := meta(r)
	m.Total = total
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data, Meta: m})
}

func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	respondError(w, r, status, code, err.Error())
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, APIResponse{
		Error: &APIError{Code: code, Message: message},
		Meta:  meta(r),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// op returns the handler for a WebSocket operation, or nil.
func (s *Server) op(name string) func(context.Context, ConvertRequest) (*ConvertResult, error) {
	switch name {
	case transcode.DirectionToModel:
		return s.toModel
	case transcode.DirectionToMarkup:
		return s.toMarkup
	case "roundtrip":
		return s.roundTrip
	}
	return nil
}
