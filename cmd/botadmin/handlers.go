package main

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"whatsbot/internal/errors"
	"whatsbot/internal/preferences"
	"whatsbot/internal/tracing"
	"whatsbot/internal/validation"
	"whatsbot/pkg/botapi"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const maxRequestBodyBytes = 64 << 10

type healthResponse struct {
	Status  string `json:"status"`
	Mode    string `json:"mode"`
	Backend string `json:"backend"`
	Clients int    `json:"clients"`
}

type broadcastRequest struct {
	ContactIDs []string `json:"contact_ids"`
	Message    string   `json:"message"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type refreshResponse struct {
	Invalidated int `json:"invalidated"`
}

// handleHealth always answers 200; the backend state is reported in the body.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Mode: s.cfg.Mode, Backend: "healthy", Clients: s.hub.Peers()}

		status, err := s.dashboard.Backend().Health(r.Context())
		switch {
		case err != nil:
			resp.Backend = "unreachable"
			s.errLog.LogWarn(err, "Backend health check failed", logrus.Fields{
				"request_id": tracing.GetRequestID(r.Context()),
			})
		case !status.Healthy():
			resp.Backend = status.Status
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleSnapshot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.dashboard.Snapshot(r.Context()))
	}
}

func (s *Server) handlePanel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		panel, err := s.dashboard.Panel(r.Context(), mux.Vars(r)["panel"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, panel)
	}
}

func (s *Server) handleContacts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := botapi.ContactStatus(r.URL.Query().Get("status"))
		if status != "" && !status.Valid() {
			s.writeError(w, r, errors.NewValidationError("status", string(status), "status must be active, paused or blocked"))
			return
		}

		rows, err := s.dashboard.Contacts(r.Context(), status)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

func (s *Server) handleTraining() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := s.dashboard.Training(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func (s *Server) handleUpdateContact() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var update botapi.ContactUpdate
		if err := decodeJSON(r, &update); err != nil {
			s.writeError(w, r, err)
			return
		}

		contact, err := s.dashboard.UpdateContact(r.Context(), mux.Vars(r)["id"], update)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, contact)
	}
}

func (s *Server) handleSendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendMessageRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validation.ValidateMessageContent(req.Content); err != nil {
			s.writeError(w, r, err)
			return
		}

		if err := s.dashboard.SendMessage(r.Context(), mux.Vars(r)["id"], req.Content); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, botapi.StatusMessage{Message: "Mensaje enviado"})
	}
}

func (s *Server) handleBroadcast() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req broadcastRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validation.ValidateBroadcast(req.ContactIDs, req.Message); err != nil {
			s.writeError(w, r, err)
			return
		}

		result, err := s.dashboard.Broadcast(r.Context(), req.ContactIDs, req.Message)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleGetPreference() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := mux.Vars(r)["key"]
		raw, err := s.prefs.Raw(r.Context(), key)
		if stderrors.Is(err, preferences.ErrNotFound) {
			s.writeError(w, r, errors.NewNotFoundError("preference", key))
			return
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeRawJSON(w, http.StatusOK, raw)
	}
}

func (s *Server) handlePutPreference() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := validation.ValidateHTTPRequestSize(r, maxRequestBodyBytes); err != nil {
			s.writeError(w, r, err)
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
		if err != nil {
			s.writeError(w, r, errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to read request body"))
			return
		}

		key := mux.Vars(r)["key"]
		if err := s.prefs.SetRaw(r.Context(), key, body); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeRawJSON(w, http.StatusOK, body)
	}
}

func (s *Server) handleRefresh() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := s.dashboard.Refresh()
		s.logger.WithFields(logrus.Fields{
			"request_id":  tracing.GetRequestID(r.Context()),
			"invalidated": n,
		}).Info("Dashboard cache invalidated")
		writeJSON(w, http.StatusOK, refreshResponse{Invalidated: n})
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := tracing.GetRequestID(r.Context())
	status := errors.HTTPStatusCode(err)

	fields := logrus.Fields{
		"request_id": requestID,
		"method":     r.Method,
		"url":        r.URL.Path,
	}
	if status >= http.StatusInternalServerError {
		s.errLog.LogRetryableError(err, "Request failed", fields)
	} else {
		s.errLog.LogWarn(err, "Request rejected", fields)
	}

	writeJSON(w, status, errors.ToHTTPResponse(err, requestID))
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := validation.ValidateHTTPRequestSize(r, maxRequestBodyBytes); err != nil {
		return err
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid JSON body").
			WithUserMessage("El cuerpo de la petición no es JSON válido")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRawJSON(w http.ResponseWriter, status int, raw []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}
