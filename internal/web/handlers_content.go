// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

package web

import (
	"net/http"

	"github.com/lrm2e/labsite/internal/contact"
)

type contactCreated struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    contact.Message `json:"data"`
}

type contactList struct {
	Success bool              `json:"success"`
	Data    []contact.Message `json:"data"`
}

func (s *Server) handleContactSubmit(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeBody(w, r, contactSchema, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	msg, err := s.contacts.Submit(r.Context(), contact.Submission{
		Name:    req.Name,
		Email:   req.Email,
		Subject: req.Subject,
		Message: req.Message,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "contact message received", "message_id", msg.ID)
	writeJSON(w, http.StatusCreated, contactCreated{
		Success: true,
		Message: "Message sent successfully",
		Data:    msg,
	})
}

func (s *Server) handleContactList(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.contacts.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contactList{Success: true, Data: msgs})
}

func (s *Server) handleContactDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.contacts.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handlePublications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Publications(r.Context()))
}

func (s *Server) handleExperiments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Experiments(r.Context()))
}

func (s *Server) handleEquipment(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Equipment(r.Context()))
}
