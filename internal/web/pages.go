// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

package web

import (
	"html/template"
	"net/http"

	"github.com/lrm2e/labsite/internal/auth"
	"github.com/lrm2e/labsite/internal/guard"
	"github.com/lrm2e/labsite/pkg/errutil"
)

// shellTemplate is the document the single-page client boots from.
var shellTemplate = template.Must(template.New("shell").Parse(`<!doctype html>
<html lang="fr">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>LRM2E</title>
</head>
<body>
<div id="root" data-path="{{.Path}}" data-decision="{{.Decision}}"></div>
<script type="module" src="/assets/main.js"></script>
</body>
</html>
`))

type shellData struct {
	Path     string
	Decision string
}

type guardResponse struct {
	Path     string         `json:"path"`
	Decision guard.Decision `json:"decision"`
	Location string         `json:"location,omitempty"`
}

// viewerState resolves the viewer for the guard. A store failure leaves the
// state loading so the client keeps its neutral view and retries.
func (s *Server) viewerState(r *http.Request) guard.State {
	token := s.cookies.Token(r)
	if token == "" {
		return guard.State{}
	}
	user, _, err := s.sessions.Resolve(r.Context(), token)
	if err == nil {
		return guard.State{User: user}
	}
	if !errutil.HasCode(err, auth.CodeUnauthenticated) {
		errutil.LogErrorContext(r.Context(), s.logger, "failed to resolve viewer", err)
		return guard.State{Loading: true}
	}
	return guard.State{}
}

func (s *Server) decide(r *http.Request, path string) guard.Decision {
	d := s.guard.Decide(path, s.viewerState(r))
	s.metrics.RecordGuardDecision(d.String())
	return d
}

func (s *Server) handleGuard(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}
	d := s.decide(r, path)
	writeJSON(w, http.StatusOK, guardResponse{Path: path, Decision: d, Location: d.Location()})
}

// handlePage serves the client shell, or a 303 to wherever the guard sends
// the viewer.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	d := s.decide(r, r.URL.Path)
	if loc := d.Location(); loc != "" {
		http.Redirect(w, r, loc, http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := shellTemplate.Execute(w, shellData{Path: r.URL.Path, Decision: d.String()}); err != nil {
		errutil.LogErrorContext(r.Context(), s.logger, "failed to render page shell", err)
	}
}
