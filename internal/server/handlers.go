// internal/server/handlers.go
package server

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-driver/internal/automation"
	"github.com/xkilldash9x/scalpel-driver/internal/command"
)

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.respondError(w, "", command.Errorf(command.UnsupportedOperation, "%s %s does not match a known command", r.Method, r.URL.Path))
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.respondError(w, "", command.Errorf(command.UnknownMethod, "%s is not supported for %s", r.Method, r.URL.Path))
}

// -- Process-wide endpoints --

type statusValue struct {
	Ready bool      `json:"ready"`
	Build BuildInfo `json:"build"`
	OS    osInfo    `json:"os"`
}

type osInfo struct {
	Name    string `json:"name"`
	Arch    string `json:"arch"`
	Version string `json:"version"`
}

// osVersion reads the kernel release where the platform exposes it.
func osVersion() string {
	if b, err := os.ReadFile("/proc/sys/kernel/osrelease"); err == nil {
		return strings.TrimSpace(string(b))
	}
	return "unknown"
}

// handleStatus never touches a session, so its reply is the same however
// many sessions are open or busy.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondValue(w, "", statusValue{
		Ready: true,
		Build: s.build,
		OS:    osInfo{Name: runtime.GOOS, Arch: runtime.GOARCH, Version: osVersion()},
	})
}

type sessionSummary struct {
	ID           string         `json:"id"`
	Capabilities map[string]any `json:"capabilities"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	list := make([]sessionSummary, 0, len(s.sessions))
	for id, sess := range s.sessions {
		list = append(list, sessionSummary{ID: id, Capabilities: sess.Capabilities()})
	}
	s.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	s.respondValue(w, "", list)
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	s.respondValue(w, "", "shutting down")
	s.RequestShutdown()
}

// -- Session lifecycle --

func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(r)
	if err != nil {
		s.respondError(w, "", err)
		return
	}
	desired, err := desiredCapabilities(p)
	if err != nil {
		s.respondError(w, "", err)
		return
	}
	if err := s.reserve(); err != nil {
		s.respondError(w, "", err)
		return
	}

	sess, err := automation.Open(r.Context(), automation.Options{
		Launcher: s.launcher,
		Logger:   s.logger,
		Observer: s.metrics,
		Timeouts: automation.Timeouts{
			ImplicitWait: s.sessionCfg.ImplicitWait,
			PageLoad:     s.sessionCfg.PageLoadTimeout,
			Script:       s.sessionCfg.ScriptTimeout,
		},
		SettleInterval: s.sessionCfg.SettleInterval,
		StartupTimeout: s.sessionCfg.StartupTimeout,
		Desired:        desired,
	})
	if err != nil {
		s.unreserve()
		s.logger.Warn("Session could not be created.", zap.Error(err))
		s.respondError(w, "", command.Errorf(command.SessionNotCreated, "%v", err))
		return
	}
	if !s.insert(sess) {
		s.closeDetached(sess)
		s.respondError(w, "", command.Errorf(command.SessionNotCreated, "the server is shutting down"))
		return
	}
	s.respondValue(w, sess.ID(), sess.Capabilities())
}

func (s *Server) handleQuit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")
	sess, ok := s.remove(id)
	if !ok {
		s.respondError(w, id, noSuchSession(id))
		return
	}
	ctx, cancel := s.stopContext()
	defer cancel()
	if err := sess.Close(ctx); err != nil {
		s.respondError(w, id, err)
		return
	}
	s.respondValue(w, id, nil)
}

func (s *Server) closeDetached(sess *automation.Session) {
	ctx, cancel := s.stopContext()
	defer cancel()
	if err := sess.Close(ctx); err != nil {
		s.logger.Warn("Failed to close session.", zap.String("session_id", sess.ID()), zap.Error(err))
	}
}

func (s *Server) stopContext() (context.Context, context.CancelFunc) {
	if s.cfg.ShutdownTimeout > 0 {
		return context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	}
	return context.WithCancel(context.Background())
}

func noSuchSession(id string) error {
	return command.Errorf(command.NoSuchSession, "no active session with id %q", id)
}

// -- Commands --

// handleCommand runs one catalog command on the addressed session. Argument
// errors are reported before the session's channel is touched.
func (s *Server) handleCommand(id command.ID) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionId")
		sess, ok := s.lookup(sessionID)
		if !ok {
			s.respondError(w, sessionID, noSuchSession(sessionID))
			return
		}
		p, err := readParams(r)
		if err != nil {
			s.respondError(w, sessionID, err)
			return
		}
		in, err := translate(id, p)
		if err != nil {
			s.respondError(w, sessionID, err)
			return
		}

		ctx := r.Context()
		if s.cfg.CommandTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.CommandTimeout)
			defer cancel()
		}
		out, err := sess.Execute(ctx, id, func(dst *command.Inputs) { *dst = in })
		if err != nil {
			s.respondError(w, sessionID, err)
			return
		}
		if e := out.Err(); e != nil {
			s.respondError(w, sessionID, e)
			return
		}
		s.respondValue(w, sessionID, out.Value())
	}
}
