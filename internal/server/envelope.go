// internal/server/envelope.go
package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-driver/internal/command"
)

// Response is the wire protocol envelope for every reply.
type Response struct {
	SessionID *string `json:"sessionId"`
	Status    int     `json:"status"`
	Value     any     `json:"value"`
}

// ErrorValue is the value of a failed response.
type ErrorValue struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func sessionRef(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

func (s *Server) respond(w http.ResponseWriter, httpStatus int, resp Response) {
	buf, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("Failed to encode response.", zap.Error(err))
		httpStatus = http.StatusInternalServerError
		buf, _ = json.Marshal(Response{
			SessionID: resp.SessionID,
			Status:    command.UnhandledNative.Code(),
			Value:     ErrorValue{Error: command.UnhandledNative.String(), Message: "result could not be encoded: " + err.Error()},
		})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(httpStatus)
	if _, err := w.Write(buf); err != nil {
		s.logger.Debug("Client went away before the response was written.", zap.Error(err))
	}
}

func (s *Server) respondValue(w http.ResponseWriter, sessionID string, value any) {
	s.respond(w, http.StatusOK, Response{SessionID: sessionRef(sessionID), Status: command.Success.Code(), Value: value})
}

func (s *Server) respondError(w http.ResponseWriter, sessionID string, err error) {
	e := command.AsError(err)
	msg := e.Message
	if msg == "" {
		msg = e.Status.String()
	}
	s.respond(w, e.Status.HTTPStatus(), Response{
		SessionID: sessionRef(sessionID),
		Status:    e.Status.Code(),
		Value:     ErrorValue{Error: e.Status.String(), Message: msg},
	})
}
