package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"golang.org/x/net/websocket"

	"github.com/roach88/bloom/internal/shared"
	"github.com/roach88/bloom/internal/state"
)

const (
	maxDecodeErrorsPerConn = 5
	maxFrameBytes          = 4 << 10
)

// serveWS runs one websocket client: it sends the tasks, plant and status
// views, then applies incoming action frames until the client leaves.
func (s *Server) serveWS(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()
	conn.MaxPayloadBytes = maxFrameBytes

	p := &peer{id: s.ids.NewID(), conn: conn}
	logger := s.logger.With("client", p.id)

	s.hub.add(p)
	defer s.hub.remove(p.id)
	logger.Info("websocket client connected", "clients", s.hub.len())
	defer logger.Info("websocket client disconnected")

	st := shared.Read(s.access, func(e *state.Engine) state.Status { return e.Status() })
	for _, k := range shared.Kinds {
		if err := s.send(p, frameFor(k, st)); err != nil {
			return
		}
	}

	decodeErrors := 0
	for {
		var data []byte
		if err := websocket.Message.Receive(conn, &data); err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("websocket receive failed", "error", err)
			}
			return
		}

		var req actionRequest
		if err := json.Unmarshal(data, &req); err != nil {
			decodeErrors++
			_ = s.send(p, errorFrame{Type: "error", Error: "invalid JSON", Code: string(state.ErrCodeInvalidArgument)})
			if decodeErrors >= maxDecodeErrorsPerConn {
				logger.Warn("closing websocket after repeated invalid frames")
				return
			}
			continue
		}
		decodeErrors = 0

		if err := s.handleMessage(p, req, logger); err != nil {
			return
		}
	}
}

func (s *Server) handleMessage(p *peer, req actionRequest, logger *slog.Logger) error {
	switch req.Action {
	case "getStatus":
		st := shared.Read(s.access, func(e *state.Engine) state.Status { return e.Status() })
		return s.send(p, frameFor(shared.KindStatus, st))
	case "getTasks":
		st := shared.Read(s.access, func(e *state.Engine) state.Status { return e.Status() })
		return s.send(p, frameFor(shared.KindTasks, st))
	}

	requestID := s.ids.NewID()
	res, err := s.apply(req, lookupAction)
	if err != nil {
		_, code := errorStatus(err)
		logger.Debug("action rejected", "action", req.Action, "request_id", requestID, "code", code, "error", err)
		return s.send(p, errorFrame{
			Type:      "error",
			Action:    req.Action,
			RequestID: requestID,
			Error:     err.Error(),
			Code:      code,
		})
	}

	logger.Debug("action applied", "action", req.Action, "request_id", requestID, "task_id", res.TaskID)
	return s.send(p, ackFrame{Type: "ack", Action: req.Action, RequestID: requestID, TaskID: res.TaskID})
}

func (s *Server) send(p *peer, frame any) error {
	b, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error("encode websocket frame", "error", err)
		return err
	}
	return p.write(b)
}
