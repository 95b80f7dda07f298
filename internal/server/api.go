package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/roach88/bloom/internal/shared"
	"github.com/roach88/bloom/internal/state"
)

const maxBodyBytes = 4 << 10

type statusResponse struct {
	State                  string    `json:"state"`
	TimeLeft               uint32    `json:"timeLeft"`
	TotalTime              uint32    `json:"totalTime"`
	WaitingForConfirmation bool      `json:"waitingForConfirmation"`
	ActiveTaskID           uint32    `json:"activeTaskId"`
	SelectedTaskID         uint32    `json:"selectedTaskId"`
	TaskName               *string   `json:"taskName"`
	Plant                  plantView `json:"plant"`
	Stats                  stats     `json:"stats"`
}

type stats struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

type tasksResponse struct {
	Tasks []state.Task `json:"tasks"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Action  string `json:"action,omitempty"`
	TaskID  uint32 `json:"taskId,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := shared.Read(s.access, func(e *state.Engine) state.Status { return e.Status() })

	sf := newStatusFrame(st)
	writeJSON(w, http.StatusOK, statusResponse{
		State:                  sf.State,
		TimeLeft:               sf.TimeLeft,
		TotalTime:              sf.TotalTime,
		WaitingForConfirmation: sf.WaitingForConfirmation,
		ActiveTaskID:           sf.ActiveTaskID,
		SelectedTaskID:         sf.SelectedTaskID,
		TaskName:               sf.TaskName,
		Plant:                  newPlantView(st.Plant),
		Stats:                  stats{Completed: st.Completed, Total: len(st.Tasks)},
	})
}

func (s *Server) handleTasks(w http.ResponseWriter, _ *http.Request) {
	tasks := shared.Read(s.access, func(e *state.Engine) []state.Task { return e.Tasks() })
	if tasks == nil {
		tasks = []state.Task{}
	}
	writeJSON(w, http.StatusOK, tasksResponse{Tasks: tasks})
}

func (s *Server) handleAddTask(w http.ResponseWriter, r *http.Request) {
	var tr taskRequest
	if !decodeBody(w, r, &tr) {
		return
	}
	res, err := s.apply(actionRequest{Action: "addTask", Task: &tr}, lookupAction)
	if err != nil {
		s.writeActionError(w, "addTask", err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Action: "addTask", TaskID: res.TaskID})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Action == "selectTask" && req.TaskID == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid taskId", Code: string(state.ErrCodeInvalidArgument)})
		return
	}

	res, err := s.apply(req, restAction)
	if err != nil {
		s.writeActionError(w, req.Action, err)
		return
	}
	s.logger.Debug("action applied", "action", req.Action, "task_id", res.TaskID)
	writeJSON(w, http.StatusOK, successResponse{Success: true, Action: req.Action})
}

func (s *Server) writeActionError(w http.ResponseWriter, action string, err error) {
	status, code := errorStatus(err)
	s.logger.Debug("action rejected", "action", action, "code", code, "error", err)
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

// decodeBody reads a JSON body into v, answering 400 itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable body", Code: string(state.ErrCodeInvalidArgument)})
		return false
	}
	if len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no body", Code: string(state.ErrCodeInvalidArgument)})
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON", Code: string(state.ErrCodeInvalidArgument)})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
