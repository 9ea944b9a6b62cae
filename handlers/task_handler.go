package handlers

import (
	"net/http"

	core "taskmarket-backend/core/marketplace"
	"taskmarket-backend/metrics"
	"taskmarket-backend/models"
)

// TaskHandler handles task lifecycle requests
type TaskHandler struct {
	*BaseHandler
	engine *core.Engine
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(engine *core.Engine) *TaskHandler {
	return &TaskHandler{BaseHandler: NewBaseHandler(), engine: engine}
}

// HandleTasks serves GET (read one task) and POST (create task).
func (h *TaskHandler) HandleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleGetTask(w, r)
	case http.MethodPost:
		h.handlePostTask(w, r)
	default:
		h.sendMethodNotAllowed(w)
	}
}

func (h *TaskHandler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	addr, err := h.addressQuery(r, "task")
	if err != nil {
		h.sendBadRequest(w, err.Error())
		return
	}

	task, err := h.engine.Task(r.Context(), addr)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, task)
}

func (h *TaskHandler) handlePostTask(w http.ResponseWriter, r *http.Request) {
	var req models.PostTaskRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendBadRequest(w, "invalid JSON body")
		return
	}

	specs := make([]core.MilestoneSpec, len(req.Milestones))
	for i, m := range req.Milestones {
		specs[i] = core.MilestoneSpec{Description: m.Description, Amount: m.Amount}
	}

	task, err := h.engine.PostTask(r.Context(), req.Caller, core.PostTaskParams{
		Title:       req.Title,
		Description: req.Description,
		Budget:      req.Budget,
		Milestones:  specs,
		Deadline:    req.Deadline,
	})
	metrics.RecordOperation("post_task", err)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, task)
}

// HandleUpdateTask patches mutable fields of an open task.
func (h *TaskHandler) HandleUpdateTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendMethodNotAllowed(w)
		return
	}

	var req models.UpdateTaskRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendBadRequest(w, "invalid JSON body")
		return
	}

	task, err := h.engine.UpdateTask(r.Context(), req.Caller, req.Task, core.UpdateTaskParams{
		Description: req.Description,
		Budget:      req.Budget,
		Deadline:    req.Deadline,
	})
	metrics.RecordOperation("update_task", err)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, task)
}

// HandleCancelTask cancels an unescrowed task.
func (h *TaskHandler) HandleCancelTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendMethodNotAllowed(w)
		return
	}

	var req models.CancelTaskRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendBadRequest(w, "invalid JSON body")
		return
	}

	task, err := h.engine.CancelTask(r.Context(), req.Caller, req.Task)
	metrics.RecordOperation("cancel_task", err)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, task)
}
