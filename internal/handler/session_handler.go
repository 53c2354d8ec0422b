package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"lacocina/onboarding/internal/service"
	"lacocina/onboarding/internal/session"
	"lacocina/onboarding/pkg/response"
)

type SessionHandler struct {
	sessionService service.SessionService
}

func NewSessionHandler(sessionService service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

type SaveSessionRequest struct {
	LastStep       session.Step `json:"lastStep" binding:"gte=1,lte=3"`
	LastUpdate     *int64       `json:"lastUpdate,omitempty"`
	Form1Completed bool         `json:"form1Completed"`
	Form2Completed bool         `json:"form2Completed"`
}

func (h *SessionHandler) List(c *gin.Context) {
	clientID, err := getClientID(c)
	if err != nil {
		response.Unauthorized(c, "invalid client context")
		return
	}
	response.Success(c, h.sessionService.List(c.Request.Context(), clientID))
}

func (h *SessionHandler) Get(c *gin.Context) {
	clientID, err := getClientID(c)
	if err != nil {
		response.Unauthorized(c, "invalid client context")
		return
	}

	rec, err := h.sessionService.Get(c.Request.Context(), clientID, c.Param("id"))
	if err != nil {
		writeSessionError(c, err)
		return
	}
	response.Success(c, rec)
}

// Save upserts the record for :id; the body replaces every field.
func (h *SessionHandler) Save(c *gin.Context) {
	clientID, err := getClientID(c)
	if err != nil {
		response.Unauthorized(c, "invalid client context")
		return
	}

	var req SaveSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	rec := session.Record{
		ID:             c.Param("id"),
		LastStep:       req.LastStep,
		Form1Completed: req.Form1Completed,
		Form2Completed: req.Form2Completed,
	}
	if req.LastUpdate != nil {
		rec.LastUpdate = time.UnixMilli(*req.LastUpdate).UTC()
	}

	if err := h.sessionService.Save(c.Request.Context(), clientID, rec); err != nil {
		writeSessionError(c, err)
		return
	}
	response.Success(c, rec)
}

// Enter creates or resumes the record for :id and returns the step to open.
func (h *SessionHandler) Enter(c *gin.Context) {
	clientID, err := getClientID(c)
	if err != nil {
		response.Unauthorized(c, "invalid client context")
		return
	}

	res, err := h.sessionService.Enter(c.Request.Context(), clientID, c.Param("id"))
	if err != nil {
		writeSessionError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *SessionHandler) CompleteForm(c *gin.Context) {
	clientID, err := getClientID(c)
	if err != nil {
		response.Unauthorized(c, "invalid client context")
		return
	}

	form, err := strconv.Atoi(c.Param("form"))
	if err != nil {
		response.BadRequest(c, service.ErrInvalidForm.Error())
		return
	}

	rec, err := h.sessionService.CompleteForm(c.Request.Context(), clientID, c.Param("id"), form)
	if err != nil {
		writeSessionError(c, err)
		return
	}
	response.Success(c, rec)
}

func writeSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, session.ErrInvalidSession),
		errors.Is(err, service.ErrInvalidForm):
		response.BadRequest(c, err.Error())
	default:
		writeStorageError(c, err)
	}
}
