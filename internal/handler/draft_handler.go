package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lacocina/onboarding/internal/service"
	"lacocina/onboarding/pkg/response"
)

type DraftHandler struct {
	draftService service.DraftService
}

func NewDraftHandler(draftService service.DraftService) *DraftHandler {
	return &DraftHandler{draftService: draftService}
}

type OpenDraftRequest struct {
	Initial json.RawMessage `json:"initial"`
}

type PutDraftRequest struct {
	Value json.RawMessage `json:"value" binding:"required"`
}

type PatchDraftRequest struct {
	Fields map[string]json.RawMessage `json:"fields" binding:"required"`
}

func (h *DraftHandler) Open(c *gin.Context) {
	clientID, err := getClientID(c)
	if err != nil {
		response.Unauthorized(c, "invalid client context")
		return
	}

	var req OpenDraftRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request body: "+err.Error())
			return
		}
	}

	key := c.Param("key")
	value, err := h.draftService.Open(c.Request.Context(), clientID, key, req.Initial)
	if err != nil {
		writeDraftError(c, err)
		return
	}
	response.Success(c, EntryResponse{Key: key, Value: value})
}

func (h *DraftHandler) Put(c *gin.Context) {
	clientID, err := getClientID(c)
	if err != nil {
		response.Unauthorized(c, "invalid client context")
		return
	}

	var req PutDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	key := c.Param("key")
	if err := h.draftService.Put(c.Request.Context(), clientID, key, req.Value); err != nil {
		writeDraftError(c, err)
		return
	}
	response.Success(c, EntryResponse{Key: key, Value: req.Value})
}

// Patch merges top-level fields into the draft, as a form does when a
// single input changes.
func (h *DraftHandler) Patch(c *gin.Context) {
	clientID, err := getClientID(c)
	if err != nil {
		response.Unauthorized(c, "invalid client context")
		return
	}

	var req PatchDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	key := c.Param("key")
	value, err := h.draftService.Patch(c.Request.Context(), clientID, key, req.Fields)
	if err != nil {
		writeDraftError(c, err)
		return
	}
	response.Success(c, EntryResponse{Key: key, Value: value})
}

func (h *DraftHandler) Get(c *gin.Context) {
	clientID, err := getClientID(c)
	if err != nil {
		response.Unauthorized(c, "invalid client context")
		return
	}

	key := c.Param("key")
	value, err := h.draftService.Get(clientID, key)
	if err != nil {
		writeDraftError(c, err)
		return
	}
	response.Success(c, EntryResponse{Key: key, Value: value})
}

// Close ends the draft; ?discard=true also deletes what was stored.
func (h *DraftHandler) Close(c *gin.Context) {
	clientID, err := getClientID(c)
	if err != nil {
		response.Unauthorized(c, "invalid client context")
		return
	}

	discard := c.Query("discard") == "true"
	if err := h.draftService.Close(c.Request.Context(), clientID, c.Param("key"), discard); err != nil {
		writeDraftError(c, err)
		return
	}
	response.Success(c, nil)
}

func writeDraftError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrDraftNotOpen):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrServiceClosing):
		response.Error(c, http.StatusServiceUnavailable, 503, err.Error())
	default:
		writeStorageError(c, err)
	}
}
