package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lacocina/onboarding/internal/service"
	"lacocina/onboarding/internal/store"
	"lacocina/onboarding/pkg/response"
)

type StoreHandler struct {
	storageService service.StorageService
}

func NewStoreHandler(storageService service.StorageService) *StoreHandler {
	return &StoreHandler{storageService: storageService}
}

type SetEntryRequest struct {
	Value   json.RawMessage `json:"value" binding:"required"`
	TTLDays int             `json:"ttl_days" binding:"gte=0"`
}

type EntryResponse struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func (h *StoreHandler) Set(c *gin.Context) {
	clientID, err := getClientID(c)
	if err != nil {
		response.Unauthorized(c, "invalid client context")
		return
	}

	var req SetEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	key := c.Param("key")
	if err := h.storageService.Set(c.Request.Context(), clientID, key, req.Value, store.Days(req.TTLDays)); err != nil {
		writeStorageError(c, err)
		return
	}
	response.Success(c, EntryResponse{Key: key, Value: req.Value})
}

func (h *StoreHandler) Get(c *gin.Context) {
	clientID, err := getClientID(c)
	if err != nil {
		response.Unauthorized(c, "invalid client context")
		return
	}

	key := c.Param("key")
	value, err := h.storageService.Get(c.Request.Context(), clientID, key)
	if err != nil {
		writeStorageError(c, err)
		return
	}
	response.Success(c, EntryResponse{Key: key, Value: value})
}

func (h *StoreHandler) Remove(c *gin.Context) {
	clientID, err := getClientID(c)
	if err != nil {
		response.Unauthorized(c, "invalid client context")
		return
	}

	if err := h.storageService.Remove(c.Request.Context(), clientID, c.Param("key")); err != nil {
		writeStorageError(c, err)
		return
	}
	response.Success(c, nil)
}

func (h *StoreHandler) Clear(c *gin.Context) {
	clientID, err := getClientID(c)
	if err != nil {
		response.Unauthorized(c, "invalid client context")
		return
	}

	if err := h.storageService.Clear(c.Request.Context(), clientID); err != nil {
		writeStorageError(c, err)
		return
	}
	response.Success(c, nil)
}

func writeStorageError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEntryNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrInvalidKey),
		errors.Is(err, service.ErrInvalidValue),
		errors.Is(err, store.ErrInvalidTTL):
		response.BadRequest(c, err.Error())
	case errors.Is(err, store.ErrWriteFailed):
		response.Error(c, http.StatusInsufficientStorage, 507, "storage write failed")
	case errors.Is(err, store.ErrReadFailed):
		response.Error(c, http.StatusServiceUnavailable, 503, "storage read failed")
	default:
		_ = c.Error(err)
		response.InternalError(c, "storage error")
	}
}
