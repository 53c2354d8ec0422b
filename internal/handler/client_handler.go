package handler

import (
	"github.com/gin-gonic/gin"

	"lacocina/onboarding/internal/service"
	"lacocina/onboarding/pkg/response"
)

type ClientHandler struct {
	clientService service.ClientService
}

func NewClientHandler(clientService service.ClientService) *ClientHandler {
	return &ClientHandler{clientService: clientService}
}

// Register issues a new client id and token.
func (h *ClientHandler) Register(c *gin.Context) {
	reg, err := h.clientService.Register(c.Request.Context())
	if err != nil {
		response.InternalError(c, "failed to register client")
		return
	}
	response.Success(c, reg)
}
