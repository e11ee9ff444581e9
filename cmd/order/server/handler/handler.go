package handler

import (
	"log"
	"net/http"

	"summershop-saga/cmd/order/server/service"
	"summershop-saga/pkg/models"
	"summershop-saga/pkg/utils"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Service *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Service: svc,
	}
}

func (h *Handler) CreateOrder(c *gin.Context) {
	var req models.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("Invalid request format: %v", err)
		utils.SendValidationError(c, err)
		return
	}

	order, err := h.Service.Create(c.Request.Context(), req)
	if err != nil {
		log.Printf("Failed to create order: %+v", err)
		utils.SendServiceError(c, err)
		return
	}

	log.Printf("Order placed successfully: %s", order.OrderId)
	utils.SendSuccess(c, http.StatusCreated, "Order received and being processed", order)
}

func (h *Handler) GetOrder(c *gin.Context) {
	order, err := h.Service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.SendServiceError(c, err)
		return
	}

	utils.SendSuccess(c, http.StatusOK, "Order retrieved", order)
}

func (h *Handler) UpdateOrder(c *gin.Context) {
	var req models.OrderUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, err)
		return
	}

	order, err := h.Service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		log.Printf("Failed to update order %s: %+v", c.Param("id"), err)
		utils.SendServiceError(c, err)
		return
	}

	utils.SendSuccess(c, http.StatusOK, "Order updated", order)
}

func (h *Handler) CancelOrder(c *gin.Context) {
	order, err := h.Service.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		log.Printf("Failed to cancel order %s: %+v", c.Param("id"), err)
		utils.SendServiceError(c, err)
		return
	}

	utils.SendSuccess(c, http.StatusOK, "Order cancelled", order)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	health := map[string]any{
		"status":  "healthy",
		"service": "order-service",
	}
	utils.SendSuccess(c, http.StatusOK, "Service is Healthy", health)
}
