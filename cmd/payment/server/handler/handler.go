package handler

import (
	"log"
	"net/http"

	"summershop-saga/cmd/payment/server/service"
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

func (h *Handler) SubmitPayment(c *gin.Context) {
	var req models.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("Invalid request format: %v", err)
		utils.SendValidationError(c, err)
		return
	}

	payment, err := h.Service.Submit(c.Request.Context(), req)
	if err != nil {
		log.Printf("Failed to submit payment: %+v", err)
		utils.SendServiceError(c, err)
		return
	}

	utils.SendSuccess(c, http.StatusCreated, "Payment submitted", payment)
}

func (h *Handler) GetPayment(c *gin.Context) {
	payment, err := h.Service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.SendServiceError(c, err)
		return
	}

	utils.SendSuccess(c, http.StatusOK, "Payment retrieved", payment)
}

func (h *Handler) UpdatePayment(c *gin.Context) {
	var req models.PaymentUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, err)
		return
	}

	payment, err := h.Service.UpdateMethod(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		log.Printf("Failed to update payment %s: %+v", c.Param("id"), err)
		utils.SendServiceError(c, err)
		return
	}

	utils.SendSuccess(c, http.StatusOK, "Payment updated", payment)
}

func (h *Handler) RefundPayment(c *gin.Context) {
	var req models.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, err)
		return
	}

	payment, err := h.Service.Refund(c.Request.Context(), c.Param("id"), req.AmountCents)
	if err != nil {
		log.Printf("Failed to refund payment %s: %+v", c.Param("id"), err)
		utils.SendServiceError(c, err)
		return
	}

	utils.SendSuccess(c, http.StatusOK, "Payment refunded", payment)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	health := map[string]any{
		"status":  "healthy",
		"service": "payment-service",
	}
	utils.SendSuccess(c, http.StatusOK, "Service is Healthy", health)
}
