package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vaultgate/vaultgate/internal/ledger"
	"github.com/vaultgate/vaultgate/internal/logging"
	"github.com/vaultgate/vaultgate/pkg/models"
)

type handlers struct {
	svc *ledger.Service
	// health is nil when the store has no external dependency
	health func(context.Context) error
	log    *logging.Logger
}

// healthCheck reports ledger liveness including store reachability
func (h *handlers) healthCheck(c *gin.Context) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if err := h.health(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// admitUsage runs a quota admission for a signed megabyte delta. The decision
// is returned as a bare code: 0 admitted, 1 daily limit, 2 storage limit.
func (h *handlers) admitUsage(c *gin.Context) {
	var req struct {
		UserID     string  `json:"userId" binding:"required"`
		FileSizeMB float64 `json:"fileSizeMB"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	decision, err := h.svc.Admit(c.Request.Context(), req.UserID, models.MegabytesToBytes(req.FileSizeMB))
	if err != nil {
		h.log.WithPrincipal(req.UserID).ErrorWithErr("admission failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Admission failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"response": int(decision)})
}

// queryUsage reads remaining storage and bandwidth in megabytes
func (h *handlers) queryUsage(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	remaining, err := h.svc.Query(c.Request.Context(), userID)
	if err != nil {
		h.log.WithPrincipal(userID).ErrorWithErr("usage query failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Query failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"remainingStorage":   models.BytesToMegabytes(remaining.StorageBytes),
		"remainingBandwidth": models.BytesToMegabytes(remaining.BandwidthBytes),
	})
}

// setAbsolute overwrites a principal's stored total with a reconciled value
func (h *handlers) setAbsolute(c *gin.Context) {
	var req struct {
		UserID  string  `json:"userId" binding:"required"`
		TotalMB float64 `json:"totalMB"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.SetAbsolute(c.Request.Context(), req.UserID, models.MegabytesToBytes(req.TotalMB)); err != nil {
		h.log.WithPrincipal(req.UserID).ErrorWithErr("absolute correction failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Correction failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Usage corrected"})
}
