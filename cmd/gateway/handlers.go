package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vaultgate/vaultgate/internal/audit"
	"github.com/vaultgate/vaultgate/internal/gateway"
	"github.com/vaultgate/vaultgate/internal/logging"
	"github.com/vaultgate/vaultgate/internal/metrics"
	"github.com/vaultgate/vaultgate/internal/middleware"
	"github.com/vaultgate/vaultgate/internal/token"
	"github.com/vaultgate/vaultgate/pkg/models"
)

type handlers struct {
	svc    *gateway.Service
	tokens *token.Service
	audit  *audit.Client
	log    *logging.Logger
}

// healthCheck reports gateway liveness
func (h *handlers) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// issueToken mints a capability token for the authenticated principal
func (h *handlers) issueToken(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)

	var req struct {
		Action     string `json:"action" binding:"required"`
		TTLSeconds int64  `json:"ttlSeconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "internal"})
		return
	}

	signed, err := h.tokens.Issue(principal, req.Action, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		if errors.Is(err, token.ErrUnknownAction) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("unknown action %q", req.Action),
				"code":  "scope_mismatch",
			})
			return
		}
		h.log.WithPrincipal(principal).ErrorWithErr("failed to issue token", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token", "code": "internal"})
		return
	}

	metrics.RecordTokenIssued(req.Action)
	c.JSON(http.StatusOK, gin.H{
		"token":  signed,
		"action": req.Action,
	})
}

// upload receives a multipart file and writes it through quota admission
func (h *handlers) upload(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided", "code": "internal"})
		return
	}

	h.audit.Notify(models.AuditEventUpload, models.AuditStatusPending, principal, file.Filename)

	src, err := file.Open()
	if err != nil {
		h.audit.Notify(models.AuditEventUpload, models.AuditStatusError, principal, file.Filename)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file", "code": "internal"})
		return
	}
	defer src.Close()

	obj, err := h.svc.Upload(c.Request.Context(), principal, file.Filename, src, file.Size, file.Header.Get("Content-Type"))
	if err != nil {
		h.audit.Notify(models.AuditEventUpload, models.AuditStatusFailed, principal, file.Filename)
		h.renderUploadError(c, err)
		return
	}

	h.audit.Notify(models.AuditEventUpload, models.AuditStatusSuccess, principal, file.Filename)
	c.JSON(http.StatusCreated, gin.H{
		"name":       obj.Name,
		"size":       obj.SizeBytes,
		"sizeInMB":   models.BytesToMegabytes(obj.SizeBytes),
		"fileId":     obj.FileID,
		"generation": obj.Generation,
	})
}

func (h *handlers) renderUploadError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gateway.ErrQuotaDaily):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": "Daily quota exceeded",
			"code":  "quota_daily_exceeded",
		})
	case errors.Is(err, gateway.ErrQuotaStorage):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "Storage quota exceeded",
			"code":  "quota_storage_exceeded",
		})
	case errors.Is(err, gateway.ErrLedgerUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Quota service unavailable",
			"code":  "backend_unavailable",
		})
	default:
		h.log.ErrorWithErr("upload failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Upload failed", "code": "internal"})
	}
}

// stream serves an object body. fileId takes precedence over the path name;
// generation pins a specific version.
func (h *handlers) stream(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)
	name := c.Param("objectName")
	fileID := c.Query("fileId")
	generation := c.Query("generation")

	h.audit.Notify(models.AuditEventStream, models.AuditStatusPending, principal, name)

	reader, obj, err := h.svc.Stream(c.Request.Context(), principal, name, fileID, generation)
	if err != nil {
		h.audit.Notify(models.AuditEventStream, models.AuditStatusFailed, principal, name)
		if errors.Is(err, gateway.ErrObjectNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Object not found", "code": "object_not_found"})
			return
		}
		h.log.WithPrincipal(principal).ErrorWithErr("stream failed", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Storage unavailable", "code": "backend_unavailable"})
		return
	}
	defer reader.Close()

	c.Header("Content-Type", obj.ContentType)
	c.Header("Content-Length", fmt.Sprintf("%d", obj.SizeBytes))
	c.Status(http.StatusOK)

	if _, err := io.Copy(c.Writer, reader); err != nil {
		// Headers are gone; nothing to do but log
		h.log.WithPrincipal(principal).WithObject(obj.Name).ErrorWithErr("stream interrupted", err)
		h.audit.Notify(models.AuditEventStream, models.AuditStatusError, principal, name)
		return
	}

	h.audit.Notify(models.AuditEventStream, models.AuditStatusSuccess, principal, name)
}

// listObjects enumerates the authenticated principal's namespace
func (h *handlers) listObjects(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)

	h.audit.Notify(models.AuditEventListFiles, models.AuditStatusPending, principal, "")

	objects, err := h.svc.List(c.Request.Context(), principal)
	if err != nil {
		h.audit.Notify(models.AuditEventListFiles, models.AuditStatusFailed, principal, "")
		h.log.WithPrincipal(principal).ErrorWithErr("list failed", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Storage unavailable", "code": "backend_unavailable"})
		return
	}

	entries := make([]models.ObjectEntry, 0, len(objects))
	for _, obj := range objects {
		entries = append(entries, models.NewObjectEntry(obj))
	}

	h.audit.Notify(models.AuditEventListFiles, models.AuditStatusSuccess, principal, "")
	c.JSON(http.StatusOK, gin.H{"objects": entries})
}

// deleteObject removes one object and releases its quota
func (h *handlers) deleteObject(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)
	fileName := c.Query("fileName")
	if fileName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fileName is required", "code": "internal"})
		return
	}

	h.audit.Notify(models.AuditEventDelete, models.AuditStatusPending, principal, fileName)

	obj, err := h.svc.Delete(c.Request.Context(), principal, fileName)
	if err != nil {
		h.audit.Notify(models.AuditEventDelete, models.AuditStatusFailed, principal, fileName)
		if errors.Is(err, gateway.ErrObjectNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Object not found", "code": "object_not_found"})
			return
		}
		h.log.WithPrincipal(principal).ErrorWithErr("delete failed", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Storage unavailable", "code": "backend_unavailable"})
		return
	}

	h.audit.Notify(models.AuditEventDelete, models.AuditStatusSuccess, principal, fileName)
	c.JSON(http.StatusOK, gin.H{
		"message":       "Object deleted",
		"name":          obj.Name,
		"releasedBytes": obj.SizeBytes,
	})
}

// deleteNamespace purges every object the principal owns
func (h *handlers) deleteNamespace(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)

	h.audit.Notify(models.AuditEventDeleteAll, models.AuditStatusPending, principal, "")

	deleted, err := h.svc.DeleteNamespace(c.Request.Context(), principal)
	if err != nil {
		h.audit.Notify(models.AuditEventDeleteAll, models.AuditStatusFailed, principal, "")
		if errors.Is(err, gateway.ErrObjectNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Namespace is empty", "code": "object_not_found"})
			return
		}
		h.log.WithPrincipal(principal).ErrorWithErr("namespace delete failed", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Storage unavailable", "code": "backend_unavailable"})
		return
	}

	h.audit.Notify(models.AuditEventDeleteAll, models.AuditStatusSuccess, principal, "")
	c.JSON(http.StatusOK, gin.H{"message": "Namespace deleted", "deleted": deleted})
}

// getUsage proxies the principal's remaining quota from the ledger
func (h *handlers) getUsage(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)

	h.audit.Notify(models.AuditEventUsageQuery, models.AuditStatusPending, principal, "")

	remaining, err := h.svc.Usage(c.Request.Context(), principal)
	if err != nil {
		h.audit.Notify(models.AuditEventUsageQuery, models.AuditStatusFailed, principal, "")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Quota service unavailable",
			"code":  "backend_unavailable",
		})
		return
	}

	h.audit.Notify(models.AuditEventUsageQuery, models.AuditStatusSuccess, principal, "")
	c.JSON(http.StatusOK, gin.H{
		"remainingStorage":   models.BytesToMegabytes(remaining.StorageBytes),
		"remainingBandwidth": models.BytesToMegabytes(remaining.BandwidthBytes),
	})
}
