package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vaxsync/vaxsync-backend/internal/response"
	"github.com/vaxsync/vaxsync-backend/internal/service"
	"github.com/vaxsync/vaxsync-backend/internal/validator"
)

// AuditHandler exposes the audit trail to administrators.
type AuditHandler struct {
	auditService *service.AuditService
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(auditService *service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

// ListAuditLogs godoc
// GET /api/v1/admin/audit-logs?page=1&per_page=20
func (h *AuditHandler) ListAuditLogs(c *gin.Context) {
	var q pageQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	logs, pagination, err := h.auditService.List(c.Request.Context(), q.Page, q.PerPage)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"audit_logs": logs}, pagination)
}
