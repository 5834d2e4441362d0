package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vaxsync/vaxsync-backend/internal/model"
	"github.com/vaxsync/vaxsync-backend/internal/response"
	"github.com/vaxsync/vaxsync-backend/internal/service"
	"github.com/vaxsync/vaxsync-backend/internal/validator"
)

// ComplianceHandler serves school compliance summaries, pending dose lists
// and per-student reports.
type ComplianceHandler struct {
	complianceService *service.ComplianceService
}

// NewComplianceHandler creates a new ComplianceHandler.
func NewComplianceHandler(complianceService *service.ComplianceService) *ComplianceHandler {
	return &ComplianceHandler{complianceService: complianceService}
}

// GetSchoolSummary godoc
// GET /api/v1/schools/:id/compliance
func (h *ComplianceHandler) GetSchoolSummary(c *gin.Context) {
	schoolID, ok := h.schoolParam(c)
	if !ok {
		return
	}

	summary, err := h.complianceService.SchoolSummary(c.Request.Context(), schoolID)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"summary": summary})
}

// ListOverdue godoc
// GET /api/v1/schools/:id/compliance/overdue?page=1&per_page=20
func (h *ComplianceHandler) ListOverdue(c *gin.Context) {
	h.listPending(c, h.complianceService.Overdue)
}

// ListImminent godoc
// GET /api/v1/schools/:id/compliance/imminent?page=1&per_page=20
// Doses due within the next 30 days.
func (h *ComplianceHandler) ListImminent(c *gin.Context) {
	h.listPending(c, h.complianceService.Imminent)
}

type pendingLister func(ctx context.Context, schoolID uuid.UUID, page, perPage int) ([]model.RequiredDoseView, *response.Pagination, error)

func (h *ComplianceHandler) listPending(c *gin.Context, list pendingLister) {
	schoolID, ok := h.schoolParam(c)
	if !ok {
		return
	}

	var q pageQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	doses, pagination, err := list(c.Request.Context(), schoolID, q.Page, q.PerPage)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"doses": doses}, pagination)
}

// GetStudentReport godoc
// GET /api/v1/students/:id/report
// Returns the administered and required doses of a student with both the
// cached and a freshly computed compliance flag.
func (h *ComplianceHandler) GetStudentReport(c *gin.Context) {
	studentID, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	report, err := h.complianceService.StudentReport(c.Request.Context(), scopeOf(c), studentID)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"report": report})
}

// schoolParam parses :id and rejects schools outside the caller's scope.
func (h *ComplianceHandler) schoolParam(c *gin.Context) (uuid.UUID, bool) {
	schoolID, ok := paramUUID(c, "id")
	if !ok {
		return uuid.Nil, false
	}
	if scope := scopeOf(c); scope != nil && *scope != schoolID {
		response.Fail(c, http.StatusForbidden, response.ErrSchoolScope)
		return uuid.Nil, false
	}
	return schoolID, true
}
