package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vaxsync/vaxsync-backend/internal/middleware"
	"github.com/vaxsync/vaxsync-backend/internal/model"
	"github.com/vaxsync/vaxsync-backend/internal/response"
	"github.com/vaxsync/vaxsync-backend/internal/service"
	"github.com/vaxsync/vaxsync-backend/internal/validator"
)

// SchoolHandler handles school management.
type SchoolHandler struct {
	schoolService *service.SchoolService
}

// NewSchoolHandler creates a new SchoolHandler.
func NewSchoolHandler(schoolService *service.SchoolService) *SchoolHandler {
	return &SchoolHandler{schoolService: schoolService}
}

// ListSchools godoc
// GET /api/v1/schools
func (h *SchoolHandler) ListSchools(c *gin.Context) {
	schools, err := h.schoolService.List(c.Request.Context())
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"schools": schools})
}

// CreateSchool godoc
// POST /api/v1/schools
func (h *SchoolHandler) CreateSchool(c *gin.Context) {
	var req model.CreateSchoolRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	school := &model.School{Code: req.Code, Name: req.Name}
	if err := h.schoolService.Create(c.Request.Context(), middleware.Actor(c), school); err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"school": school})
}

// DeleteSchool godoc
// DELETE /api/v1/schools/:id
// Fails while students are still enrolled.
func (h *SchoolHandler) DeleteSchool(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	if err := h.schoolService.Delete(c.Request.Context(), middleware.Actor(c), id); err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "school deleted successfully"})
}
