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

// DoseHandler handles administered dose records.
type DoseHandler struct {
	doseService *service.DoseService
}

// NewDoseHandler creates a new DoseHandler.
func NewDoseHandler(doseService *service.DoseService) *DoseHandler {
	return &DoseHandler{doseService: doseService}
}

// ListDoses godoc
// GET /api/v1/students/:id/doses
func (h *DoseHandler) ListDoses(c *gin.Context) {
	studentID, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	doses, err := h.doseService.ListByStudent(c.Request.Context(), scopeOf(c), studentID)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"doses": doses})
}

// RecordDose godoc
// POST /api/v1/students/:id/doses
// date_given may be omitted for a dose known to be given on an unknown date.
func (h *DoseHandler) RecordDose(c *gin.Context) {
	studentID, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	var req model.RecordDoseRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	dose := &model.AdministeredDose{
		StudentID:  studentID,
		VaccineID:  req.VaccineID,
		DoseNumber: req.DoseNumber,
	}
	if req.DateGiven != "" {
		given, err := validator.ParseDate(req.DateGiven)
		if err != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{"date_given": "date_given must be YYYY-MM-DD"})
			return
		}
		dose.DateGiven = &given
	}

	if err := h.doseService.Record(c.Request.Context(), middleware.Actor(c), scopeOf(c), dose); err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"dose": dose})
}

// DeleteDose godoc
// DELETE /api/v1/students/:id/doses/:dose_id
func (h *DoseHandler) DeleteDose(c *gin.Context) {
	studentID, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	doseID, ok := paramInt(c, "dose_id")
	if !ok {
		return
	}

	if err := h.doseService.Delete(c.Request.Context(), middleware.Actor(c), scopeOf(c), studentID, doseID); err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "dose deleted successfully"})
}
