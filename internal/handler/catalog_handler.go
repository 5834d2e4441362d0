package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/vaxsync/vaxsync-backend/internal/middleware"
	"github.com/vaxsync/vaxsync-backend/internal/model"
	"github.com/vaxsync/vaxsync-backend/internal/response"
	"github.com/vaxsync/vaxsync-backend/internal/service"
	"github.com/vaxsync/vaxsync-backend/internal/validator"
)

// CatalogHandler handles vaccines and their dose schedules. Every schedule
// change queues a full recompute.
type CatalogHandler struct {
	catalogService *service.CatalogService
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(catalogService *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService}
}

// ListVaccines godoc
// GET /api/v1/vaccines
// Lists vaccines with their schedule entries.
func (h *CatalogHandler) ListVaccines(c *gin.Context) {
	vaccines, err := h.catalogService.List(c.Request.Context())
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"vaccines": vaccines})
}

// CreateVaccine godoc
// POST /api/v1/vaccines
func (h *CatalogHandler) CreateVaccine(c *gin.Context) {
	var req model.CreateVaccineRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	v := &model.Vaccine{Code: req.Code, Name: req.Name, Description: req.Description}
	if err := h.catalogService.CreateVaccine(c.Request.Context(), middleware.Actor(c), v); err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"vaccine": v})
}

// DeleteVaccine godoc
// DELETE /api/v1/vaccines/:id
// Fails while administered doses reference the vaccine.
func (h *CatalogHandler) DeleteVaccine(c *gin.Context) {
	id, ok := paramInt(c, "id")
	if !ok {
		return
	}

	if err := h.catalogService.DeleteVaccine(c.Request.Context(), middleware.Actor(c), id); err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "vaccine deleted successfully"})
}

// CreateScheduleEntry godoc
// POST /api/v1/vaccines/:id/schedule
func (h *CatalogHandler) CreateScheduleEntry(c *gin.Context) {
	vaccineID, ok := paramInt(c, "id")
	if !ok {
		return
	}

	var req model.ScheduleEntryRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	entry := &model.ScheduleEntry{
		VaccineID:       vaccineID,
		AgeRange:        req.AgeRange,
		DoseNumber:      req.DoseNumber,
		CatchUpEligible: req.CatchUpEligible,
	}
	if err := h.catalogService.CreateScheduleEntry(c.Request.Context(), middleware.Actor(c), entry); err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"schedule_entry": entry})
}

// UpdateScheduleEntry godoc
// PUT /api/v1/vaccines/:id/schedule/:entry_id
func (h *CatalogHandler) UpdateScheduleEntry(c *gin.Context) {
	vaccineID, ok := paramInt(c, "id")
	if !ok {
		return
	}
	entryID, ok := paramInt(c, "entry_id")
	if !ok {
		return
	}

	var req model.ScheduleEntryRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	entry := &model.ScheduleEntry{
		ID:              entryID,
		VaccineID:       vaccineID,
		AgeRange:        req.AgeRange,
		DoseNumber:      req.DoseNumber,
		CatchUpEligible: req.CatchUpEligible,
	}
	if err := h.catalogService.UpdateScheduleEntry(c.Request.Context(), middleware.Actor(c), entry); err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"schedule_entry": entry})
}

// DeleteScheduleEntry godoc
// DELETE /api/v1/vaccines/:id/schedule/:entry_id
func (h *CatalogHandler) DeleteScheduleEntry(c *gin.Context) {
	vaccineID, ok := paramInt(c, "id")
	if !ok {
		return
	}
	entryID, ok := paramInt(c, "entry_id")
	if !ok {
		return
	}

	if err := h.catalogService.DeleteScheduleEntry(c.Request.Context(), middleware.Actor(c), vaccineID, entryID); err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "schedule entry deleted successfully"})
}

func paramInt(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}
