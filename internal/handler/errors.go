package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vaxsync/vaxsync-backend/internal/compliance"
	"github.com/vaxsync/vaxsync-backend/internal/middleware"
	"github.com/vaxsync/vaxsync-backend/internal/repository"
	"github.com/vaxsync/vaxsync-backend/internal/response"
	"github.com/vaxsync/vaxsync-backend/internal/service"
)

// failFromError maps service and repository errors onto the response envelope.
func failFromError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrOutsideScope):
		response.Fail(c, http.StatusForbidden, response.ErrSchoolScope)
	case errors.Is(err, repository.ErrDuplicateSchoolCode),
		errors.Is(err, repository.ErrDuplicateVaccineCode),
		errors.Is(err, repository.ErrDuplicateScheduleDose):
		response.Fail(c, http.StatusConflict, response.ErrConflict)
	case errors.Is(err, repository.ErrSchoolHasStudents),
		errors.Is(err, repository.ErrVaccineInUse):
		response.Fail(c, http.StatusConflict, response.ErrDependencyExists)
	case errors.Is(err, repository.ErrUnknownReference):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrUnknownReference)
	case errors.Is(err, service.ErrInvalidArgument):
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{"detail": err.Error()})
	case errors.Is(err, service.ErrDerivationRunning):
		response.Fail(c, http.StatusConflict, response.ErrDerivationRunning)
	case errors.Is(err, compliance.ErrUnknownVaccineCode):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrCatalogIncomplete)
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// paramUUID parses a UUID path parameter, failing the request when invalid.
func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// scopeOf returns the school a caller is limited to, or nil.
func scopeOf(c *gin.Context) *uuid.UUID {
	if claims := middleware.GetClaims(c); claims != nil {
		return claims.ScopedSchool()
	}
	return nil
}

// pageQuery is the shared pagination query string.
type pageQuery struct {
	Page    int `form:"page" binding:"omitempty,min=1"`
	PerPage int `form:"per_page" binding:"omitempty,min=1,max=100"`
}
