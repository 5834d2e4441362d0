package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vaxsync/vaxsync-backend/internal/middleware"
	"github.com/vaxsync/vaxsync-backend/internal/model"
	"github.com/vaxsync/vaxsync-backend/internal/response"
	"github.com/vaxsync/vaxsync-backend/internal/service"
	"github.com/vaxsync/vaxsync-backend/internal/validator"
)

// StudentHandler handles student enrolment records.
type StudentHandler struct {
	studentService *service.StudentService
}

// NewStudentHandler creates a new StudentHandler.
func NewStudentHandler(studentService *service.StudentService) *StudentHandler {
	return &StudentHandler{studentService: studentService}
}

type listStudentsQuery struct {
	pageQuery
	SchoolID  string `form:"school_id" binding:"omitempty,uuid"`
	Compliant *bool  `form:"compliant"`
}

// ListStudents godoc
// GET /api/v1/students?page=1&per_page=20&school_id=&compliant=
// School nurses only ever see their own school.
func (h *StudentHandler) ListStudents(c *gin.Context) {
	var q listStudentsQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	filter := model.StudentFilter{Compliant: q.Compliant}
	if q.SchoolID != "" {
		id := uuid.MustParse(q.SchoolID)
		filter.SchoolID = &id
	}

	students, pagination, err := h.studentService.List(c.Request.Context(), scopeOf(c), filter, q.Page, q.PerPage)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"students": students}, pagination)
}

// GetStudent godoc
// GET /api/v1/students/:id
func (h *StudentHandler) GetStudent(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	student, err := h.studentService.GetByID(c.Request.Context(), scopeOf(c), id)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"student": student})
}

// CreateStudent godoc
// POST /api/v1/students
func (h *StudentHandler) CreateStudent(c *gin.Context) {
	var req model.CreateStudentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	student, fields := studentFromRequest(req.SchoolID, req.FirstName, req.LastName, req.DateOfBirth)
	if fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.studentService.Create(c.Request.Context(), middleware.Actor(c), scopeOf(c), student); err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"student": student})
}

// UpdateStudent godoc
// PUT /api/v1/students/:id
// A changed date of birth queues the student for recompute.
func (h *StudentHandler) UpdateStudent(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	var req model.UpdateStudentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	student, fields := studentFromRequest(req.SchoolID, req.FirstName, req.LastName, req.DateOfBirth)
	if fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	student.ID = id

	if err := h.studentService.Update(c.Request.Context(), middleware.Actor(c), scopeOf(c), student); err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"student": student})
}

// DeleteStudent godoc
// DELETE /api/v1/students/:id
// Removes the student with their administered and required doses.
func (h *StudentHandler) DeleteStudent(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	if err := h.studentService.Delete(c.Request.Context(), middleware.Actor(c), scopeOf(c), id); err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "student deleted successfully"})
}

func studentFromRequest(schoolID, first, last, dob string) (*model.Student, map[string]string) {
	sid, err := uuid.Parse(schoolID)
	if err != nil {
		return nil, map[string]string{"school_id": "school_id must be a valid UUID"}
	}
	birth, err := validator.ParseDate(dob)
	if err != nil {
		return nil, map[string]string{"date_of_birth": "date_of_birth must be YYYY-MM-DD"}
	}
	return &model.Student{
		SchoolID:    sid,
		FirstName:   first,
		LastName:    last,
		DateOfBirth: birth,
	}, nil
}
