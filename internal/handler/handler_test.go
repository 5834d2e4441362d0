package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vaxsync/vaxsync-backend/internal/compliance"
	"github.com/vaxsync/vaxsync-backend/internal/middleware"
	"github.com/vaxsync/vaxsync-backend/internal/model"
	"github.com/vaxsync/vaxsync-backend/internal/repository"
	"github.com/vaxsync/vaxsync-backend/internal/response"
	"github.com/vaxsync/vaxsync-backend/internal/service"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var body response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return body
}

func TestFailFromError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		err        error
		wantStatus int
		wantCode   response.ErrCode
	}{
		{repository.ErrNotFound, http.StatusNotFound, response.ErrNotFound},
		{fmt.Errorf("load: %w", repository.ErrNotFound), http.StatusNotFound, response.ErrNotFound},
		{service.ErrOutsideScope, http.StatusForbidden, response.ErrSchoolScope},
		{repository.ErrDuplicateSchoolCode, http.StatusConflict, response.ErrConflict},
		{repository.ErrDuplicateScheduleDose, http.StatusConflict, response.ErrConflict},
		{repository.ErrSchoolHasStudents, http.StatusConflict, response.ErrDependencyExists},
		{repository.ErrVaccineInUse, http.StatusConflict, response.ErrDependencyExists},
		{repository.ErrUnknownReference, http.StatusUnprocessableEntity, response.ErrUnknownReference},
		{fmt.Errorf("%w: dose number must be positive", service.ErrInvalidArgument), http.StatusBadRequest, response.ErrValidation},
		{service.ErrDerivationRunning, http.StatusConflict, response.ErrDerivationRunning},
		{compliance.ErrUnknownVaccineCode, http.StatusUnprocessableEntity, response.ErrCatalogIncomplete},
		{errors.New("boom"), http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			failFromError(c, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if body := decode(t, w); body.Error == nil || body.Error.Code != tt.wantCode {
				t.Errorf("body = %s", w.Body.String())
			}
		})
	}
}

func TestSchoolParam_Scope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	own := uuid.New()
	h := &ComplianceHandler{}

	r := gin.New()
	r.GET("/schools/:id", func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{Role: model.RoleSchoolNurse, SchoolID: own.String()})
		if _, ok := h.schoolParam(c); ok {
			c.Status(http.StatusNoContent)
		}
	})

	tests := []struct {
		path string
		want int
	}{
		{"/schools/" + own.String(), http.StatusNoContent},
		{"/schools/" + uuid.NewString(), http.StatusForbidden},
		{"/schools/not-a-uuid", http.StatusBadRequest},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if w.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.path, w.Code, tt.want)
		}
	}
}

func TestParamInt(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/v/:id", func(c *gin.Context) {
		if id, ok := paramInt(c, "id"); ok {
			c.String(http.StatusOK, "%d", id)
		}
	})

	for path, want := range map[string]int{"/v/7": http.StatusOK, "/v/0": http.StatusBadRequest, "/v/x": http.StatusBadRequest} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != want {
			t.Errorf("%s: status = %d, want %d", path, w.Code, want)
		}
	}
}

func TestStudentFromRequest(t *testing.T) {
	sid := uuid.New()
	st, fields := studentFromRequest(sid.String(), "Ada", "Lovelace", "2015-03-10")
	if fields != nil {
		t.Fatalf("unexpected errors %v", fields)
	}
	if st.SchoolID != sid || !st.DateOfBirth.Equal(time.Date(2015, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("student = %+v", st)
	}

	if _, fields := studentFromRequest("nope", "A", "B", "2015-03-10"); fields["school_id"] == "" {
		t.Errorf("expected school_id error, got %v", fields)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[time.Duration]string{
		42 * time.Second:                   "0m 42s",
		2*time.Hour + 5*time.Minute:        "2h 5m 0s",
		49*time.Hour + 3*time.Minute + time.Second: "2d 1h 3m 1s",
	}
	for d, want := range tests {
		if got := formatDuration(d); got != want {
			t.Errorf("formatDuration(%s) = %q, want %q", d, got, want)
		}
	}
}

type scopedStudents struct {
	byID map[uuid.UUID]model.Student
}

func (s scopedStudents) GetByID(_ context.Context, scope *uuid.UUID, id uuid.UUID) (*model.Student, error) {
	st, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if scope != nil && *scope != st.SchoolID {
		return nil, service.ErrOutsideScope
	}
	return &st, nil
}

type recordingQueue struct {
	students []uuid.UUID
}

func (q *recordingQueue) EnqueueStudents(_ context.Context, ids ...uuid.UUID) error {
	q.students = append(q.students, ids...)
	return nil
}

func (q *recordingQueue) EnqueueAll(context.Context) error { return nil }

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, string, string) {}

func TestRecomputeStudent_Scope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	own, other := uuid.New(), uuid.New()
	mine := model.Student{ID: uuid.New(), SchoolID: own}
	theirs := model.Student{ID: uuid.New(), SchoolID: other}

	tests := []struct {
		name       string
		id         uuid.UUID
		wantStatus int
		wantQueued bool
	}{
		{"own school", mine.ID, http.StatusAccepted, true},
		{"other school", theirs.ID, http.StatusForbidden, false},
		{"unknown student", uuid.New(), http.StatusNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := &recordingQueue{}
			h := &DerivationHandler{
				students: scopedStudents{byID: map[uuid.UUID]model.Student{mine.ID: mine, theirs.ID: theirs}},
				queue:    queue,
				audit:    nopRecorder{},
			}

			r := gin.New()
			r.POST("/students/:id/recompute", func(c *gin.Context) {
				c.Set(middleware.ContextKeyClaims, &service.Claims{Role: model.RoleSchoolNurse, SchoolID: own.String()})
				c.Next()
			}, h.RecomputeStudent)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/students/"+tt.id.String()+"/recompute", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if queued := len(queue.students) > 0; queued != tt.wantQueued {
				t.Errorf("queued = %v, want %v", queued, tt.wantQueued)
			}
		})
	}
}
