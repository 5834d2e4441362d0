package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vaxsync/vaxsync-backend/internal/model"
	"github.com/vaxsync/vaxsync-backend/internal/repository"
)

type mockStudentRepo struct {
	byID map[uuid.UUID]model.Student
}

func (m *mockStudentRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Student, error) {
	st, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &st, nil
}

func (m *mockStudentRepo) ListPaginated(context.Context, model.StudentFilter, int, int) ([]model.Student, int, error) {
	return nil, 0, nil
}

func (m *mockStudentRepo) Create(_ context.Context, s *model.Student) error {
	s.ID = uuid.New()
	m.byID[s.ID] = *s
	return nil
}

func (m *mockStudentRepo) Update(_ context.Context, s *model.Student) error {
	m.byID[s.ID] = *s
	return nil
}

func (m *mockStudentRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.byID, id)
	return nil
}

type mockQueue struct {
	students []uuid.UUID
	all      int
}

func (q *mockQueue) EnqueueStudents(_ context.Context, ids ...uuid.UUID) error {
	q.students = append(q.students, ids...)
	return nil
}

func (q *mockQueue) EnqueueAll(context.Context) error {
	q.all++
	return nil
}

func newTestStudentService(students ...model.Student) (*StudentService, *mockQueue, *mockInvalidator) {
	repo := &mockStudentRepo{byID: map[uuid.UUID]model.Student{}}
	for _, st := range students {
		repo.byID[st.ID] = st
	}
	queue := &mockQueue{}
	inv := &mockInvalidator{}
	return NewStudentService(repo, queue, inv, nopAudit{}, zerolog.Nop()), queue, inv
}

func TestStudentDelete_InvalidatesSummaries(t *testing.T) {
	school := uuid.New()
	st := model.Student{ID: uuid.New(), SchoolID: school}
	svc, _, inv := newTestStudentService(st)

	if err := svc.Delete(context.Background(), "nurse", &school, st.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if inv.calls != 1 {
		t.Errorf("invalidations = %d, want 1", inv.calls)
	}
}

func TestStudentDelete_OutsideScopeLeavesCache(t *testing.T) {
	st := model.Student{ID: uuid.New(), SchoolID: uuid.New()}
	other := uuid.New()
	svc, _, inv := newTestStudentService(st)

	if err := svc.Delete(context.Background(), "nurse", &other, st.ID); !errors.Is(err, ErrOutsideScope) {
		t.Fatalf("err = %v, want ErrOutsideScope", err)
	}
	if inv.calls != 0 {
		t.Errorf("invalidations = %d, want 0", inv.calls)
	}
}

func TestStudentUpdate_SchoolMoveAndBirthChange(t *testing.T) {
	dob := time.Date(2015, 3, 1, 0, 0, 0, 0, time.UTC)
	st := model.Student{ID: uuid.New(), SchoolID: uuid.New(), DateOfBirth: dob}

	t.Run("school move", func(t *testing.T) {
		svc, queue, inv := newTestStudentService(st)
		moved := st
		moved.SchoolID = uuid.New()
		if err := svc.Update(context.Background(), "admin", nil, &moved); err != nil {
			t.Fatalf("Update: %v", err)
		}
		if inv.calls != 1 {
			t.Errorf("invalidations = %d, want 1", inv.calls)
		}
		if len(queue.students) != 0 {
			t.Errorf("queued = %v, want none", queue.students)
		}
	})

	t.Run("birth date change", func(t *testing.T) {
		svc, queue, inv := newTestStudentService(st)
		changed := st
		changed.DateOfBirth = dob.AddDate(0, 1, 0)
		if err := svc.Update(context.Background(), "admin", nil, &changed); err != nil {
			t.Fatalf("Update: %v", err)
		}
		if inv.calls != 0 {
			t.Errorf("invalidations = %d, want 0", inv.calls)
		}
		if len(queue.students) != 1 || queue.students[0] != st.ID {
			t.Errorf("queued = %v, want [%s]", queue.students, st.ID)
		}
	})
}
