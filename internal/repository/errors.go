package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound              = errors.New("record not found")
	ErrDuplicateSchoolCode   = errors.New("school with this code already exists")
	ErrDuplicateVaccineCode  = errors.New("vaccine with this code already exists")
	ErrDuplicateScheduleDose = errors.New("schedule entry for this dose number already exists")
	ErrSchoolHasStudents     = errors.New("school still has enrolled students")
	ErrVaccineInUse          = errors.New("vaccine is referenced by administered doses")
	ErrUnknownReference      = errors.New("referenced record does not exist")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// pgCode extracts the SQLSTATE from a Postgres error, or "" for anything else.
func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// notFound maps pgx.ErrNoRows to ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
