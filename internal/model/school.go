package model

import (
	"time"

	"github.com/google/uuid"
)

// School groups students. A school cannot be deleted while students reference it.
type School struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateSchoolRequest is the payload for registering a school.
type CreateSchoolRequest struct {
	Code string `json:"code" binding:"required,min=2,max=20"`
	Name string `json:"name" binding:"required,min=2,max=150"`
}
