package models

import "time"

type Review struct {
	ID        int64     `json:"id" db:"id"`
	ServiceID int64     `json:"service_id" db:"service_id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	UserName  string    `json:"user_name" db:"user_name"`
	Rating    int       `json:"rating" db:"rating"`
	Text      string    `json:"text" db:"text"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type ReviewRequest struct {
	Rating int    `json:"rating" validate:"required,min=1,max=5"`
	Text   string `json:"text" validate:"required,min=10,max=2000"`
}

type RatingSummary struct {
	ServiceID    int64       `json:"service_id"`
	Count        int         `json:"count"`
	Average      float64     `json:"average"`
	StdDev       float64     `json:"std_dev"`
	Distribution map[int]int `json:"distribution"`
}

// ReviewFilter carries the moderation listing query.
type ReviewFilter struct {
	ServiceID *int64
	UserID    *int64
	Rating    *int
	Page      int
	PageSize  int
}

// ReviewUpdateRequest is a moderator edit; absent fields are left alone.
type ReviewUpdateRequest struct {
	Rating *int    `json:"rating" validate:"omitempty,min=1,max=5"`
	Text   *string `json:"text" validate:"omitempty,min=10,max=2000"`
}
