package models

import "time"

type Category struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Slug        string `json:"slug" db:"slug"`
	Description string `json:"description" db:"description"`
}

type CategoryRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Description string `json:"description" validate:"max=2000"`
}

type Service struct {
	ID          int64     `json:"id" db:"id"`
	OwnerID     int64     `json:"owner_id" db:"owner_id"`
	CategoryID  int64     `json:"category_id" db:"category_id"`
	Category    string    `json:"category" db:"category_name"`
	Name        string    `json:"name" db:"name"`
	Slug        string    `json:"slug" db:"slug"`
	ShortDesc   string    `json:"short_desc" db:"short_desc"`
	Description string    `json:"description" db:"description"`
	Price       float64   `json:"price" db:"price"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	AvgRating   float64   `json:"avg_rating" db:"avg_rating"`
	ReviewCount int       `json:"review_count" db:"review_count"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type ServiceRequest struct {
	CategoryID  int64   `json:"category_id" validate:"required,gt=0"`
	Name        string  `json:"name" validate:"required,min=2,max=100"`
	ShortDesc   string  `json:"short_desc" validate:"required,min=10,max=300"`
	Description string  `json:"description" validate:"required,min=20,max=2000"`
	Price       float64 `json:"price" validate:"required,gt=0"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

// ServiceFilter carries the public listing query.
type ServiceFilter struct {
	CategoryID *int64
	Search     string
	MinPrice   *float64
	MaxPrice   *float64
	Ordering   string
	OwnerID    *int64
	ActiveOnly bool
	Page       int
	PageSize   int
}
