package models

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is the paginated list envelope used by every list endpoint.
type Page[T any] struct {
	Count    int  `json:"count"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	Results  []T  `json:"results"`
}

func NewPage[T any](results []T, count, page, pageSize int) Page[T] {
	if results == nil {
		results = []T{}
	}
	return Page[T]{
		Count:    count,
		Page:     page,
		PageSize: pageSize,
		HasNext:  page*pageSize < count,
		Results:  results,
	}
}
