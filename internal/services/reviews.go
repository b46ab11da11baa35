package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/temcen/homeser/internal/messaging"
	"github.com/temcen/homeser/pkg/models"
)

const minReviewLength = 10

const reviewSelect = `
	SELECT r.id, r.service_id, r.user_id, u.username, r.rating, r.text, r.created_at
	FROM reviews r
	JOIN users u ON u.id = r.user_id`

// refreshAggregation rewrites the cached average and count for one service.
const refreshAggregation = `
	INSERT INTO service_rating_aggregations (service_id, average, count)
	SELECT $1, COALESCE(AVG(rating), 0), COUNT(*) FROM reviews WHERE service_id = $1
	ON CONFLICT (service_id) DO UPDATE SET average = EXCLUDED.average, count = EXCLUDED.count`

// SpamChecker screens review text before it is stored.
type SpamChecker interface {
	IsSpam(ctx context.Context, userID, serviceID int64, text string) bool
}

type ReviewService struct {
	db      DB
	catalog ServiceLookup
	spam    SpamChecker
	cache   CacheInvalidator
	bus     EventPublisher
	metrics *MetricsCollector
	logger  *logrus.Logger
}

// NewReviewService builds the service; spam may be nil to accept every review
// and cache nil when responses are not cached.
func NewReviewService(db DB, catalog ServiceLookup, spam SpamChecker, cache CacheInvalidator, bus EventPublisher, metrics *MetricsCollector, logger *logrus.Logger) *ReviewService {
	return &ReviewService{db: db, catalog: catalog, spam: spam, cache: cache, bus: bus, metrics: metrics, logger: logger}
}

// invalidate drops cached service responses; reviews change ratings on both
// the detail and the list payloads.
func (s *ReviewService) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, CachedServicesPath)
	}
}

func scanReview(row pgx.Row) (*models.Review, error) {
	var r models.Review
	if err := row.Scan(&r.ID, &r.ServiceID, &r.UserID, &r.UserName, &r.Rating, &r.Text, &r.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: review", ErrNotFound)
		}
		return nil, err
	}
	return &r, nil
}

// Create stores a user's single review of an active service.
func (s *ReviewService) Create(ctx context.Context, userID, serviceID int64, req *models.ReviewRequest) (*models.Review, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	text := strings.TrimSpace(req.Text)
	if req.Rating < 1 || req.Rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}
	if utf8.RuneCountInString(text) < minReviewLength {
		return nil, fmt.Errorf("%w: review text must be at least %d characters", ErrInvalidInput, minReviewLength)
	}
	if _, err := s.catalog.GetActiveService(ctx, serviceID); err != nil {
		return nil, err
	}
	if s.spam != nil && s.spam.IsSpam(ctx, userID, serviceID, text) {
		return nil, fmt.Errorf("%w: review was flagged as spam", ErrInvalidInput)
	}

	var review *models.Review
	err := withTx(ctx, s.db, func(tx pgx.Tx) error {
		r, err := scanReview(tx.QueryRow(ctx, `
			WITH inserted AS (
				INSERT INTO reviews (service_id, user_id, rating, text)
				VALUES ($1, $2, $3, $4)
				RETURNING id, service_id, user_id, rating, text, created_at
			)
			SELECT i.id, i.service_id, i.user_id, u.username, i.rating, i.text, i.created_at
			FROM inserted i JOIN users u ON u.id = i.user_id`,
			serviceID, userID, req.Rating, text))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: you have already reviewed this service", ErrConflict)
			}
			return fmt.Errorf("failed to create review: %w", err)
		}
		if _, err := tx.Exec(ctx, refreshAggregation, serviceID); err != nil {
			return fmt.Errorf("failed to refresh rating aggregation: %w", err)
		}
		review = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.metrics.RecordReview()
	publishEvent(ctx, s.bus, s.logger, messaging.EventReviewCreated, userID, map[string]any{
		"review_id":  review.ID,
		"service_id": serviceID,
		"rating":     review.Rating,
	})
	return review, nil
}

func (s *ReviewService) ListForService(ctx context.Context, serviceID int64, page, pageSize int) (models.Page[models.Review], error) {
	page, pageSize = normalizePage(page, pageSize)

	var count int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM reviews WHERE service_id = $1`, serviceID).Scan(&count); err != nil {
		return models.Page[models.Review]{}, fmt.Errorf("failed to count reviews: %w", err)
	}

	reviews, err := s.query(ctx, reviewSelect+`
		WHERE r.service_id = $1
		ORDER BY r.created_at DESC
		LIMIT $2 OFFSET $3`, serviceID, pageSize, (page-1)*pageSize)
	if err != nil {
		return models.Page[models.Review]{}, err
	}
	return models.NewPage(reviews, count, page, pageSize), nil
}

func (s *ReviewService) ListForUser(ctx context.Context, userID int64) ([]models.Review, error) {
	return s.query(ctx, reviewSelect+` WHERE r.user_id = $1 ORDER BY r.created_at DESC`, userID)
}

// ListAll is the moderation listing across every service, newest first.
func (s *ReviewService) ListAll(ctx context.Context, f models.ReviewFilter) (models.Page[models.Review], error) {
	page, pageSize := normalizePage(f.Page, f.PageSize)

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.ServiceID != nil {
		where = append(where, "r.service_id = "+arg(*f.ServiceID))
	}
	if f.UserID != nil {
		where = append(where, "r.user_id = "+arg(*f.UserID))
	}
	if f.Rating != nil {
		where = append(where, "r.rating = "+arg(*f.Rating))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM reviews r`+clause, args...).Scan(&total); err != nil {
		return models.Page[models.Review]{}, fmt.Errorf("failed to count reviews: %w", err)
	}

	listSQL := reviewSelect + clause + " ORDER BY r.created_at DESC, r.id DESC" +
		" LIMIT " + arg(pageSize) + " OFFSET " + arg((page-1)*pageSize)
	reviews, err := s.query(ctx, listSQL, args...)
	if err != nil {
		return models.Page[models.Review]{}, err
	}
	return models.NewPage(reviews, total, page, pageSize), nil
}

func (s *ReviewService) Get(ctx context.Context, id int64) (*models.Review, error) {
	return scanReview(s.db.QueryRow(ctx, reviewSelect+` WHERE r.id = $1`, id))
}

// Update applies a moderator edit and refreshes the service's rating aggregate.
func (s *ReviewService) Update(ctx context.Context, id int64, req *models.ReviewUpdateRequest) (*models.Review, error) {
	if req.Rating == nil && req.Text == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}
	var text *string
	if req.Text != nil {
		trimmed := strings.TrimSpace(*req.Text)
		if utf8.RuneCountInString(trimmed) < minReviewLength {
			return nil, fmt.Errorf("%w: review text must be at least %d characters", ErrInvalidInput, minReviewLength)
		}
		text = &trimmed
	}

	var review *models.Review
	err := withTx(ctx, s.db, func(tx pgx.Tx) error {
		var serviceID int64
		err := tx.QueryRow(ctx, `
			UPDATE reviews SET rating = COALESCE($2, rating), text = COALESCE($3, text)
			WHERE id = $1
			RETURNING service_id`, id, req.Rating, text).Scan(&serviceID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: review", ErrNotFound)
			}
			return fmt.Errorf("failed to update review: %w", err)
		}
		if _, err := tx.Exec(ctx, refreshAggregation, serviceID); err != nil {
			return fmt.Errorf("failed to refresh rating aggregation: %w", err)
		}
		review, err = scanReview(tx.QueryRow(ctx, reviewSelect+` WHERE r.id = $1`, id))
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.WithFields(logrus.Fields{"review_id": id, "service_id": review.ServiceID}).Info("Review moderated")
	return review, nil
}

func (s *ReviewService) query(ctx context.Context, sql string, args ...any) ([]models.Review, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []models.Review{}
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, *r)
	}
	return reviews, rows.Err()
}

// Delete removes a review. Non-staff callers may only delete their own;
// someone else's review looks the same as a missing one.
func (s *ReviewService) Delete(ctx context.Context, id, userID int64, isStaff bool) error {
	var owner *int64
	if !isStaff {
		owner = &userID
	}

	err := withTx(ctx, s.db, func(tx pgx.Tx) error {
		var serviceID int64
		err := tx.QueryRow(ctx, `
			DELETE FROM reviews WHERE id = $1 AND ($2::bigint IS NULL OR user_id = $2)
			RETURNING service_id`, id, owner).Scan(&serviceID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: review", ErrNotFound)
			}
			return fmt.Errorf("failed to delete review: %w", err)
		}
		if _, err := tx.Exec(ctx, refreshAggregation, serviceID); err != nil {
			return fmt.Errorf("failed to refresh rating aggregation: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *ReviewService) Summary(ctx context.Context, serviceID int64) (*models.RatingSummary, error) {
	rows, err := s.db.Query(ctx, `SELECT rating FROM reviews WHERE service_id = $1`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ratings: %w", err)
	}
	defer rows.Close()

	var ratings []int
	for rows.Next() {
		var r int
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		ratings = append(ratings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	summary := SummarizeRatings(serviceID, ratings)
	return &summary, nil
}

// SummarizeRatings computes the mean, sample standard deviation and star
// histogram. Fewer than two ratings have a standard deviation of zero.
func SummarizeRatings(serviceID int64, ratings []int) models.RatingSummary {
	summary := models.RatingSummary{
		ServiceID:    serviceID,
		Count:        len(ratings),
		Distribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
	}
	if len(ratings) == 0 {
		return summary
	}

	xs := make([]float64, len(ratings))
	for i, r := range ratings {
		xs[i] = float64(r)
		summary.Distribution[r]++
	}

	mean, std := stat.MeanStdDev(xs, nil)
	if math.IsNaN(std) {
		std = 0
	}
	summary.Average = round2(mean)
	summary.StdDev = round2(std)
	return summary
}
