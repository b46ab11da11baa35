package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/pkg/models"
)

const serviceSelect = `
	SELECT s.id, COALESCE(s.owner_id, 0), s.category_id, c.name, s.name, s.slug, s.short_desc,
		s.description, s.price::float8, s.is_active, COALESCE(a.average, 0)::float8,
		COALESCE(a.count, 0), s.created_at
	FROM services s
	JOIN service_categories c ON c.id = s.category_id
	LEFT JOIN service_rating_aggregations a ON a.service_id = s.id`

var serviceOrderings = map[string]string{
	"price":       "s.price ASC",
	"-price":      "s.price DESC",
	"name":        "s.name ASC",
	"-name":       "s.name DESC",
	"created_at":  "s.created_at ASC",
	"-created_at": "s.created_at DESC",
	"rating":      "COALESCE(a.average, 0) ASC",
	"-rating":     "COALESCE(a.average, 0) DESC",
}

// MembershipFilter is a probabilistic set of known service ids.
type MembershipFilter interface {
	Reserve(ctx context.Context) error
	Add(ctx context.Context, item string) error
	AddMany(ctx context.Context, items []string) error
	Exists(ctx context.Context, item string) (bool, error)
}

type CatalogService struct {
	db     DB
	bloom  MembershipFilter
	cache  CacheInvalidator
	logger *logrus.Logger

	// bloomReady is set once the filter holds every service id. A filter that
	// missed an id answers "absent" for a row that exists, so it is only
	// consulted while this is true.
	bloomReady atomic.Bool
}

// NewCatalogService accepts a nil filter, in which case every lookup hits the
// database, and a nil cache when responses are not cached.
func NewCatalogService(db DB, bloom MembershipFilter, cache CacheInvalidator, logger *logrus.Logger) *CatalogService {
	return &CatalogService{db: db, bloom: bloom, cache: cache, logger: logger}
}

func (s *CatalogService) invalidate(ctx context.Context, paths ...string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, paths...)
	}
}

// BloomReady reports whether detail lookups are currently gated by the filter.
func (s *CatalogService) BloomReady() bool {
	return s.bloom != nil && s.bloomReady.Load()
}

func scanService(row pgx.Row) (*models.Service, error) {
	var s models.Service
	err := row.Scan(&s.ID, &s.OwnerID, &s.CategoryID, &s.Category, &s.Name, &s.Slug, &s.ShortDesc,
		&s.Description, &s.Price, &s.IsActive, &s.AvgRating, &s.ReviewCount, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Categories

func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, slug, description FROM service_categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Description); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *CatalogService) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	var c models.Category
	err := s.db.QueryRow(ctx,
		`SELECT id, name, slug, description FROM service_categories WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Slug, &c.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &c, err
}

func (s *CatalogService) CreateCategory(ctx context.Context, req *models.CategoryRequest) (*models.Category, error) {
	slug := Slugify(req.Name)
	if slug == "" {
		return nil, fmt.Errorf("%w: name must contain letters or digits", ErrInvalidInput)
	}

	var c models.Category
	err := s.db.QueryRow(ctx, `
		INSERT INTO service_categories (name, slug, description) VALUES ($1, $2, $3)
		RETURNING id, name, slug, description`,
		strings.TrimSpace(req.Name), slug, req.Description,
	).Scan(&c.ID, &c.Name, &c.Slug, &c.Description)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: category %q", ErrConflict, req.Name)
		}
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	s.invalidate(ctx, CachedCategoriesPath)
	return &c, nil
}

func (s *CatalogService) UpdateCategory(ctx context.Context, id int64, req *models.CategoryRequest) (*models.Category, error) {
	var c models.Category
	err := s.db.QueryRow(ctx, `
		UPDATE service_categories SET name = $2, slug = $3, description = $4 WHERE id = $1
		RETURNING id, name, slug, description`,
		id, strings.TrimSpace(req.Name), Slugify(req.Name), req.Description,
	).Scan(&c.ID, &c.Name, &c.Slug, &c.Description)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrNotFound
	case isUniqueViolation(err):
		return nil, fmt.Errorf("%w: category %q", ErrConflict, req.Name)
	case err != nil:
		return nil, fmt.Errorf("failed to update category: %w", err)
	}
	// Service payloads carry the category name.
	s.invalidate(ctx, CachedCategoriesPath, CachedServicesPath)
	return &c, nil
}

func (s *CatalogService) DeleteCategory(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM service_categories WHERE id = $1`, id)
	if err != nil {
		// services.category_id is ON DELETE RESTRICT
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: category still has services", ErrConflict)
		}
		return fmt.Errorf("failed to delete category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.invalidate(ctx, CachedCategoriesPath)
	return nil
}

// Services

func (s *CatalogService) ListServices(ctx context.Context, f models.ServiceFilter) (models.Page[models.Service], error) {
	page, pageSize := normalizePage(f.Page, f.PageSize)

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.ActiveOnly {
		where = append(where, "s.is_active")
	}
	if f.CategoryID != nil {
		where = append(where, "s.category_id = "+arg(*f.CategoryID))
	}
	if f.OwnerID != nil {
		where = append(where, "s.owner_id = "+arg(*f.OwnerID))
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		p := arg("%" + q + "%")
		where = append(where, "(s.name ILIKE "+p+" OR s.short_desc ILIKE "+p+" OR s.description ILIKE "+p+")")
	}
	if f.MinPrice != nil {
		where = append(where, "s.price >= "+arg(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		where = append(where, "s.price <= "+arg(*f.MaxPrice))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countSQL := `SELECT COUNT(*) FROM services s` + clause
	if err := s.db.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return models.Page[models.Service]{}, fmt.Errorf("failed to count services: %w", err)
	}

	order, ok := serviceOrderings[f.Ordering]
	if !ok {
		order = serviceOrderings["-created_at"]
	}

	listSQL := serviceSelect + clause + " ORDER BY " + order + ", s.id" +
		" LIMIT " + arg(pageSize) + " OFFSET " + arg((page-1)*pageSize)

	rows, err := s.db.Query(ctx, listSQL, args...)
	if err != nil {
		return models.Page[models.Service]{}, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	items := make([]models.Service, 0, pageSize)
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return models.Page[models.Service]{}, err
		}
		items = append(items, *svc)
	}
	if err := rows.Err(); err != nil {
		return models.Page[models.Service]{}, err
	}

	return models.NewPage(items, total, page, pageSize), nil
}

// GetService returns a service by id. Once the bloom filter is warm a
// negative answer short-circuits to ErrNotFound; filter errors fall through
// to the database.
func (s *CatalogService) GetService(ctx context.Context, id int64) (*models.Service, error) {
	if s.BloomReady() {
		exists, err := s.bloom.Exists(ctx, strconv.FormatInt(id, 10))
		if err != nil {
			s.logger.WithError(err).Debug("Bloom filter lookup failed, querying database")
		} else if !exists {
			return nil, ErrNotFound
		}
	}

	return scanService(s.db.QueryRow(ctx, serviceSelect+` WHERE s.id = $1`, id))
}

// GetActiveService is GetService restricted to services open for ordering.
func (s *CatalogService) GetActiveService(ctx context.Context, id int64) (*models.Service, error) {
	svc, err := s.GetService(ctx, id)
	if err != nil {
		return nil, err
	}
	if !svc.IsActive {
		return nil, ErrNotFound
	}
	return svc, nil
}

func (s *CatalogService) CreateService(ctx context.Context, ownerID int64, req *models.ServiceRequest) (*models.Service, error) {
	base := Slugify(req.Name)
	if base == "" {
		return nil, fmt.Errorf("%w: name must contain letters or digits", ErrInvalidInput)
	}
	slug, err := s.uniqueServiceSlug(ctx, base)
	if err != nil {
		return nil, err
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	var id int64
	err = s.db.QueryRow(ctx, `
		INSERT INTO services (owner_id, category_id, name, slug, short_desc, description, price, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		ownerID, req.CategoryID, strings.TrimSpace(req.Name), slug, req.ShortDesc, req.Description,
		round2(req.Price), active,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: service slug %q", ErrConflict, slug)
		}
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: unknown category", ErrInvalidInput)
		}
		return nil, fmt.Errorf("failed to create service: %w", err)
	}

	if s.bloom != nil {
		if err := s.bloom.Add(ctx, strconv.FormatInt(id, 10)); err != nil {
			// The filter no longer covers every id; stop trusting it until the
			// next warm-up.
			s.bloomReady.Store(false)
			s.logger.WithError(err).WithField("service_id", id).Warn("Failed to add service to bloom filter, disabling it")
		}
	}
	s.invalidate(ctx, CachedServicesPath)

	return scanService(s.db.QueryRow(ctx, serviceSelect+` WHERE s.id = $1`, id))
}

func (s *CatalogService) uniqueServiceSlug(ctx context.Context, base string) (string, error) {
	slug := base
	for i := 2; i < 100; i++ {
		var taken bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM services WHERE slug = $1)`, slug).Scan(&taken); err != nil {
			return "", fmt.Errorf("failed to check slug: %w", err)
		}
		if !taken {
			return slug, nil
		}
		slug = base + "-" + strconv.Itoa(i)
	}
	return "", fmt.Errorf("%w: too many services named %q", ErrConflict, base)
}

// UpdateService edits a service. A non-nil ownerID restricts the update to that owner's services.
func (s *CatalogService) UpdateService(ctx context.Context, id int64, ownerID *int64, req *models.ServiceRequest) (*models.Service, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE services SET category_id = $2, name = $3, short_desc = $4, description = $5,
			price = $6, is_active = COALESCE($7, is_active)
		WHERE id = $1 AND ($8::bigint IS NULL OR owner_id = $8)`,
		id, req.CategoryID, strings.TrimSpace(req.Name), req.ShortDesc, req.Description,
		round2(req.Price), req.IsActive, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	s.invalidate(ctx, CachedServicesPath)
	return scanService(s.db.QueryRow(ctx, serviceSelect+` WHERE s.id = $1`, id))
}

func (s *CatalogService) DeleteService(ctx context.Context, id int64, ownerID *int64) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM services WHERE id = $1 AND ($2::bigint IS NULL OR owner_id = $2)`, id, ownerID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: service has orders", ErrConflict)
		}
		return fmt.Errorf("failed to delete service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.invalidate(ctx, CachedServicesPath)
	return nil
}

// WarmBloomFilter reserves the filter and loads every existing service id.
// Lookups consult the filter only after it returns nil.
func (s *CatalogService) WarmBloomFilter(ctx context.Context) error {
	if s.bloom == nil {
		return nil
	}
	s.bloomReady.Store(false)
	if err := s.bloom.Reserve(ctx); err != nil {
		return err
	}

	rows, err := s.db.Query(ctx, `SELECT id FROM services`)
	if err != nil {
		return fmt.Errorf("failed to load service ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if err := s.bloom.AddMany(ctx, ids); err != nil {
		return err
	}
	s.bloomReady.Store(true)
	s.logger.WithField("services", len(ids)).Info("Service bloom filter warmed")
	return nil
}
