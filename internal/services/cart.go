package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/pkg/models"
)

// ServiceLookup resolves services that can be put in a cart.
type ServiceLookup interface {
	GetActiveService(ctx context.Context, id int64) (*models.Service, error)
}

// CartService stores one JSON cart per user in Redis.
type CartService struct {
	redisClient redis.Cmdable
	catalog     ServiceLookup
	ttl         time.Duration
	taxRate     float64
	logger      *logrus.Logger
	now         func() time.Time
}

func NewCartService(redisClient redis.Cmdable, catalog ServiceLookup, ttl time.Duration, taxRate float64, logger *logrus.Logger) *CartService {
	return &CartService{
		redisClient: redisClient,
		catalog:     catalog,
		ttl:         ttl,
		taxRate:     taxRate,
		logger:      logger,
		now:         time.Now,
	}
}

func cartKey(userID int64) string {
	return fmt.Sprintf("cart:%d", userID)
}

func (s *CartService) Get(ctx context.Context, userID int64) (*models.Cart, error) {
	cart := &models.Cart{UserID: userID, Items: []models.CartItem{}}

	raw, err := s.redisClient.Get(ctx, cartKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return cart, nil
		}
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if err := json.Unmarshal(raw, cart); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Discarding unreadable cart")
		return &models.Cart{UserID: userID, Items: []models.CartItem{}}, nil
	}

	s.applyTotals(cart)
	return cart, nil
}

// Add puts quantity units of a service in the cart, merging with an existing line.
func (s *CartService) Add(ctx context.Context, userID, serviceID int64, quantity int) (*models.Cart, error) {
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}

	svc, err := s.catalog.GetActiveService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	cart, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	merged := false
	for i := range cart.Items {
		if cart.Items[i].ServiceID == serviceID {
			cart.Items[i].Quantity += quantity
			cart.Items[i].Price = svc.Price
			cart.Items[i].ServiceName = svc.Name
			merged = true
			break
		}
	}
	if !merged {
		cart.Items = append(cart.Items, models.CartItem{
			ServiceID:   serviceID,
			ServiceName: svc.Name,
			Quantity:    quantity,
			Price:       svc.Price,
		})
	}

	return cart, s.save(ctx, cart)
}

func (s *CartService) Remove(ctx context.Context, userID, serviceID int64) (*models.Cart, error) {
	cart, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	kept := cart.Items[:0]
	found := false
	for _, item := range cart.Items {
		if item.ServiceID == serviceID {
			found = true
			continue
		}
		kept = append(kept, item)
	}
	if !found {
		return nil, ErrNotFound
	}
	cart.Items = kept

	return cart, s.save(ctx, cart)
}

// UpdateQuantity sets the quantity of a line; zero or less removes it.
func (s *CartService) UpdateQuantity(ctx context.Context, userID, serviceID int64, quantity int) (*models.Cart, error) {
	if quantity <= 0 {
		return s.Remove(ctx, userID, serviceID)
	}

	cart, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	for i := range cart.Items {
		if cart.Items[i].ServiceID == serviceID {
			cart.Items[i].Quantity = quantity
			return cart, s.save(ctx, cart)
		}
	}
	return nil, ErrNotFound
}

func (s *CartService) Clear(ctx context.Context, userID int64) error {
	if err := s.redisClient.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

func (s *CartService) save(ctx context.Context, cart *models.Cart) error {
	now := s.now().UTC()
	if cart.CreatedAt == nil {
		cart.CreatedAt = &now
	}
	cart.UpdatedAt = &now
	s.applyTotals(cart)

	if len(cart.Items) == 0 {
		return s.Clear(ctx, cart.UserID)
	}

	payload, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}
	if err := s.redisClient.Set(ctx, cartKey(cart.UserID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}

func (s *CartService) applyTotals(cart *models.Cart) {
	subtotal, tax, total := Totals(cart.Items, s.taxRate)
	cart.Subtotal = subtotal
	cart.Tax = tax
	cart.Total = total
}

// Totals computes subtotal, tax and total rounded to cents.
func Totals(items []models.CartItem, taxRate float64) (subtotal, tax, total float64) {
	for _, item := range items {
		subtotal += float64(item.Quantity) * item.Price
	}
	subtotal = round2(subtotal)
	tax = round2(subtotal * taxRate)
	total = round2(subtotal + tax)
	return subtotal, tax, total
}
