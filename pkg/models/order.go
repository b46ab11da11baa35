package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	OrderStatusPending    = "pending"
	OrderStatusConfirmed  = "confirmed"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"

	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"

	PaymentStatusPartiallyRefunded = "partially_refunded"
)

var OrderStatuses = []string{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

type Order struct {
	ID              int64       `json:"id" db:"id"`
	OrderID         uuid.UUID   `json:"order_id" db:"order_id"`
	UserID          int64       `json:"user_id" db:"user_id"`
	Status          string      `json:"status" db:"status"`
	PaymentStatus   string      `json:"payment_status" db:"payment_status"`
	CustomerName    string      `json:"customer_name" db:"customer_name"`
	CustomerAddress string      `json:"customer_address" db:"customer_address"`
	CustomerPhone   string      `json:"customer_phone" db:"customer_phone"`
	PaymentMethod   string      `json:"payment_method" db:"payment_method"`
	TransactionID   *string     `json:"transaction_id,omitempty" db:"transaction_id"`
	Subtotal        float64     `json:"subtotal" db:"subtotal"`
	Tax             float64     `json:"tax" db:"tax"`
	Total           float64     `json:"total" db:"total"`
	Items           []OrderItem `json:"items"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}

type OrderItem struct {
	ID          int64   `json:"id" db:"id"`
	ServiceID   int64   `json:"service_id" db:"service_id"`
	ServiceName string  `json:"service_name" db:"service_name"`
	Quantity    int     `json:"quantity" db:"quantity"`
	Price       float64 `json:"price" db:"price"`
}

func (i OrderItem) TotalPrice() float64 {
	return float64(i.Quantity) * i.Price
}

type Cart struct {
	UserID    int64      `json:"user_id"`
	Items     []CartItem `json:"items"`
	Subtotal  float64    `json:"subtotal"`
	Tax       float64    `json:"tax"`
	Total     float64    `json:"total"`
	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

type CartItem struct {
	ServiceID   int64   `json:"service_id"`
	ServiceName string  `json:"service_name"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

type CartItemRequest struct {
	ServiceID int64 `json:"service_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"omitempty,min=-1000,max=1000"`
}

type CheckoutRequest struct {
	Name    string `json:"name" validate:"required,max=100"`
	Address string `json:"address" validate:"required,max=500"`
	Phone   string `json:"phone" validate:"required,max=20"`
}

type CheckoutResponse struct {
	Order         *Order `json:"order"`
	GatewayURL    string `json:"gateway_url"`
	SessionKey    string `json:"sessionkey"`
	TransactionID string `json:"transaction_id"`
}

type OrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed processing completed cancelled"`
}
