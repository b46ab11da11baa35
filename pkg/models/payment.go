package models

import "time"

const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
	PaymentRefunded  = "refunded"
	PaymentDisputed  = "disputed"
)

type Payment struct {
	ID            int64     `json:"id" db:"id"`
	OrderID       int64     `json:"order_id" db:"order_id"`
	UserID        int64     `json:"user_id" db:"user_id"`
	TransactionID string    `json:"transaction_id" db:"transaction_id"`
	Amount        float64   `json:"amount" db:"amount"`
	Currency      string    `json:"currency" db:"currency"`
	Status        string    `json:"status" db:"status"`
	SessionKey    string    `json:"session_key,omitempty" db:"session_key"`
	ValID         string    `json:"val_id,omitempty" db:"val_id"`
	BankTranID    string    `json:"bank_tran_id,omitempty" db:"bank_tran_id"`
	CardType      string    `json:"card_type,omitempty" db:"card_type"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// IPNRequest is the gateway's instant payment notification.
type IPNRequest struct {
	ValID      string `json:"val_id" form:"val_id"`
	TranID     string `json:"tran_id" form:"tran_id"`
	Amount     string `json:"amount,omitempty" form:"amount"`
	BankTranID string `json:"bank_tran_id,omitempty" form:"bank_tran_id"`
	CardType   string `json:"card_type,omitempty" form:"card_type"`
	Status     string `json:"status,omitempty" form:"status"`
}

type IPNResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type PaymentAnalytics struct {
	Days              int     `json:"days"`
	TotalPayments     int     `json:"total_payments"`
	CompletedPayments int     `json:"completed_payments"`
	FailedPayments    int     `json:"failed_payments"`
	PendingPayments   int     `json:"pending_payments"`
	TotalRevenue      float64 `json:"total_revenue"`
	AverageOrderValue float64 `json:"average_order_value"`
	SuccessRate       float64 `json:"success_rate"`
}

// RefundRequest refunds the full amount when RefundAmount is omitted.
type RefundRequest struct {
	RefundAmount *float64 `json:"refund_amount,omitempty" validate:"omitempty,gt=0"`
	Reason       string   `json:"reason" validate:"max=500"`
}

type DisputeRequest struct {
	DisputeReason string `json:"dispute_reason" validate:"required,min=10,max=1000"`
}
