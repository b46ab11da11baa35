package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/internal/messaging"
	"github.com/temcen/homeser/pkg/models"
)

const (
	gatewayStatusSuccess = "SUCCESS"
	gatewayStatusValid   = "VALID"

	logSessionCreated     = "session_created"
	logValidationResponse = "validation_response"
	logRefundInitiated    = "refund_initiated"
	logDisputeInitiated   = "dispute_initiated"
)

var ErrPaymentRejected = errors.New("payment validation failed")

const paymentColumns = `id, order_id, user_id, transaction_id, amount::float8, currency, status,
	session_key, val_id, bank_tran_id, card_type, created_at, updated_at`

// CheckValidation compares the gateway's validation response against the
// stored payment. Checks run in order and the first mismatch is returned.
func CheckValidation(v *ValidationResult, p *models.Payment) error {
	if v.Status != gatewayStatusValid {
		return fmt.Errorf("%w: gateway status %q", ErrPaymentRejected, v.Status)
	}
	if v.TranID != p.TransactionID {
		return fmt.Errorf("%w: transaction id mismatch", ErrPaymentRejected)
	}
	amount, err := v.Amount.Float64()
	if err != nil {
		return fmt.Errorf("%w: invalid amount %q", ErrPaymentRejected, v.Amount)
	}
	if math.Round(amount*100) != math.Round(p.Amount*100) {
		return fmt.Errorf("%w: amount mismatch", ErrPaymentRejected)
	}
	if v.Currency != p.Currency {
		return fmt.Errorf("%w: currency mismatch", ErrPaymentRejected)
	}
	return nil
}

type PaymentService struct {
	db       DB
	gateway  Gateway
	bus      EventPublisher
	metrics  *MetricsCollector
	currency string
	logger   *logrus.Logger
}

func NewPaymentService(db DB, gateway Gateway, bus EventPublisher, metrics *MetricsCollector, currency string, logger *logrus.Logger) *PaymentService {
	return &PaymentService{
		db:       db,
		gateway:  gateway,
		bus:      bus,
		metrics:  metrics,
		currency: currency,
		logger:   logger,
	}
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.UserID, &p.TransactionID, &p.Amount, &p.Currency, &p.Status,
		&p.SessionKey, &p.ValID, &p.BankTranID, &p.CardType, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: payment", ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

func insertPaymentLog(ctx context.Context, tx pgx.Tx, paymentID int64, action string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT INTO payment_logs (payment_id, action, data) VALUES ($1, $2, $3)`,
		paymentID, action, payload)
	return err
}

// StartSession opens a hosted payment session for the order and records the
// payment row. A rejected or unreachable gateway returns ErrGateway.
func (s *PaymentService) StartSession(ctx context.Context, order *models.Order, email string) (*models.Payment, string, error) {
	tranID := NewTransactionID(order.OrderID)
	numItems := 0
	for _, item := range order.Items {
		numItems += item.Quantity
	}

	session, err := s.gateway.CreateSession(ctx, SessionRequest{
		TransactionID:   tranID,
		Amount:          order.Total,
		Currency:        s.currency,
		NumItems:        numItems,
		CustomerName:    order.CustomerName,
		CustomerEmail:   email,
		CustomerAddress: order.CustomerAddress,
		CustomerPhone:   order.CustomerPhone,
	})
	if err != nil {
		s.metrics.RecordCheckout("gateway_error")
		return nil, "", fmt.Errorf("%w: %v", ErrGateway, err)
	}

	status := models.PaymentPending
	if session.Status != gatewayStatusSuccess {
		status = models.PaymentFailed
	}

	var payment *models.Payment
	err = withTx(ctx, s.db, func(tx pgx.Tx) error {
		p, err := scanPayment(tx.QueryRow(ctx, `
			INSERT INTO payments (order_id, user_id, transaction_id, amount, currency, status, session_key)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING `+paymentColumns,
			order.ID, order.UserID, tranID, order.Total, s.currency, status, session.SessionKey))
		if err != nil {
			return fmt.Errorf("failed to insert payment: %w", err)
		}
		payment = p
		return insertPaymentLog(ctx, tx, p.ID, logSessionCreated, session)
	})
	if err != nil {
		return nil, "", err
	}

	if session.Status != gatewayStatusSuccess {
		s.logger.WithFields(logrus.Fields{
			"order_id": order.OrderID,
			"reason":   session.FailedReason,
		}).Warn("Payment session rejected by gateway")
		s.metrics.RecordCheckout("gateway_rejected")
		return payment, "", fmt.Errorf("%w: %s", ErrGateway, session.FailedReason)
	}
	return payment, session.GatewayURL, nil
}

func (s *PaymentService) GetByTransaction(ctx context.Context, tranID string) (*models.Payment, error) {
	return scanPayment(s.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE transaction_id = $1`, tranID))
}

// HandleIPN validates an instant payment notification with the gateway and
// settles the payment and its order. Repeated notifications for a completed
// payment are acknowledged without another gateway round trip.
func (s *PaymentService) HandleIPN(ctx context.Context, valID, tranID string) (*models.IPNResult, error) {
	payment, err := s.GetByTransaction(ctx, tranID)
	if err != nil {
		return nil, err
	}
	if payment.Status == models.PaymentCompleted {
		return &models.IPNResult{Status: "success", Message: "Payment already processed"}, nil
	}

	validation, err := s.gateway.Validate(ctx, valID, tranID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	if checkErr := CheckValidation(validation, payment); checkErr != nil {
		err := withTx(ctx, s.db, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `
				UPDATE payments SET status = $2, val_id = $3, updated_at = NOW() WHERE id = $1`,
				payment.ID, models.PaymentFailed, valID); err != nil {
				return err
			}
			return insertPaymentLog(ctx, tx, payment.ID, logValidationResponse, validation)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to record payment failure: %w", err)
		}

		s.logger.WithError(checkErr).WithField("transaction_id", tranID).Warn("Payment validation failed")
		s.metrics.RecordPayment(models.PaymentFailed)
		publishEvent(ctx, s.bus, s.logger, messaging.EventPaymentFailed, payment.UserID, map[string]any{
			"transaction_id": tranID,
			"order_id":       payment.OrderID,
			"reason":         checkErr.Error(),
		})
		return &models.IPNResult{Status: "failed", Message: "Payment validation failed", Error: checkErr.Error()}, nil
	}

	err = withTx(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE payments
			SET status = $2, val_id = $3, bank_tran_id = $4, card_type = $5, updated_at = NOW()
			WHERE id = $1`,
			payment.ID, models.PaymentCompleted, valID, validation.BankTranID, validation.CardType); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE orders
			SET status = $2, payment_status = $3, transaction_id = $4, updated_at = NOW()
			WHERE id = $1`,
			payment.OrderID, models.OrderStatusConfirmed, models.PaymentStatusPaid, tranID); err != nil {
			return err
		}
		return insertPaymentLog(ctx, tx, payment.ID, logValidationResponse, validation)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to settle payment: %w", err)
	}

	s.metrics.RecordPayment(models.PaymentCompleted)
	publishEvent(ctx, s.bus, s.logger, messaging.EventPaymentCompleted, payment.UserID, map[string]any{
		"transaction_id": tranID,
		"order_id":       payment.OrderID,
		"amount":         payment.Amount,
	})
	return &models.IPNResult{Status: "success", Message: "Payment validated successfully"}, nil
}

func lockPayment(ctx context.Context, tx pgx.Tx, id int64) (*models.Payment, error) {
	return scanPayment(tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
}

// Refund marks a completed payment refunded. A full refund also cancels the
// order; a partial one only flags the order's payment status. The money
// movement itself happens in the gateway's merchant panel.
func (s *PaymentService) Refund(ctx context.Context, paymentID, actorID int64, req *models.RefundRequest) (*models.Payment, error) {
	var (
		payment *models.Payment
		amount  float64
	)
	err := withTx(ctx, s.db, func(tx pgx.Tx) error {
		p, err := lockPayment(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if p.Status != models.PaymentCompleted {
			return fmt.Errorf("%w: only completed payments can be refunded", ErrConflict)
		}

		amount = p.Amount
		if req.RefundAmount != nil {
			amount = round2(*req.RefundAmount)
		}
		if amount <= 0 || math.Round(amount*100) > math.Round(p.Amount*100) {
			return fmt.Errorf("%w: refund amount must be between 0 and %.2f", ErrInvalidInput, p.Amount)
		}

		orderPaymentStatus := models.PaymentStatusPartiallyRefunded
		var orderStatus *string
		if math.Round(amount*100) == math.Round(p.Amount*100) {
			orderPaymentStatus = models.PaymentStatusRefunded
			cancelled := models.OrderStatusCancelled
			orderStatus = &cancelled
		}

		if _, err := tx.Exec(ctx, `UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1`,
			p.ID, models.PaymentRefunded); err != nil {
			return fmt.Errorf("failed to refund payment: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE orders SET payment_status = $2, status = COALESCE($3, status), updated_at = NOW()
			WHERE id = $1`,
			p.OrderID, orderPaymentStatus, orderStatus); err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}
		if err := insertPaymentLog(ctx, tx, p.ID, logRefundInitiated, map[string]any{
			"refund_amount": amount,
			"reason":        req.Reason,
			"initiated_by":  actorID,
		}); err != nil {
			return err
		}

		p.Status = models.PaymentRefunded
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPayment(models.PaymentRefunded)
	publishEvent(ctx, s.bus, s.logger, messaging.EventPaymentRefunded, payment.UserID, map[string]any{
		"transaction_id": payment.TransactionID,
		"order_id":       payment.OrderID,
		"refund_amount":  amount,
		"reason":         req.Reason,
	})
	s.logger.WithFields(logrus.Fields{
		"payment_id":    payment.ID,
		"refund_amount": amount,
		"initiated_by":  actorID,
	}).Info("Payment refunded")
	return payment, nil
}

// Dispute flags a completed payment for manual review. Customers may only
// dispute their own payments; anyone else's is reported as not found.
func (s *PaymentService) Dispute(ctx context.Context, paymentID, userID int64, isStaff bool, reason string) (*models.Payment, error) {
	var payment *models.Payment
	err := withTx(ctx, s.db, func(tx pgx.Tx) error {
		p, err := lockPayment(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if !isStaff && p.UserID != userID {
			return fmt.Errorf("%w: payment", ErrNotFound)
		}
		if p.Status != models.PaymentCompleted {
			return fmt.Errorf("%w: only completed payments can be disputed", ErrConflict)
		}

		if _, err := tx.Exec(ctx, `UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1`,
			p.ID, models.PaymentDisputed); err != nil {
			return fmt.Errorf("failed to dispute payment: %w", err)
		}
		if err := insertPaymentLog(ctx, tx, p.ID, logDisputeInitiated, map[string]any{
			"dispute_reason": reason,
			"initiated_by":   userID,
		}); err != nil {
			return err
		}

		p.Status = models.PaymentDisputed
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPayment(models.PaymentDisputed)
	publishEvent(ctx, s.bus, s.logger, messaging.EventPaymentDisputed, payment.UserID, map[string]any{
		"transaction_id": payment.TransactionID,
		"order_id":       payment.OrderID,
		"reason":         reason,
	})
	s.logger.WithFields(logrus.Fields{"payment_id": payment.ID, "initiated_by": userID}).Warn("Payment disputed")
	return payment, nil
}

// Analytics summarises payments created in the last days days.
func (s *PaymentService) Analytics(ctx context.Context, days int) (*models.PaymentAnalytics, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)

	a := models.PaymentAnalytics{Days: days}
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       COUNT(*) FILTER (WHERE status = 'pending'),
		       COALESCE(SUM(amount) FILTER (WHERE status = 'completed'), 0)::float8
		FROM payments
		WHERE created_at >= $1`, since).
		Scan(&a.TotalPayments, &a.CompletedPayments, &a.FailedPayments, &a.PendingPayments, &a.TotalRevenue)
	if err != nil {
		return nil, fmt.Errorf("failed to compute payment analytics: %w", err)
	}

	if a.CompletedPayments > 0 {
		a.AverageOrderValue = round2(a.TotalRevenue / float64(a.CompletedPayments))
	}
	if a.TotalPayments > 0 {
		a.SuccessRate = round2(float64(a.CompletedPayments) / float64(a.TotalPayments) * 100)
	}
	a.TotalRevenue = round2(a.TotalRevenue)
	return &a, nil
}
