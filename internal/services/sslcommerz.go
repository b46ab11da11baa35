package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	sslcommerzSandboxURL = "https://sandbox.sslcommerz.com"
	sslcommerzLiveURL    = "https://securepay.sslcommerz.com"
)

type SessionRequest struct {
	TransactionID   string
	Amount          float64
	Currency        string
	NumItems        int
	CustomerName    string
	CustomerEmail   string
	CustomerAddress string
	CustomerPhone   string
}

type SessionResult struct {
	Status       string `json:"status"`
	SessionKey   string `json:"sessionkey"`
	GatewayURL   string `json:"GatewayPageURL"`
	FailedReason string `json:"failedreason"`
}

type ValidationResult struct {
	Status     string      `json:"status"`
	TranID     string      `json:"tran_id"`
	ValID      string      `json:"val_id"`
	Amount     json.Number `json:"amount"`
	Currency   string      `json:"currency"`
	BankTranID string      `json:"bank_tran_id"`
	CardType   string      `json:"card_type"`
}

// Gateway is the hosted payment page provider.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*SessionResult, error)
	Validate(ctx context.Context, valID, tranID string) (*ValidationResult, error)
}

// NewTransactionID returns homeser_{order uuid}_{8 hex}.
func NewTransactionID(orderID uuid.UUID) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("homeser_%s_%s", orderID, suffix)
}

type CallbackURLs struct {
	Success string
	Fail    string
	Cancel  string
	IPN     string
}

func CallbackURLsFor(backendURL string) CallbackURLs {
	base := strings.TrimRight(backendURL, "/")
	return CallbackURLs{
		Success: base + "/api/payments/success/",
		Fail:    base + "/api/payments/fail/",
		Cancel:  base + "/api/payments/cancel/",
		IPN:     base + "/api/payments/ipn/",
	}
}

// SSLCommerzGateway talks to the SSLCommerz v4 session and validator APIs.
type SSLCommerzGateway struct {
	baseURL   string
	storeID   string
	storePass string
	urls      CallbackURLs
	client    *http.Client
	logger    *logrus.Logger
}

func NewSSLCommerzGateway(storeID, storePass string, sandbox bool, urls CallbackURLs, timeout time.Duration, logger *logrus.Logger) *SSLCommerzGateway {
	base := sslcommerzLiveURL
	if sandbox {
		base = sslcommerzSandboxURL
	}
	return &SSLCommerzGateway{
		baseURL:   base,
		storeID:   storeID,
		storePass: storePass,
		urls:      urls,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

func (g *SSLCommerzGateway) CreateSession(ctx context.Context, req SessionRequest) (*SessionResult, error) {
	form := url.Values{
		"store_id":         {g.storeID},
		"store_passwd":     {g.storePass},
		"total_amount":     {strconv.FormatFloat(req.Amount, 'f', 2, 64)},
		"currency":         {req.Currency},
		"tran_id":          {req.TransactionID},
		"success_url":      {g.urls.Success},
		"fail_url":         {g.urls.Fail},
		"cancel_url":       {g.urls.Cancel},
		"ipn_url":          {g.urls.IPN},
		"cus_name":         {req.CustomerName},
		"cus_email":        {req.CustomerEmail},
		"cus_add1":         {req.CustomerAddress},
		"cus_city":         {"Dhaka"},
		"cus_postcode":     {"1000"},
		"cus_country":      {"Bangladesh"},
		"cus_phone":        {req.CustomerPhone},
		"shipping_method":  {"NO"},
		"product_name":     {"HomeSer Service"},
		"product_category": {"service"},
		"product_profile":  {"general"},
		"num_of_item":      {strconv.Itoa(req.NumItems)},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/gwprocess/v4/api.php", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var result SessionResult
	if err := g.do(httpReq, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (g *SSLCommerzGateway) Validate(ctx context.Context, valID, tranID string) (*ValidationResult, error) {
	q := url.Values{
		"val_id":       {valID},
		"store_id":     {g.storeID},
		"store_passwd": {g.storePass},
		"format":       {"json"},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.baseURL+"/validator/api/validationserverAPI.php?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var result ValidationResult
	if err := g.do(httpReq, &result); err != nil {
		return nil, err
	}

	g.logger.WithFields(logrus.Fields{
		"tran_id": tranID,
		"status":  result.Status,
	}).Debug("Gateway validation response")
	return &result, nil
}

func (g *SSLCommerzGateway) do(req *http.Request, out any) error {
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: unexpected status %d", ErrGateway, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrGateway, err)
	}
	return nil
}
