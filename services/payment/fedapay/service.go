package fedapay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	pkgerrors "github.com/pkg/errors"

	"github.com/academiahub/backend/core"
	"github.com/academiahub/backend/core/payment"
)

// SignatureHeader carries the webhook signature, of the form
// "t=<unix ts>,s=<hex hmac-sha256>" computed over "<ts>.<payload>".
const SignatureHeader = "x-fedapay-signature"

type service struct {
	client        *resty.Client
	webhookSecret []byte
}

var _ payment.Gateway = (*service)(nil)

func NewService(conf *core.Config) payment.Gateway {
	client := resty.New().
		SetHostURL(conf.FedaPay.BaseURL).
		SetTimeout(30*time.Second).
		SetAuthToken(conf.FedaPay.SecretKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &service{
		client:        client,
		webhookSecret: []byte(conf.FedaPay.WebhookSecret),
	}
}

type (
	apiTransaction struct {
		ID          json.Number      `json:"id"`
		Reference   string           `json:"reference"`
		Status      string           `json:"status"`
		Amount      int64            `json:"amount"`
		Description string           `json:"description"`
		Currency    *apiCurrency     `json:"currency,omitempty"`
		Metadata    payment.Metadata `json:"metadata"`
	}

	apiCurrency struct {
		ISO string `json:"iso"`
	}

	transactionEnvelope struct {
		Transaction apiTransaction `json:"v1/transaction"`
	}

	tokenEnvelope struct {
		Token string `json:"token"`
		URL   string `json:"url"`
	}

	webhookEvent struct {
		Name   string         `json:"name"`
		Entity apiTransaction `json:"entity"`
	}
)

func (t apiTransaction) snapshot() payment.Transaction {
	snap := payment.Transaction{
		ID:        t.ID.String(),
		Reference: t.Reference,
		Status:    normalizeStatus(t.Status),
		Amount:    t.Amount,
		Metadata:  t.Metadata,
	}
	if t.Currency != nil {
		snap.Currency = t.Currency.ISO
	}
	return snap
}

func normalizeStatus(s string) payment.TransactionStatus {
	switch s {
	case "pending":
		return payment.StatusPending
	case "approved", "transferred":
		return payment.StatusApproved
	case "declined":
		return payment.StatusDeclined
	case "canceled":
		return payment.StatusCanceled
	default:
		return payment.StatusFailed
	}
}

func (svc *service) CreateTransaction(ctx context.Context, nt payment.NewTransaction) (payment.Transaction, error) {
	body := map[string]interface{}{
		"description":  nt.Description,
		"amount":       nt.Amount,
		"currency":     map[string]string{"iso": nt.Currency},
		"customer":     nt.Customer,
		"metadata":     nt.Metadata,
		"callback_url": nt.CallbackURL,
	}

	var envelope transactionEnvelope
	resp, err := svc.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&envelope).
		Post("/v1/transactions")
	if err != nil {
		return payment.Transaction{}, payment.NewGatewayError(pkgerrors.Wrap(err, "creating transaction"))
	}
	if resp.IsError() {
		return payment.Transaction{}, payment.NewGatewayError(
			pkgerrors.Errorf("creating transaction: %s: %s", resp.Status(), resp.String()))
	}
	snap := envelope.Transaction.snapshot()

	// a second call mints the checkout token/URL for the transaction
	var token tokenEnvelope
	resp, err = svc.client.R().
		SetContext(ctx).
		SetResult(&token).
		Post(fmt.Sprintf("/v1/transactions/%s/token", snap.ID))
	if err != nil {
		return payment.Transaction{}, payment.NewGatewayError(pkgerrors.Wrap(err, "creating payment token"))
	}
	if resp.IsError() {
		return payment.Transaction{}, payment.NewGatewayError(
			pkgerrors.Errorf("creating payment token: %s: %s", resp.Status(), resp.String()))
	}
	snap.PaymentURL = token.URL
	return snap, nil
}

func (svc *service) GetTransaction(ctx context.Context, id string) (payment.Transaction, error) {
	var envelope transactionEnvelope
	resp, err := svc.client.R().
		SetContext(ctx).
		SetResult(&envelope).
		Get(fmt.Sprintf("/v1/transactions/%s", id))
	if err != nil {
		return payment.Transaction{}, payment.NewGatewayError(pkgerrors.Wrap(err, "fetching transaction"))
	}
	if resp.IsError() {
		return payment.Transaction{}, payment.NewGatewayError(
			pkgerrors.Errorf("fetching transaction %s: %s", id, resp.Status()))
	}
	return envelope.Transaction.snapshot(), nil
}

// VerifySignature checks the webhook signature in constant time.
func (svc *service) VerifySignature(payload []byte, signature string) bool {
	ts, sig := splitSignature(signature)
	if ts == "" || sig == "" {
		return false
	}
	expected, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, svc.webhookSecret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expected)
}

func splitSignature(header string) (ts, sig string) {
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts = kv[1]
		case "s":
			sig = kv[1]
		}
	}
	return ts, sig
}

// ParseWebhook returns the normalized transaction for transaction-status
// events, or nil for invalid signatures and non-transaction events; both are
// silently ignorable by the caller.
func (svc *service) ParseWebhook(payload []byte, signature string) (*payment.Transaction, error) {
	if !svc.VerifySignature(payload, signature) {
		return nil, nil
	}

	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, pkgerrors.Wrap(err, "decoding webhook payload")
	}
	if !strings.HasPrefix(event.Name, "transaction.") {
		return nil, nil
	}

	snap := event.Entity.snapshot()
	return &snap, nil
}

// Sign computes a webhook signature for a payload at a given unix timestamp.
// Exported for tests and local webhook replay tooling.
func Sign(secret []byte, ts string, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,s=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}
