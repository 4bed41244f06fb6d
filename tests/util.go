// Package testutil provides shared fakes and helpers for tests across the
// repository.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/academiahub/backend/core"
	"github.com/academiahub/backend/core/payment"
)

// NewConfig returns a test configuration that never touches the environment.
func NewConfig() *core.Config {
	conf := core.NewConfig()
	conf.Env = "TEST"
	conf.TestMode = true
	conf.Debug = false
	return conf
}

// Logger is a core.Logger that writes through testing.T, so output shows up
// only for failing tests.
type Logger struct {
	t *testing.T
}

func NewLogger(t *testing.T) *Logger { return &Logger{t: t} }

func (l *Logger) Enable(bool) {}

func (l *Logger) log(level, msg string, args []interface{}) {
	l.t.Helper()
	l.t.Logf("%s: %s %v", level, msg, args)
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("FATAL", msg, args) }

// NopLogger discards everything; for wiring done in TestMain where no
// testing.T exists yet.
type NopLogger struct{}

func (NopLogger) Enable(bool)                  {}
func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}

// FakeGateway is an in-memory payment.Gateway. Tests drive transaction status
// through SetStatus and inspect what was created.
type FakeGateway struct {
	mu     sync.Mutex
	nextID int
	txns   map[string]payment.Transaction

	// Err, when set, is returned by CreateTransaction and GetTransaction.
	Err error
}

var _ payment.Gateway = (*FakeGateway)(nil)

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{txns: make(map[string]payment.Transaction)}
}

func (g *FakeGateway) CreateTransaction(ctx context.Context, nt payment.NewTransaction) (payment.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.Err != nil {
		return payment.Transaction{}, g.Err
	}
	g.nextID++
	txn := payment.Transaction{
		ID:         fmt.Sprintf("txn-%d", g.nextID),
		Status:     payment.StatusPending,
		Amount:     nt.Amount,
		Currency:   nt.Currency,
		PaymentURL: fmt.Sprintf("https://checkout.test/%d", g.nextID),
		Metadata:   nt.Metadata,
	}
	g.txns[txn.ID] = txn
	return txn, nil
}

func (g *FakeGateway) GetTransaction(ctx context.Context, id string) (payment.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.Err != nil {
		return payment.Transaction{}, g.Err
	}
	txn, ok := g.txns[id]
	if !ok {
		return payment.Transaction{}, payment.NewGatewayError(fmt.Errorf("transaction %s not found", id))
	}
	return txn, nil
}

func (g *FakeGateway) VerifySignature(payload []byte, signature string) bool {
	return signature == "valid"
}

// ParseWebhook decodes the payload as a bare transaction snapshot; an invalid
// signature or a snapshot without an id is silently ignored, mirroring how
// non-transaction provider events are handled.
func (g *FakeGateway) ParseWebhook(payload []byte, signature string) (*payment.Transaction, error) {
	if !g.VerifySignature(payload, signature) {
		return nil, nil
	}
	var snap payment.Transaction
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, err
	}
	if snap.ID == "" {
		return nil, nil
	}
	return &snap, nil
}

// CreatedCount reports how many transactions CreateTransaction has made.
func (g *FakeGateway) CreatedCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nextID
}

// SetStatus flips a transaction's status, simulating provider-side progress.
func (g *FakeGateway) SetStatus(t *testing.T, id string, status payment.TransactionStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()

	txn, ok := g.txns[id]
	if !ok {
		t.Fatalf("SetStatus(%s): unknown transaction", id)
	}
	txn.Status = status
	g.txns[id] = txn
}

// Transaction returns the stored snapshot for id.
func (g *FakeGateway) Transaction(t *testing.T, id string) payment.Transaction {
	g.mu.Lock()
	defer g.mu.Unlock()

	txn, ok := g.txns[id]
	if !ok {
		t.Fatalf("Transaction(%s): unknown transaction", id)
	}
	return txn
}
