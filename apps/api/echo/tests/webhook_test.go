package tests

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/academiahub/backend/apps/api/echo"
	"github.com/academiahub/backend/core/subscription"
	"github.com/academiahub/backend/core/tenant"
	"github.com/academiahub/backend/services/payment/fedapay"
)

func newWebhookRequest(payload []byte, signature string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/callback", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(fedapay.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func Test_webhookApi_signatureGate(t *testing.T) {
	payload := []byte(`{"id": "txn-evil", "status": "approved"}`)
	wantData := marchallObj(t, httpErr{Error: "invalid signature"})

	tests := []struct {
		name      string
		signature string
	}{
		{name: "missing signature"},
		{name: "bad signature", signature: "t=1,s=00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newWebhookRequest(payload, tt.signature)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: wantData}, rec)
		})
	}
}

func Test_webhookApi_delivery(t *testing.T) {
	ctx := context.Background()
	ack := marchallObj(t, SuccessResponse{Success: true})

	school, _ := createSchool(t, "webhook-school", tenant.StatusActive, tenant.KYCVerified, true)
	sub, err := subRepo.GetCurrentTenantSubscription(ctx, school.ID)
	if err != nil {
		t.Fatalf("GetCurrentTenantSubscription(): %v", err)
	}

	t.Run("approved renewal extends the subscription", func(t *testing.T) {
		payload := []byte(fmt.Sprintf(
			`{"id": "txn-renewal-1", "status": "approved", "amount": 35000, "metadata": {"version": 1, "subscription_id": %q}}`,
			sub.ID,
		))
		req, rec := newWebhookRequest(payload, "valid")
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: ack}, rec)

		got, err := subRepo.GetSubscriptionByID(ctx, sub.ID)
		if err != nil {
			t.Fatalf("GetSubscriptionByID(): %v", err)
		}
		if !got.EndDate.After(sub.EndDate) {
			t.Errorf("failed! end date = %v; want after %v", got.EndDate, sub.EndDate)
		}
		if got.LastTransactionID != "txn-renewal-1" {
			t.Errorf("failed! last transaction = %v; want txn-renewal-1", got.LastTransactionID)
		}
	})

	t.Run("replayed delivery does not extend twice", func(t *testing.T) {
		before, err := subRepo.GetSubscriptionByID(ctx, sub.ID)
		if err != nil {
			t.Fatalf("GetSubscriptionByID(): %v", err)
		}

		payload := []byte(fmt.Sprintf(
			`{"id": "txn-renewal-1", "status": "approved", "amount": 35000, "metadata": {"version": 1, "subscription_id": %q}}`,
			sub.ID,
		))
		req, rec := newWebhookRequest(payload, "valid")
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: ack}, rec)

		after, err := subRepo.GetSubscriptionByID(ctx, sub.ID)
		if err != nil {
			t.Fatalf("GetSubscriptionByID(): %v", err)
		}
		if !after.EndDate.Equal(before.EndDate) {
			t.Errorf("failed! end date moved from %v to %v on a replay", before.EndDate, after.EndDate)
		}
	})

	t.Run("unknown subscription is acknowledged anyway", func(t *testing.T) {
		payload := []byte(`{"id": "txn-orphan-1", "status": "approved", "metadata": {"version": 1, "subscription_id": "no-such-sub"}}`)
		req, rec := newWebhookRequest(payload, "valid")
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: ack}, rec)
	})

	t.Run("non-transaction event is acknowledged", func(t *testing.T) {
		payload := []byte(`{"name": "customer.created"}`)
		req, rec := newWebhookRequest(payload, "valid")
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: ack}, rec)
	})

	t.Run("failed renewal after expiry flags the subscription", func(t *testing.T) {
		lapsed, _ := createSchool(t, "webhook-lapsed", tenant.StatusActive, tenant.KYCVerified, false)
		now := time.Now().UTC()
		overdueSub, err := subRepo.CreateSubscription(ctx, subscription.Subscription{
			TenantID:  lapsed.ID,
			PlanID:    standardPlan.ID,
			Status:    subscription.StatusActive,
			StartDate: now.AddDate(0, -1, 0),
			EndDate:   now.Add(-time.Hour),
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			t.Fatalf("CreateSubscription(): %v", err)
		}

		payload := []byte(fmt.Sprintf(
			`{"id": "txn-renewal-fail-1", "status": "declined", "metadata": {"version": 1, "subscription_id": %q}}`,
			overdueSub.ID,
		))
		req, rec := newWebhookRequest(payload, "valid")
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: ack}, rec)

		got, err := subRepo.GetSubscriptionByID(ctx, overdueSub.ID)
		if err != nil {
			t.Fatalf("GetSubscriptionByID(): %v", err)
		}
		if got.Status != subscription.StatusPaymentFailed {
			t.Errorf("failed! status = %v; want %v", got.Status, subscription.StatusPaymentFailed)
		}
	})
}
