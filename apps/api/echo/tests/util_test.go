package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	. "github.com/academiahub/backend/apps/api/echo"
	"github.com/academiahub/backend/core/subscription"
	"github.com/academiahub/backend/core/tenant"
	"github.com/academiahub/backend/core/user"
)

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	claims := GetUserClaims(conf, usr)
	token, err := GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	return false, nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response body %q: %v", rec.Body.String(), err)
	}
}

// createSchool seeds a tenant with a promoter account and, when withSub is
// set, a current subscription. Each caller uses its own subdomain so tests
// stay independent on the shared database.
func createSchool(t *testing.T, subdomain string, status tenant.Status, kycStatus tenant.KYCStatus, withSub bool) (tenant.Tenant, user.User) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	school, err := tenantRepo.CreateTenant(ctx, tenant.Tenant{
		Name:      subdomain + " school",
		Subdomain: subdomain,
		Status:    status,
		KYCStatus: kycStatus,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("createSchool(%s): %v", subdomain, err)
	}

	promoter, err := usrSvc.Create(ctx, user.NewUser{
		TenantID:  school.ID,
		Email:     "promoter@" + subdomain + ".test",
		FirstName: "Jane",
		LastName:  "Promoter",
		Role:      user.RolePromoter,
		Password:  promoterPassword,
	})
	if err != nil {
		t.Fatalf("createSchool(%s): creating promoter: %v", subdomain, err)
	}

	if withSub {
		if _, err = subRepo.CreateSubscription(ctx, subscription.Subscription{
			TenantID:  school.ID,
			PlanID:    starterPlan.ID,
			Status:    subscription.StatusActive,
			StartDate: now,
			EndDate:   now.AddDate(0, 1, 0),
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			t.Fatalf("createSchool(%s): creating subscription: %v", subdomain, err)
		}
	}
	return school, promoter
}

func createAdmin(t *testing.T, email string) user.User {
	t.Helper()
	admin, err := usrSvc.Create(context.Background(), user.NewUser{
		Email:     email,
		FirstName: "Ada",
		LastName:  "Admin",
		Role:      user.RoleAdmin,
		Password:  promoterPassword,
	})
	if err != nil {
		t.Fatalf("createAdmin(%s): %v", email, err)
	}
	return admin
}
