package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"

	. "github.com/academiahub/backend/apps/api/echo"
	"github.com/academiahub/backend/core/tenant"
	"github.com/academiahub/backend/core/user"
)

func Test_authApi_login(t *testing.T) {
	healthy, healthyPromoter := createSchool(t, "login-ok", tenant.StatusActive, tenant.KYCVerified, true)
	_, pendingPromoter := createSchool(t, "login-pending", tenant.StatusPendingKYC, tenant.KYCPending, true)
	createSchool(t, "login-suspended", tenant.StatusSuspended, tenant.KYCVerified, true)
	createSchool(t, "login-lapsed", tenant.StatusActive, tenant.KYCVerified, false /* no subscription */)

	login := func(email, subdomain string) []byte {
		return marchallObj(t, LoginRequest{Email: email, Password: promoterPassword, Subdomain: subdomain})
	}
	badLogin := func(email, subdomain string) []byte {
		return marchallObj(t, LoginRequest{Email: email, Password: "wrong-pass", Subdomain: subdomain})
	}

	tests := []httpTest{
		{
			name: "Email and password required", body: marchallObj(t, LoginRequest{}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"email":    "this field is required",
				"password": "this field is required",
			}),
		},
		{
			name: "Unknown subdomain", body: login(healthyPromoter.Email, "login-nowhere"),
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "school not found"}),
		},
		{
			name: "Unverified school reports its KYC status", body: login(pendingPromoter.Email, "login-pending"),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, map[string]interface{}{
				"error":      "school verification incomplete",
				"kyc_status": tenant.KYCPending,
			}),
		},
		{
			name: "Suspended school", body: login("promoter@login-suspended.test", "login-suspended"),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "school is not active"}),
		},
		{
			name: "Lapsed subscription", body: login("promoter@login-lapsed.test", "login-lapsed"),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "school subscription has expired"}),
		},
		{
			name: "Wrong password", body: badLogin(healthyPromoter.Email, "login-ok"),
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "invalid credentials"}),
		},
		{
			name: "Unknown email is indistinguishable from wrong password", body: login("nobody@login-ok.test", "login-ok"),
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "invalid credentials"}),
		},
		{name: "Login on school subdomain", body: login(healthyPromoter.Email, "login-ok"), wantCode: http.StatusOK},
		{name: "Promoter login without subdomain", body: login(healthyPromoter.Email, ""), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/auth/login"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var respData LoginResponse
				decodeBody(t, rec, &respData)
				if respData.Token == "" {
					t.Error("failed! empty token")
				}
				if respData.User.Email != healthyPromoter.Email {
					t.Errorf("failed! user = %v; want %v", respData.User.Email, healthyPromoter.Email)
				}
				if respData.School == nil || respData.School.ID != healthy.ID {
					t.Errorf("failed! school = %+v; want %v", respData.School, healthy.ID)
				}
				if !respData.User.Role.HasPermission(user.PermManageSchool) {
					t.Errorf("failed! permissions = %v; want %v included", respData.Permissions, user.PermManageSchool)
				}
				// a first successful login activates the pending account
				if respData.User.Status != user.StatusActive {
					t.Errorf("failed! user status = %v; want %v", respData.User.Status, user.StatusActive)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_authApi_loginWithoutSubdomainIsRestricted(t *testing.T) {
	school, _ := createSchool(t, "login-roles", tenant.StatusActive, tenant.KYCVerified, true)

	teacher, err := usrSvc.Create(context.Background(), user.NewUser{
		TenantID:  school.ID,
		Email:     "teacher@login-roles.test",
		FirstName: "Tom",
		LastName:  "Teacher",
		Role:      user.RoleTeacher,
		Password:  promoterPassword,
	})
	if err != nil {
		t.Fatalf("creating teacher: %v", err)
	}

	// fine on the school's own subdomain
	body := marchallObj(t, LoginRequest{Email: teacher.Email, Password: promoterPassword, Subdomain: "login-roles"})
	req, rec := newRequest(http.MethodPost, "/v1/auth/login", body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	// not without one
	body = marchallObj(t, LoginRequest{Email: teacher.Email, Password: promoterPassword})
	req, rec = newRequest(http.MethodPost, "/v1/auth/login", body)
	app.ServeHTTP(rec, req)
	tt := httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "invalid credentials"})}
	checkCodeAndData(t, tt, rec)
}

func Test_authApi_me(t *testing.T) {
	_, promoter := createSchool(t, "me-school", tenant.StatusActive, tenant.KYCVerified, true)

	t.Run("Auth required", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/auth/me")
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("Returns user and permissions", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/auth/me", getToken(t, promoter))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var respData struct {
			User        user.User         `json:"user"`
			Permissions []user.Permission `json:"permissions"`
		}
		decodeBody(t, rec, &respData)
		if respData.User.ID != promoter.ID {
			t.Errorf("failed! user = %v; want %v", respData.User.ID, promoter.ID)
		}
		if len(respData.Permissions) == 0 {
			t.Error("failed! empty permissions")
		}
	})
}

func Test_authApi_refreshToken(t *testing.T) {
	_, promoter := createSchool(t, "refresh-school", tenant.StatusActive, tenant.KYCVerified, true)

	now := time.Now()
	unrefreshableClaims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   promoter.ID,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		OrigIssuedAt: now.Add(-2 * conf.Server.JWTRefreshExpirationDelta).Unix(), // older than threshold
		Email:        promoter.Email,
		Role:         string(promoter.Role),
		TenantID:     promoter.TenantID,
	}
	unrefreshableToken, err := GenerateToken(conf, unrefreshableClaims)
	if err != nil {
		t.Fatalf("GenerateToken(): %v", err)
	}

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Refresh period expired", token: unrefreshableToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"}),
		},
		{name: "Token refreshed", token: getToken(t, promoter), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/auth/token-refresh"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			// cannot guess the new token; just check that it's not empty
			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
				}
				var respData TokenResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Errorf("json.Unmarshal() failed! err %v", err)
				}
				if respData.Token == "" {
					t.Error("failed! empty token")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}
