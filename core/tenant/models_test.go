package tenant

import "testing"

func TestSubdomainFromHost(t *testing.T) {
	base := "academiahub.com"

	tests := []struct {
		name string
		host string
		want string
	}{
		{name: "tenant subdomain", host: "stjoseph.academiahub.com", want: "stjoseph"},
		{name: "with port", host: "stjoseph.academiahub.com:8000", want: "stjoseph"},
		{name: "mixed case", host: "StJoseph.Academiahub.Com", want: "stjoseph"},
		{name: "bare base domain", host: "academiahub.com", want: ""},
		{name: "www", host: "www.academiahub.com", want: ""},
		{name: "localhost", host: "localhost", want: ""},
		{name: "localhost with port", host: "localhost:8000", want: ""},
		{name: "foreign domain", host: "evil.com", want: ""},
		{name: "foreign subdomain", host: "stjoseph.evil.com", want: ""},
		{name: "empty", host: "", want: ""},
		{name: "nested subdomain", host: "a.b.academiahub.com", want: "a.b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SubdomainFromHost(tt.host, base); got != tt.want {
				t.Errorf("SubdomainFromHost(%q) = %q, want %q", tt.host, got, tt.want)
			}
		})
	}
}

func TestTenantPredicates(t *testing.T) {
	active := Tenant{Status: StatusActive, KYCStatus: KYCVerified}
	if !active.IsActive() || !active.IsKYCVerified() {
		t.Errorf("active verified tenant reported inactive or unverified")
	}

	pending := Tenant{Status: StatusPendingKYC, KYCStatus: KYCPending}
	if pending.IsActive() || pending.IsKYCVerified() {
		t.Errorf("pending tenant reported active or verified")
	}
}
