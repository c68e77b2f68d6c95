package invoke

import (
	"errors"
	"net/http"
	"testing"

	"BillWatch/internal/config"
	"BillWatch/internal/domain"
)

func TestAuthorize(t *testing.T) {
	t.Parallel()

	auth := NewAuthorizer(config.AuthConfig{Secret: "s3cret", SchedulerHeader: "X-Scheduler-Token", SchedulerToken: "cron"})

	cases := []struct {
		name  string
		creds Credentials
		ok    bool
	}{
		{"bearer", Credentials{Authorization: "Bearer s3cret"}, true},
		{"bearer lower-case scheme", Credentials{Authorization: "bearer s3cret"}, true},
		{"scheduler header", Credentials{SchedulerToken: "cron"}, true},
		{"wrong bearer", Credentials{Authorization: "Bearer nope"}, false},
		{"missing scheme", Credentials{Authorization: "s3cret"}, false},
		{"scheduler token as bearer", Credentials{Authorization: "Bearer cron"}, false},
		{"nothing", Credentials{}, false},
	}
	for _, tc := range cases {
		err := auth.Authorize(tc.creds)
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected rejection: %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("%s: expected ErrUnauthorized, got %v", tc.name, err)
		}
	}
}

func TestEmptySecretsNeverMatch(t *testing.T) {
	t.Parallel()

	auth := NewAuthorizer(config.AuthConfig{SchedulerHeader: "X-Scheduler-Token"})
	for _, creds := range []Credentials{{}, {Authorization: "Bearer "}, {Authorization: "Bearer"}, {SchedulerToken: ""}} {
		if err := auth.Authorize(creds); err == nil {
			t.Fatalf("credentials %+v accepted without configured secrets", creds)
		}
	}
}

func TestFromHeader(t *testing.T) {
	t.Parallel()

	auth := NewAuthorizer(config.AuthConfig{SchedulerHeader: "X-Scheduler-Token", SchedulerToken: "cron"})
	h := http.Header{}
	h.Set("X-Scheduler-Token", "cron")

	if err := auth.Authorize(auth.FromHeader(h)); err != nil {
		t.Fatalf("scheduler header rejected: %v", err)
	}
	if got := BearerCredentials("abc").Authorization; got != "Bearer abc" {
		t.Fatalf("unexpected bearer credentials %q", got)
	}
}
