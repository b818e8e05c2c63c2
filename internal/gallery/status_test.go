package gallery

import (
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusPending, JobStatusScraping, true},
		{JobStatusScraping, JobStatusCompleted, true},
		{JobStatusScraping, JobStatusError, true},
		{JobStatusPending, JobStatusCompleted, false},
		{JobStatusPending, JobStatusError, false},
		{JobStatusScraping, JobStatusPending, false},
		{JobStatusCompleted, JobStatusScraping, false},
		{JobStatusError, JobStatusCompleted, false},
		{JobStatusScraping, JobStatusScraping, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestJobConfigValidate(t *testing.T) {
	t.Parallel()

	valid := JobConfig{URL: "https://example.com/gallery", ScrollDelayMs: 1000}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	bad := []JobConfig{
		{ScrollDelayMs: 1000},
		{URL: "ftp://example.com", ScrollDelayMs: 1000},
		{URL: "/relative", ScrollDelayMs: 1000},
		{URL: "https://example.com", ScrollDelayMs: 100},
		{URL: "https://example.com", ScrollDelayMs: 6000},
		{URL: "https://example.com", ScrollDelayMs: 1000, MaxItems: -1},
	}
	for _, cfg := range bad {
		err := cfg.Validate()
		if !errors.Is(err, ErrInvalidConfiguration) {
			t.Fatalf("Validate(%+v) = %v, want ErrInvalidConfiguration", cfg, err)
		}
	}
}

func TestNavigationErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("net::ERR_TIMED_OUT")
	err := &NavigationError{URL: "https://example.com", Profile: ProfileListing, Attempts: 3, Err: cause}
	if !errors.Is(err, ErrNavigation) {
		t.Fatal("expected ErrNavigation")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be reachable")
	}
}
