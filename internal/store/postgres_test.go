package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsRetryable(t *testing.T) {
	cases := map[string]bool{"40001": true, "40P01": true, "55P03": true, "23505": false, "42P01": false}
	for code, want := range cases {
		err := fmt.Errorf("exec: %w", &pgconn.PgError{Code: code})
		if got := isRetryable(err); got != want {
			t.Fatalf("code %s: want %v got %v", code, want, got)
		}
	}
	if isRetryable(errors.New("boom")) {
		t.Fatalf("plain error must not be retryable")
	}
	if isRetryable(nil) {
		t.Fatalf("nil must not be retryable")
	}
}

func TestNullIfEmpty(t *testing.T) {
	if v := nullIfEmpty(""); v != nil {
		t.Fatalf("empty -> nil expected, got %v", v)
	}
	if v := nullIfEmpty("x"); v != "x" {
		t.Fatalf("want x got %v", v)
	}
}

func TestValidID(t *testing.T) {
	if validID("not-a-uuid") {
		t.Fatalf("garbage accepted")
	}
	if !validID("6f1c2f0e-8a59-4b7e-9d37-0d8c8f1f6a11") {
		t.Fatalf("uuid rejected")
	}
}

func TestClampLimit(t *testing.T) {
	if clampLimit(0) != 100 || clampLimit(-3) != 100 {
		t.Fatalf("default limit not applied")
	}
	if clampLimit(10_000) != 500 {
		t.Fatalf("max limit not applied")
	}
	if clampLimit(25) != 25 {
		t.Fatalf("limit changed")
	}
}

func TestTranslateUniqueViolation(t *testing.T) {
	err := translate(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "trips_tenant_code_uq"}))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
	other := errors.New("x")
	if translate(other) != other {
		t.Fatalf("unrelated error changed")
	}
	if translate(nil) != nil {
		t.Fatalf("nil changed")
	}
}

func TestRetryOnceGivesUpAsTransient(t *testing.T) {
	calls := 0
	err := retryOnce(func() error {
		calls++
		return &pgconn.PgError{Code: "40001"}
	})
	if calls != 2 {
		t.Fatalf("want 2 attempts, got %d", calls)
	}
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("want ErrTransient, got %v", err)
	}
}

func TestRetryOnceRecovers(t *testing.T) {
	calls := 0
	err := retryOnce(func() error {
		calls++
		if calls == 1 {
			return fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40P01"})
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("want success on second attempt, got %v after %d", err, calls)
	}
}

func TestRetryOnceLeavesOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := retryOnce(func() error {
		calls++
		return boom
	})
	if err != boom || calls != 1 {
		t.Fatalf("want boom after one attempt, got %v after %d", err, calls)
	}
	calls = 0
	err = retryOnce(func() error {
		calls++
		if calls == 1 {
			return &pgconn.PgError{Code: "55P03"}
		}
		return ErrConflict
	})
	if !errors.Is(err, ErrConflict) || errors.Is(err, ErrTransient) {
		t.Fatalf("second attempt error should pass through, got %v", err)
	}
}

func TestTrimPage(t *testing.T) {
	id := func(s string) string { return s }
	rows, next := trimPage([]string{"a", "b"}, 2, id)
	if len(rows) != 2 || next != "" {
		t.Fatalf("exactly full page: %v %q", rows, next)
	}
	rows, next = trimPage([]string{"a", "b", "c"}, 2, id)
	if len(rows) != 2 || next != "b" {
		t.Fatalf("overfull page: %v %q", rows, next)
	}
	rows, next = trimPage([]string{}, 2, id)
	if len(rows) != 0 || next != "" {
		t.Fatalf("empty page: %v %q", rows, next)
	}
}
