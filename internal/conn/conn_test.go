package conn

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/hashibuto/MiGreat/internal/config"
)

func testConfig(retries int) *config.Config {
	return &config.Config{
		Hostname:          "db.internal",
		Port:              5432,
		Database:          "appdb",
		PrivDBUsername:    "postgres",
		PrivDBPassword:    "postgres",
		ServiceDBUsername: "svc",
		ServiceDBPassword: "svcpw",
		ServiceSchema:     "svc",
		MaxConnRetries:    retries,
		ConnRetryInterval: 0,
	}
}

func TestIdentityString(t *testing.T) {
	if Priv.String() != "privileged" || Service.String() != "service" {
		t.Fatalf("unexpected identity strings: %q %q", Priv, Service)
	}
}

func TestAcquire_RoutesCredentialsByIdentity(t *testing.T) {
	m := NewManager(testConfig(0))
	var seen []string
	m.open = func(_ context.Context, dsn string) (*sql.DB, error) {
		seen = append(seen, dsn)
		return nil, nil
	}

	if _, err := m.Acquire(context.Background(), Priv); err != nil {
		t.Fatalf("priv acquire: %v", err)
	}
	if _, err := m.Acquire(context.Background(), Service); err != nil {
		t.Fatalf("service acquire: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("expected 2 open calls, got %d", len(seen))
	}
	if !strings.HasPrefix(seen[0], "postgres://postgres:postgres@") {
		t.Fatalf("priv dsn should carry privileged credentials: %q", seen[0])
	}
	if !strings.HasPrefix(seen[1], "postgres://svc:svcpw@") {
		t.Fatalf("service dsn should carry service credentials: %q", seen[1])
	}
}

func TestAcquire_ExhaustsRetriesWithExactAttemptCount(t *testing.T) {
	m := NewManager(testConfig(3))
	attempts := 0
	m.open = func(context.Context, string) (*sql.DB, error) {
		attempts++
		return nil, errors.New("connection refused")
	}

	_, err := m.Acquire(context.Background(), Service)
	if err == nil {
		t.Fatalf("expected connection error")
	}
	// Initial attempt plus max_conn_retries retries.
	if attempts != 4 {
		t.Fatalf("expected exactly 4 attempts, got %d", attempts)
	}
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("expected *conn.Error, got %T", err)
	}
	if ce.Identity != Service || ce.Attempts != 4 {
		t.Fatalf("unexpected error detail: %+v", ce)
	}
}

func TestAcquire_RecoversBeforeExhaustion(t *testing.T) {
	m := NewManager(testConfig(5))
	attempts := 0
	m.open = func(context.Context, string) (*sql.DB, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("starting up")
		}
		return nil, nil
	}

	if _, err := m.Acquire(context.Background(), Priv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("refused")
	e := &Error{Identity: Priv, Attempts: 2, Err: cause}
	if !errors.Is(e, cause) {
		t.Fatalf("Unwrap should expose the cause")
	}
	if !strings.Contains(e.Error(), "privileged") || !strings.Contains(e.Error(), "2 attempts") {
		t.Fatalf("error message incomplete: %q", e.Error())
	}
}
