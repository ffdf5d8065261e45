package agents

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"
)

// See internal/calls/repository_test.go for the pattern: SQL behavior is
// covered with sqlmock there; these are true unit tests for validation and
// the sparse-update clause builder.

func TestCreate_RejectsInvalidArgs(t *testing.T) {
	svc := NewService((*sql.DB)(nil))

	_, err := svc.Create(context.Background(), "", CreateRequest{Name: "a", PhoneNumber: "+15550100"})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}

	_, err = svc.Create(context.Background(), "owner-1", CreateRequest{Name: "", PhoneNumber: "+15550100"})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for empty name, got %v", err)
	}

	_, err = svc.Create(context.Background(), "owner-1", CreateRequest{Name: "a", PhoneNumber: "+15550100", AllowedMinutes: -1})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for negative quota, got %v", err)
	}
}

func TestBuildUpdate_SparseFieldsOnly(t *testing.T) {
	name := "Reception"
	minutes := 120.0
	clause, args, err := buildUpdate(UpdateRequest{Name: &name, AllowedMinutes: &minutes}, time.Now())
	if err != nil {
		t.Fatalf("buildUpdate: %v", err)
	}
	if !strings.Contains(clause, "name = $3") {
		t.Fatalf("expected name fragment, got %q", clause)
	}
	if !strings.Contains(clause, "allowed_minutes = $4") {
		t.Fatalf("expected allowed_minutes fragment, got %q", clause)
	}
	if strings.Contains(clause, "used_minutes") {
		t.Fatalf("used_minutes must never appear in an update clause: %q", clause)
	}
	if len(args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(args))
	}
}

func TestBuildUpdate_EmptyRequestRejected(t *testing.T) {
	_, _, err := buildUpdate(UpdateRequest{}, time.Now())
	if !errors.Is(err, ErrEmptyUpdate) {
		t.Fatalf("expected ErrEmptyUpdate, got %v", err)
	}
}

func TestUpdate_RejectsNegativeQuota(t *testing.T) {
	svc := NewService((*sql.DB)(nil))
	bad := -5.0
	_, err := svc.Update(context.Background(), "a-1", "owner-1", UpdateRequest{AllowedMinutes: &bad})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
