package minutes

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestMinutesForDuration_Rounding(t *testing.T) {
	cases := []struct {
		seconds float64
		want    float64
	}{
		{0, 0},
		{-30, 0},
		{40, 0.667},
		{60, 1},
		{125.4, 2.09},
		{90, 1.5},
	}
	for _, tc := range cases {
		got := MinutesForDuration(tc.seconds)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("MinutesForDuration(%v) = %v, want %v", tc.seconds, got, tc.want)
		}
	}
}

func TestAvailability_NoClampBelowZero(t *testing.T) {
	a := availabilityFrom("agent-1", 10, 10.167)
	if a.Available {
		t.Fatalf("expected unavailable")
	}
	if math.Abs(a.RemainingMinutes-(-0.167)) > 1e-9 {
		t.Fatalf("expected negative remaining, got %v", a.RemainingMinutes)
	}
}

func TestCheckAvailable_ExhaustedWhenUsedmeetsAllowed(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT allowed_minutes, used_minutes FROM agents`).
		WithArgs("agent-1").
		WillReturnRows(sqlmock.NewRows([]string{"allowed_minutes", "used_minutes"}).AddRow(10.0, 10.0))

	svc := NewService(db)
	avail, err := svc.CheckAvailable(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if avail.Available {
		t.Fatalf("expected available=false at used == allowed")
	}
	if avail.RemainingMinutes != 0 {
		t.Fatalf("expected remaining 0, got %v", avail.RemainingMinutes)
	}
}

func TestRequireAvailable_ReturnsQuotaExhausted(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT allowed_minutes, used_minutes FROM agents`).
		WithArgs("agent-1").
		WillReturnRows(sqlmock.NewRows([]string{"allowed_minutes", "used_minutes"}).AddRow(10.0, 12.5))

	svc := NewService(db)
	_, err = svc.RequireAvailable(context.Background(), "agent-1")
	if !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("expected ErrQuotaExhausted, got %v", err)
	}
}

func TestAccrue_AdditiveDeltaWorkedExample(t *testing.T) {
	// allowed=10, used=9.5, then a 40s call: delta 0.667, total 10.167,
	// remaining goes negative and the agent becomes unavailable.
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery(`UPDATE agents\s+SET used_minutes = used_minutes \+ \$2`).
		WithArgs("agent-1", 0.667, now).
		WillReturnRows(sqlmock.NewRows([]string{"allowed_minutes", "used_minutes"}).AddRow(10.0, 10.167))

	svc := NewService(db)
	svc.clock = func() time.Time { return now }

	avail, err := svc.Accrue(context.Background(), "agent-1", "call-1", 40)
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if math.Abs(avail.UsedMinutes-10.167) > 1e-9 {
		t.Fatalf("expected used 10.167, got %v", avail.UsedMinutes)
	}
	if avail.Available {
		t.Fatalf("expected available=false after quota overshoot")
	}
	if math.Abs(avail.RemainingMinutes-(-0.167)) > 1e-9 {
		t.Fatalf("expected remaining -0.167, got %v", avail.RemainingMinutes)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAccrue_RejectsInvalidArgs(t *testing.T) {
	svc := NewService((*sql.DB)(nil))
	if _, err := svc.Accrue(context.Background(), "", "call-1", 40); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := svc.Accrue(context.Background(), "agent-1", "", 40); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := svc.Accrue(context.Background(), "agent-1", "call-1", -1); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestReset_ScopedToOwner(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`UPDATE agents\s+SET used_minutes = 0`).
		WithArgs("agent-1", "other-admin", sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)

	svc := NewService(db)
	if _, err := svc.Reset(context.Background(), "agent-1", "other-admin"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for non-owner, got %v", err)
	}
}
