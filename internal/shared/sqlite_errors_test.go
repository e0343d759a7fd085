package shared

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIsSQLiteConflictError(t *testing.T) {
	if !IsSQLiteConflictError(errors.New("exec: database is locked")) {
		t.Error("Expected locked error to be a conflict")
	}
	if !IsSQLiteConflictError(errors.New("SQLITE_BUSY (5)")) {
		t.Error("Expected busy error to be a conflict")
	}
	if IsSQLiteConflictError(errors.New("no such table")) {
		t.Error("Expected schema error not to be a conflict")
	}
	if IsSQLiteConflictError(nil) {
		t.Error("Expected nil not to be a conflict")
	}
}

func TestRetryOnConflict(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), 3, time.Millisecond, "test", func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestRetryOnConflict_StopsOnOtherErrors(t *testing.T) {
	calls := 0
	want := errors.New("constraint failed")
	err := RetryOnConflict(context.Background(), 5, time.Millisecond, "test", func() error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("Expected %v, got %v", want, err)
	}
	if calls != 1 {
		t.Errorf("Expected a single call, got %d", calls)
	}
}
