// ABOUTME: Tests for the shared SQL result helpers
// ABOUTME: Checks driver errors from RowsAffected surface instead of reading as zero rows

package storage

import (
	"errors"
	"testing"
)

type fakeResult struct {
	rows int64
	err  error
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rows, r.err }

func TestDeletedRow(t *testing.T) {
	driverErr := errors.New("driver cannot count rows")

	tests := []struct {
		name    string
		result  fakeResult
		want    bool
		wantErr error
	}{
		{"one row", fakeResult{rows: 1}, true, nil},
		{"no rows", fakeResult{rows: 0}, false, nil},
		{"driver error", fakeResult{err: driverErr}, false, driverErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := deletedRow(tt.result)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("deletedRow() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("deletedRow() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExpectRow(t *testing.T) {
	driverErr := errors.New("driver cannot count rows")

	if err := expectRow(fakeResult{rows: 1}, "item", "abc"); err != nil {
		t.Errorf("expectRow(1 row) error = %v", err)
	}
	if err := expectRow(fakeResult{rows: 0}, "item", "abc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expectRow(0 rows) error = %v, want ErrNotFound", err)
	}
	err := expectRow(fakeResult{err: driverErr}, "item", "abc")
	if !errors.Is(err, driverErr) {
		t.Errorf("expectRow(driver error) error = %v, want driver error", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("driver error must not read as ErrNotFound")
	}
}
