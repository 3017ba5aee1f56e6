package store

import (
	"errors"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
)

func TestBulkResultSuccessful(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		res  BulkResult
		want int64
	}{
		{name: "empty", res: BulkResult{}, want: 0},
		{name: "fresh inserts", res: BulkResult{Upserted: 5}, want: 5},
		{name: "redelivered duplicates", res: BulkResult{Matched: 3}, want: 3},
		{name: "mixed", res: BulkResult{Upserted: 2, Matched: 4}, want: 6},
	}
	for _, tc := range cases {
		if got := tc.res.Successful(); got != tc.want {
			t.Errorf("%s: Successful() = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestIsPartialBulkFailure(t *testing.T) {
	t.Parallel()

	partial := mongo.BulkWriteException{
		WriteErrors: []mongo.BulkWriteError{{
			WriteError: mongo.WriteError{Code: 11000, Message: "E11000 duplicate key"},
		}},
	}

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain error", err: errors.New("connection reset"), want: false},
		{name: "bulk exception with write errors", err: partial, want: true},
		{name: "wrapped bulk exception", err: fmt.Errorf("bulk trade upsert failed: %w", partial), want: true},
		{name: "bulk exception without write errors", err: mongo.BulkWriteException{}, want: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := IsPartialBulkFailure(tc.err); got != tc.want {
				t.Fatalf("IsPartialBulkFailure(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestDuplicateKeyRecognition(t *testing.T) {
	t.Parallel()

	dup := mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key"}}}
	if !mongo.IsDuplicateKeyError(dup) {
		t.Fatal("driver did not recognize code 11000 as duplicate key")
	}
	if mongo.IsDuplicateKeyError(errors.New("timeout")) {
		t.Fatal("plain error recognized as duplicate key")
	}
}
