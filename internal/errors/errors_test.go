package errors

import (
	"errors"
	"io"
	"testing"
)

func TestCategoryHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"storage wrap", Storage("store raw", io.ErrUnexpectedEOF), IsStorage, true},
		{"closed is storage", Wrap(ErrClosed, "query"), IsStorage, true},
		{"collection wrap", Collection("ubuntu", io.EOF), IsTransientCollection, true},
		{"timeout is transient", Wrap(ErrTimeout, "snmp get"), IsTransientCollection, true},
		{"discovery wrap", Discovery("libvirt", io.EOF), IsDiscovery, true},
		{"unknown kind is validation", Wrapf(ErrUnknownAlertKind, "kind %q", "gpu"), IsValidation, true},
		{"storage is not validation", Storage("purge", io.EOF), IsValidation, false},
		{"nil", nil, IsStorage, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.check(tt.err); got != tt.want {
				t.Errorf("check(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestStorage_KeepsCause(t *testing.T) {
	err := Storage("query raw", io.ErrClosedPipe)
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Error("cause not reachable")
	}
	if !errors.Is(err, ErrStorage) {
		t.Error("sentinel not reachable")
	}
	if Storage("noop", nil) != nil {
		t.Error("Storage(nil) should be nil")
	}
}

func TestValidationErrors(t *testing.T) {
	v := NewValidationErrors()
	if v.Err() != nil {
		t.Fatal("empty collector should return nil")
	}

	v.AddField("thresholds[0].percent", "must be within 0..100")
	v.Add(Wrapf(ErrUnknownAlertKind, "thresholds[1].kind %q", "gpu"))
	v.Add(nil)

	err := v.Err()
	if err == nil {
		t.Fatal("expected error")
	}
	if len(v.Errors) != 2 {
		t.Errorf("len = %d, want 2", len(v.Errors))
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Error("first error not reachable")
	}
	if !errors.Is(err, ErrUnknownAlertKind) {
		t.Error("second error not reachable")
	}
}
