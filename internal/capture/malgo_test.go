package capture

import (
	"errors"
	"testing"
)

func TestDeviceError(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"Access denied.", ErrPermissionDenied},
		{"Permission error", ErrPermissionDenied},
		{"No backend", ErrNoDevice},
		{"Failed to open device", ErrNoDevice},
	}
	for _, tt := range tests {
		if err := deviceError(errors.New(tt.msg)); !errors.Is(err, tt.want) {
			t.Errorf("deviceError(%q) = %v, want %v", tt.msg, err, tt.want)
		}
	}
}
