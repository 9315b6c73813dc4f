package cli

import (
	"errors"
	"fmt"
	"testing"
)

func TestConfigErrorMessage(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		field string
		want  string
	}{
		{
			name:  "path and field",
			path:  "/etc/ganymede/config.yaml",
			field: "server.listen_address",
			want:  "config /etc/ganymede/config.yaml: server.listen_address: must not be empty",
		},
		{
			name: "path only",
			path: "/etc/ganymede/config.yaml",
			want: "config /etc/ganymede/config.yaml: must not be empty",
		},
		{
			name:  "field only",
			field: "server.listen_address",
			want:  "config field server.listen_address: must not be empty",
		},
		{
			name: "message only",
			want: "config error: must not be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewConfigError(tt.path, tt.field, "must not be empty")
			if got := err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCommandErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("listener failed")
	err := NewCommandError("run", cause)
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	want := "ganymede run: listener failed"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
