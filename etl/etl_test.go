package etl_test

import (
	"testing"

	"github.com/DecFox/data/etl"
)

func TestCanonicalTestName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already-canonical", "webconnectivity", "webconnectivity"},
		{"underscored", "web_connectivity", "webconnectivity"},
		{"mixed-case", "Http_Invalid_Request_Line", "httpinvalidrequestline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := etl.CanonicalTestName(tt.in); got != tt.want {
				t.Errorf("CanonicalTestName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
