package compileinfo

import (
	"strings"
	"testing"
)

func TestRevision(t *testing.T) {
	cases := []struct {
		in   CompileInfo
		want string
	}{
		{CompileInfo{}, "unknown"},
		{CompileInfo{Commit: "abc123"}, "abc123"},
		{CompileInfo{Commit: "abc123", Modified: true}, "abc123+dirty"},
	}
	for _, c := range cases {
		if got := c.in.Revision(); got != c.want {
			t.Errorf("Expected %s, got %s", c.want, got)
		}
	}

	s := CompileInfo{Package: "metab", GoVersion: "go1.18", Commit: "abc123", Modified: true}.String()
	if !strings.Contains(s, "abc123+dirty") || !strings.Contains(s, "uncommitted") {
		t.Errorf("Unexpected description %q", s)
	}
}
