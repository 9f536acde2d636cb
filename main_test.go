package main

import (
	"runtime/debug"
	"testing"
)

func TestResolveVersion(t *testing.T) {
	withVCS := func(mainVersion, rev, modified string) *debug.BuildInfo {
		return &debug.BuildInfo{
			Main: debug.Module{Version: mainVersion},
			Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: rev},
				{Key: "vcs.modified", Value: modified},
			},
		}
	}

	tests := []struct {
		name string
		v    string
		info *debug.BuildInfo
		want string
	}{
		{"injected", "v1.4.0", withVCS("v0.1.0", "abc", "false"), "v1.4.0"},
		{"no build info", "dev", nil, "dev"},
		{"module version", "dev", withVCS("v0.3.1", "", ""), "v0.3.1"},
		{"clean checkout", "dev", withVCS("(devel)", "0123456789abcdef", "false"), "devel+0123456789ab"},
		{"dirty checkout", "dev", withVCS("(devel)", "abc123", "true"), "devel+abc123+dirty"},
		{"no revision", "dev", withVCS("(devel)", "", ""), "dev"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := resolveVersion(tc.v, tc.info); got != tc.want {
				t.Errorf("resolveVersion(%q) = %q, want %q", tc.v, got, tc.want)
			}
		})
	}
}
