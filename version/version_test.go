package version

import (
	"strings"
	"testing"
)

// withVersionVars temporarily sets version variables and restores them after the test.
func withVersionVars(t *testing.T, v, commit, date string, fn func()) {
	t.Helper()
	origVersion, origCommit, origDate := version, gitCommit, buildDate
	defer func() {
		version, gitCommit, buildDate = origVersion, origCommit, origDate
	}()
	version, gitCommit, buildDate = v, commit, date
	fn()
}

func TestGetVersion(t *testing.T) {
	if v := GetVersion(); v == "" {
		t.Error("GetVersion() returned empty string")
	}
}

func TestGetVersion_NonDev(t *testing.T) {
	withVersionVars(t, "1.2.0", "", "", func() {
		if v := GetVersion(); v != "1.2.0" {
			t.Errorf("Expected '1.2.0', got '%s'", v)
		}
	})
}

func TestGetVersionInfo(t *testing.T) {
	withVersionVars(t, "1.2.0", "abc1234", "2026-01-02", func() {
		info := GetVersionInfo()
		for _, want := range []string{"voicemod version 1.2.0", "commit: abc1234", "built: 2026-01-02"} {
			if !strings.Contains(info, want) {
				t.Errorf("GetVersionInfo() missing %q, got: %s", want, info)
			}
		}
	})
}

func TestGetBuildInfo(t *testing.T) {
	withVersionVars(t, "1.2.0", "abc1234", "", func() {
		attrs := GetBuildInfo()
		if len(attrs) < 4 {
			t.Fatalf("GetBuildInfo() = %v, want version and commit", attrs)
		}
		if attrs[0] != "version" || attrs[1] != "1.2.0" {
			t.Errorf("unexpected version attrs: %v", attrs[:2])
		}
		if attrs[2] != "commit" || attrs[3] != "abc1234" {
			t.Errorf("unexpected commit attrs: %v", attrs[2:4])
		}
	})
}
