package style

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetColorMode(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	t.Setenv("CLICOLOR_FORCE", "")
	t.Cleanup(func() { _ = SetColorMode("always") })

	for _, mode := range []string{"auto", "always", "never"} {
		if err := SetColorMode(mode); err != nil {
			t.Errorf("SetColorMode(%q) = %v", mode, err)
		}
	}
	if err := SetColorMode("rainbow"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestLinesWithoutColor(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	t.Cleanup(func() { _ = SetColorMode("always") })
	if err := SetColorMode("never"); err != nil {
		t.Fatal(err)
	}

	if got := Pass("chunk %s", "intro-1-10"); got != "✓ chunk intro-1-10" {
		t.Errorf("Pass() = %q", got)
	}
	if got := Fail("chunk %s", "intro-11-20"); got != "✖ chunk intro-11-20" {
		t.Errorf("Fail() = %q", got)
	}
	if got := Warn("%d missing", 3); got != "⚠ 3 missing" {
		t.Errorf("Warn() = %q", got)
	}
}

func TestSpinnerNonTTY(t *testing.T) {
	var buf bytes.Buffer
	s := StartSpinner(&buf, "uploading project")
	s.Stop()
	s.Stop()

	if strings.TrimSpace(buf.String()) != "uploading project" {
		t.Errorf("unexpected output %q", buf.String())
	}
}
