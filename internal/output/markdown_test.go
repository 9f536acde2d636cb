package output

import (
	"strings"
	"testing"
)

func TestRenderDescriptionEmpty(t *testing.T) {
	got, err := RenderDescription("  \n ", 80, false)
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("blank description rendered as %q", got)
	}
}

func TestRenderDescriptionPlain(t *testing.T) {
	got, err := RenderDescription("# Steps\n\n- open the app\n- click login", 10, false)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Steps", "open the app", "click login"} {
		if !strings.Contains(got, want) {
			t.Errorf("rendered %q missing %q", got, want)
		}
	}
	if strings.Contains(got, "\x1b[") {
		t.Errorf("plain rendering contains escape codes: %q", got)
	}
	if strings.HasSuffix(got, "\n") {
		t.Error("trailing newline should be trimmed")
	}
}

func TestTerminalWidthFallsBackToColumns(t *testing.T) {
	if IsTerminal() {
		t.Skip("stdout is a terminal")
	}
	t.Setenv("COLUMNS", "132")
	if got := TerminalWidth(80); got != 132 {
		t.Errorf("TerminalWidth = %d, want 132", got)
	}
	t.Setenv("COLUMNS", "junk")
	if got := TerminalWidth(0); got != defaultMarkdownWidth {
		t.Errorf("TerminalWidth = %d, want %d", got, defaultMarkdownWidth)
	}
}

func TestColorEnabledHonorsNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	if ColorEnabled() {
		t.Error("ColorEnabled should be false with NO_COLOR set")
	}
}
