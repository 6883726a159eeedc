package app

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/localrivet/dialoguesum/internal/config"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewDialogueSumCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeOfflineConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
  "model": {"dir": "` + filepath.ToSlash(filepath.Join(t.TempDir(), "missing")) + `", "runtime": "extractive"},
  "store": {"backend": "none"},
  "logging": {"level": "error"}
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestReadDialogue(t *testing.T) {
	got, err := readDialogue(strings.NewReader("ignored"), []string{"A: hi.", "B: hello."})
	if err != nil || got != "A: hi. B: hello." {
		t.Errorf("readDialogue(args) = %q, %v", got, err)
	}

	got, err = readDialogue(strings.NewReader("A: from stdin"), nil)
	if err != nil || got != "A: from stdin" {
		t.Errorf("readDialogue(stdin) = %q, %v", got, err)
	}
}

func TestSummarizeCommand(t *testing.T) {
	path := writeOfflineConfig(t)

	out, err := execute(t, "", "--config", path, "summarize", "Tom: The meeting moved to Friday.", "Anna: Thanks!")
	if err != nil {
		t.Fatalf("summarize error = %v (%s)", err, out)
	}
	if !strings.Contains(out, "tom: the meeting moved to friday.") {
		t.Errorf("output = %q", out)
	}
}

func TestSummarizeCommandStdin(t *testing.T) {
	path := writeOfflineConfig(t)

	out, err := execute(t, "Tom: <b>See you</b> soon.\r\nAnna: Bye.", "--config", path, "summarize")
	if err != nil {
		t.Fatalf("summarize error = %v (%s)", err, out)
	}
	if !strings.Contains(out, "tom: see you soon.") {
		t.Errorf("output = %q", out)
	}
}

func TestSummarizeCommandBlank(t *testing.T) {
	path := writeOfflineConfig(t)

	if _, err := execute(t, "  \n ", "--config", path, "summarize"); err == nil {
		t.Error("expected an error for blank input")
	}
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dialoguesum.json")

	if out, err := execute(t, "", "config", "init", path); err != nil {
		t.Fatalf("config init error = %v (%s)", err, out)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	out, err := execute(t, "", "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	if !strings.Contains(out, config.DefaultModelDir) {
		t.Errorf("config show output missing model dir: %s", out)
	}
	if !strings.Contains(out, "Loaded "+path) {
		t.Errorf("config show did not report the loaded file: %s", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, cliName) {
		t.Errorf("output = %q", out)
	}
}
