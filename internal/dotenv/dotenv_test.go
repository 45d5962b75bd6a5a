package dotenv

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileIsNoop(t *testing.T) {
	if err := Load(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("Load missing file error: %v", err)
	}
}

func TestLoad_ValuesAndPrecedence(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	content := "" +
		"# fieldvision local settings\n" +
		"FIELDVISION_ADDR=:9000\n" +
		"FIELDVISION_JWT_SECRET='local secret'\n" +
		"export FIELDVISION_DB_PATH=local.db\n" +
		"FIELDVISION_GEMINI_MODEL=from_file\n" +
		"not a pair\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("FIELDVISION_GEMINI_MODEL", "already_set")
	t.Setenv("FIELDVISION_ADDR", "")
	os.Unsetenv("FIELDVISION_ADDR")
	t.Setenv("FIELDVISION_JWT_SECRET", "")
	os.Unsetenv("FIELDVISION_JWT_SECRET")
	t.Setenv("FIELDVISION_DB_PATH", "")
	os.Unsetenv("FIELDVISION_DB_PATH")

	if err := Load(envPath); err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if got := os.Getenv("FIELDVISION_ADDR"); got != ":9000" {
		t.Errorf("FIELDVISION_ADDR=%q", got)
	}
	if got := os.Getenv("FIELDVISION_JWT_SECRET"); got != "local secret" {
		t.Errorf("FIELDVISION_JWT_SECRET=%q, want quotes stripped", got)
	}
	if got := os.Getenv("FIELDVISION_DB_PATH"); got != "local.db" {
		t.Errorf("FIELDVISION_DB_PATH=%q, want export prefix handled", got)
	}
	if got := os.Getenv("FIELDVISION_GEMINI_MODEL"); got != "already_set" {
		t.Errorf("FIELDVISION_GEMINI_MODEL=%q, want existing value preserved", got)
	}
}
