package store

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAtomicCreates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := WriteFileAtomic(path, []byte(`{"a":1}`), 0o600); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading back: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Errorf("content = %s", data)
	}
}

func TestWriteFileAtomicBacksUpPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")

	if err := WriteFileAtomic(path, []byte("old"), 0o600); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("new"), 0o600); err != nil {
		t.Fatalf("second write: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "new" {
		t.Errorf("content = %s, want new", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}
	var backups []string
	for _, e := range entries {
		if strings.Contains(e.Name(), ".bak.") {
			backups = append(backups, e.Name())
		}
	}
	if len(backups) != 1 {
		t.Fatalf("backups = %v, want exactly one", backups)
	}
	backupData, _ := os.ReadFile(filepath.Join(dir, backups[0]))
	if string(backupData) != "old" {
		t.Errorf("backup content = %s, want old", backupData)
	}
}

func TestWriteFileAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	if err := WriteFileAtomic(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestSettingsReadMissing(t *testing.T) {
	s := NewSettings(filepath.Join(t.TempDir(), "settings.json"))
	record, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(record) != 0 {
		t.Errorf("record = %v, want empty", record)
	}
}

func TestSettingsPatchAndRead(t *testing.T) {
	s := NewSettings(filepath.Join(t.TempDir(), "settings.json"))

	if err := s.Patch(map[string]any{"prune": 2.0, "txindex": false}); err != nil {
		t.Fatalf("Patch: %v", err)
	}

	record, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if record["prune"] != float64(2) {
		t.Errorf("prune = %v", record["prune"])
	}
	if record["txindex"] != false {
		t.Errorf("txindex = %v", record["txindex"])
	}
}

func TestSettingsPatchPreservesUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	seed := `{"futurefeature":{"nested":true},"prune":0}`
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	s := NewSettings(path)
	if err := s.Patch(map[string]any{"prune": 5.0}); err != nil {
		t.Fatalf("Patch: %v", err)
	}

	record, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	nested, ok := record["futurefeature"].(map[string]any)
	if !ok || nested["nested"] != true {
		t.Errorf("unknown key lost: %v", record)
	}
	if record["prune"] != float64(5) {
		t.Errorf("prune = %v, want 5", record["prune"])
	}
}

func TestSettingsVersion(t *testing.T) {
	s := NewSettings(filepath.Join(t.TempDir(), "settings.json"))
	if v := s.Version(); v != "" {
		t.Errorf("Version() on missing store = %q", v)
	}

	if err := s.Patch(map[string]any{"version": "28.1"}); err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if v := s.Version(); v != "28.1" {
		t.Errorf("Version() = %q, want 28.1", v)
	}
}

func TestSettingsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	s := NewSettings(path)
	if _, err := s.Read(); !errors.Is(err, ErrMalformedStore) {
		t.Errorf("Read on corrupt store = %v, want ErrMalformedStore", err)
	}
}

func TestHealthCheckerRepairsCorruptStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	if err := os.WriteFile(path, []byte("][bogus"), 0o600); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	repaired := false
	s := NewSettings(path)
	h := NewHealthChecker(s, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithRepairCallback(func() { repaired = true }))
	h.Check()

	if !repaired {
		t.Error("repair callback not invoked")
	}

	record, err := s.Read()
	if err != nil {
		t.Fatalf("Read after repair: %v", err)
	}
	if len(record) != 0 {
		t.Errorf("record after repair = %v, want empty", record)
	}

	entries, _ := os.ReadDir(dir)
	found := false
	for _, e := range entries {
		if strings.Contains(e.Name(), ".corrupt.bak.") {
			found = true
			data, _ := os.ReadFile(filepath.Join(dir, e.Name()))
			if string(data) != "][bogus" {
				t.Errorf("corrupt backup content = %s", data)
			}
		}
	}
	if !found {
		t.Error("corrupt store was not backed up")
	}
}

func TestHealthCheckerLeavesValidStoreAlone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"prune":2}`), 0o600); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	s := NewSettings(path)
	h := NewHealthChecker(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.Check()

	data, _ := os.ReadFile(path)
	if string(data) != `{"prune":2}` {
		t.Errorf("valid store modified: %s", data)
	}
}

func TestEnsureUserConfFreshFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bitcoin.conf")
	if err := EnsureUserConf(path, "nodeward-generated.conf"); err != nil {
		t.Fatalf("EnsureUserConf: %v", err)
	}

	data, _ := os.ReadFile(path)
	lines := strings.Split(string(data), "\n")
	if len(lines) < 3 {
		t.Fatalf("too few lines: %q", data)
	}
	if !strings.HasPrefix(lines[0], "#") || !strings.HasPrefix(lines[1], "#") {
		t.Errorf("banner lines missing: %q", data)
	}
	if lines[2] != "includeconf=nodeward-generated.conf" {
		t.Errorf("include line = %q", lines[2])
	}
}

func TestEnsureUserConfPreservesUserContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bitcoin.conf")
	userContent := "# my own notes\ndebug=net\n\nrpcthreads=8\n"
	if err := os.WriteFile(path, []byte(userContent), 0o600); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	if err := EnsureUserConf(path, "nodeward-generated.conf"); err != nil {
		t.Fatalf("EnsureUserConf: %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.HasSuffix(string(data), userContent) {
		t.Errorf("user content not preserved byte-for-byte:\n%q", data)
	}
}

func TestEnsureUserConfIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bitcoin.conf")
	if err := EnsureUserConf(path, "gen.conf"); err != nil {
		t.Fatalf("first EnsureUserConf: %v", err)
	}
	first, _ := os.ReadFile(path)

	if err := EnsureUserConf(path, "gen.conf"); err != nil {
		t.Fatalf("second EnsureUserConf: %v", err)
	}
	second, _ := os.ReadFile(path)

	if string(first) != string(second) {
		t.Error("EnsureUserConf should be idempotent")
	}
}

func TestWriteManaged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gen.conf")
	if err := WriteManaged(path, "txindex=1\n"); err != nil {
		t.Fatalf("WriteManaged: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "txindex=1\n" {
		t.Errorf("content = %q", data)
	}
}

func TestPatchOutputIsValidJSON(t *testing.T) {
	s := NewSettings(filepath.Join(t.TempDir(), "settings.json"))
	if err := s.Patch(map[string]any{
		"onlynet": []string{"tor", "i2p"},
		"version": "latest",
		"prune":   0.0,
	}); err != nil {
		t.Fatalf("Patch: %v", err)
	}

	raw, err := s.ReadRaw()
	if err != nil {
		t.Fatalf("ReadRaw: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["version"] != "latest" {
		t.Errorf("version = %v", decoded["version"])
	}
}
