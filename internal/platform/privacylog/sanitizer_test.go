package privacylog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}
	return payload
}

func TestSanitizingHandlerRedactsSecretsAndIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(WrapHandler(slog.NewJSONHandler(&buf, nil)))
	logger.Info("test",
		"did", "did:elastos:iY4Ghz9tCuWvB5rNwvn4ngWvthZMNzEA7U",
		"storepass", "hunter2",
		"mnemonic", "cloth always junk",
		"encrypted_private_key", "abc",
		"status", "ok",
	)

	payload := decodeLine(t, &buf)
	if _, ok := payload["did"]; ok {
		t.Fatal("did should not be present")
	}
	if got, _ := payload["did_fp"].(string); !strings.HasPrefix(got, "fp_") {
		t.Fatalf("expected did fingerprint, got %q", got)
	}
	for _, key := range []string{"storepass", "mnemonic", "encrypted_private_key"} {
		if got, _ := payload[key].(string); got != redactedValue {
			t.Fatalf("expected %s redacted, got %q", key, got)
		}
	}
	if payload["status"] != "ok" {
		t.Fatalf("unrelated attributes must pass through, got %v", payload["status"])
	}
	if strings.Contains(buf.String(), "hunter2") || strings.Contains(buf.String(), "iY4Ghz9") {
		t.Fatalf("secret leaked into log line: %s", buf.String())
	}
}

func TestSanitizingHandlerCoversAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(WrapHandler(slog.NewJSONHandler(&buf, nil))).
		With("root_identity_id", "bc67f131c43869b3ab9b0ed346a1f8a4")
	logger.Info("grouped", slog.Group("change", slog.String("old_password", "a"), slog.Int("files", 3)))

	payload := decodeLine(t, &buf)
	if _, ok := payload["root_identity_id_fp"]; !ok {
		t.Fatalf("expected fingerprinted logger attribute, got %v", payload)
	}
	group, ok := payload["change"].(map[string]any)
	if !ok {
		t.Fatalf("expected change group, got %v", payload["change"])
	}
	if group["old_password"] != redactedValue || group["files"] != float64(3) {
		t.Fatalf("unexpected group contents: %v", group)
	}
}

func TestFingerprintIsStableWithinProcess(t *testing.T) {
	a := FingerprintID("did:elastos:abc")
	b := FingerprintID(" did:elastos:abc ")
	if a != b || !strings.HasPrefix(a, "fp_") || len(a) != len("fp_")+16 {
		t.Fatalf("unexpected fingerprints %q %q", a, b)
	}
	if FingerprintID("") != "" {
		t.Fatal("empty id must fingerprint to empty string")
	}
}

func TestSanitizingHandlerImplementsSlogHandlerContract(t *testing.T) {
	var buf bytes.Buffer
	h := WrapHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected handler disabled for info")
	}
	rec := slog.NewRecord(time.Now().UTC(), slog.LevelWarn, "msg", 0)
	rec.AddAttrs(slog.String("key_id", "#primary"))
	if err := h.Handle(context.Background(), rec); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if !strings.Contains(buf.String(), "key_id_fp") {
		t.Fatalf("expected sanitized key_id, got %s", buf.String())
	}
	if WrapHandler(nil) != nil {
		t.Fatal("wrapping nil must return nil")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "debug", "json")
	if err != nil {
		t.Fatalf("new logger failed: %v", err)
	}
	logger.Debug("hello", "password", "x")
	payload := decodeLine(t, &buf)
	if payload["password"] != redactedValue {
		t.Fatalf("expected redacted password, got %v", payload["password"])
	}

	if _, err := NewLogger(&buf, "loud", "json"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if _, err := NewLogger(&buf, "info", "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if lvl, err := ParseLevel(""); err != nil || lvl != slog.LevelInfo {
		t.Fatalf("empty level must default to info: %v %v", lvl, err)
	}
}
