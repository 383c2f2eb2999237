package config

import (
	"context"
	"errors"
	"testing"
)

type fakeSecrets struct {
	data map[string]interface{}
	err  error
	path string
}

func (f *fakeSecrets) GetSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	f.path = path
	return f.data, f.err
}

func TestNewVaultClient_Disabled(t *testing.T) {
	cfg := &VaultConfig{
		Enabled: false,
	}

	client, err := NewVaultClient(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if client != nil {
		t.Error("expected nil client when vault is disabled")
	}
}

func TestNewVaultClient_NoToken(t *testing.T) {
	cfg := &VaultConfig{
		Enabled: true,
		Address: "http://localhost:8200",
	}

	_, err := NewVaultClient(cfg)
	if err == nil {
		t.Fatal("expected error when token is not configured")
	}
}

func TestVaultClient_GetSecret_NilClient(t *testing.T) {
	var vc *VaultClient

	_, err := vc.GetSecret(context.Background(), "jstail/broker")
	if err == nil {
		t.Fatal("expected error for nil client")
	}
	if err.Error() != "vault client is not initialized" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestApplyVaultSecrets_NilClient(t *testing.T) {
	cfg := Default()
	cfg.Broker.VaultPath = "jstail/broker"

	var vc *VaultClient
	if err := ApplyVaultSecrets(context.Background(), cfg, vc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ApplyVaultSecrets(context.Background(), cfg, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Broker.Address != "nats://localhost:4222" {
		t.Error("expected original address to remain unchanged")
	}
}

func TestApplyVaultSecrets_OverlaysBroker(t *testing.T) {
	cfg := Default()
	cfg.Broker.VaultPath = "jstail/broker"
	secrets := &fakeSecrets{data: map[string]interface{}{
		"address":      "nats://prod:4222",
		"trace_stream": "Trace",
		"unrelated":    42,
	}}

	if err := ApplyVaultSecrets(context.Background(), cfg, secrets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if secrets.path != "jstail/broker" {
		t.Errorf("expected path jstail/broker, got %q", secrets.path)
	}
	if cfg.Broker.Address != "nats://prod:4222" {
		t.Errorf("expected vault address, got %q", cfg.Broker.Address)
	}
	if cfg.Broker.TraceStream != "Trace" {
		t.Errorf("expected vault trace stream, got %q", cfg.Broker.TraceStream)
	}
}

func TestApplyVaultSecrets_NoPath(t *testing.T) {
	cfg := Default()
	secrets := &fakeSecrets{err: errors.New("must not be called")}

	if err := ApplyVaultSecrets(context.Background(), cfg, secrets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if secrets.path != "" {
		t.Error("expected no vault read without a path")
	}
}

func TestApplyVaultSecrets_ReadError(t *testing.T) {
	cfg := Default()
	cfg.Broker.VaultPath = "jstail/broker"

	err := ApplyVaultSecrets(context.Background(), cfg, &fakeSecrets{err: errors.New("permission denied")})
	if err == nil {
		t.Fatal("expected error when vault read fails")
	}
}
