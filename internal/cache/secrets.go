package cache

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"golang.org/x/crypto/nacl/secretbox"

	"order-engine/internal/config"
)

// SecretSource turns a tenant's configured secret reference into the plaintext
// API secret. Implementations may be slow; CredentialCache calls them at most
// once per tenant per TTL window.
type SecretSource interface {
	Open(ctx context.Context, tenantID string, tenant config.Tenant) (string, error)
}

// SecretManagerSource reads tenant secrets from GCP Secret Manager (production).
type SecretManagerSource struct {
	client  *secretmanager.Client
	project string
}

// NewSecretManagerSource creates a Secret Manager client for project.
func NewSecretManagerSource(ctx context.Context, project string) (*SecretManagerSource, error) {
	if project == "" {
		return nil, fmt.Errorf("GCP project is required for secret manager")
	}
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating secret manager client: %w", err)
	}
	return &SecretManagerSource{client: client, project: project}, nil
}

// Open fetches projects/{project}/secrets/{secret_name}/versions/latest.
func (s *SecretManagerSource) Open(ctx context.Context, tenantID string, tenant config.Tenant) (string, error) {
	if tenant.SecretName == "" {
		return "", fmt.Errorf("tenant %s has no secret_name", tenantID)
	}
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", s.project, tenant.SecretName)
	result, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("accessing secret %s: %w", name, err)
	}
	return string(result.Payload.Data), nil
}

// Close releases the Secret Manager connection.
func (s *SecretManagerSource) Close() error {
	return s.client.Close()
}

const nonceSize = 24

// SealedSource opens secretbox-sealed secrets stored in the tenant config
// (development). The sealed form is base64(nonce || box).
type SealedSource struct {
	key [32]byte
}

// NewSealedSource parses a hex-encoded 32-byte key.
func NewSealedSource(hexKey string) (*SealedSource, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding secret box key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("secret box key must be 32 bytes, got %d", len(raw))
	}
	s := &SealedSource{}
	copy(s.key[:], raw)
	return s, nil
}

// Open decrypts tenant.SealedSecret.
func (s *SealedSource) Open(_ context.Context, tenantID string, tenant config.Tenant) (string, error) {
	if tenant.SealedSecret == "" {
		return "", fmt.Errorf("tenant %s has no sealed_secret", tenantID)
	}
	data, err := base64.StdEncoding.DecodeString(tenant.SealedSecret)
	if err != nil {
		return "", fmt.Errorf("tenant %s: decoding sealed secret: %w", tenantID, err)
	}
	if len(data) < nonceSize+secretbox.Overhead {
		return "", fmt.Errorf("tenant %s: sealed secret too short", tenantID)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], data[:nonceSize])
	plain, ok := secretbox.Open(nil, data[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", fmt.Errorf("tenant %s: sealed secret does not open with configured key", tenantID)
	}
	return string(plain), nil
}

// Seal encrypts plaintext in the format Open expects.
func (s *SealedSource) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(out), nil
}

// StaticSource serves fixed secrets keyed by tenant id. Used in tests.
type StaticSource map[string]string

// Open returns the configured secret.
func (s StaticSource) Open(_ context.Context, tenantID string, _ config.Tenant) (string, error) {
	secret, ok := s[tenantID]
	if !ok {
		return "", fmt.Errorf("no static secret for tenant %s", tenantID)
	}
	return secret, nil
}

var (
	_ SecretSource = (*SecretManagerSource)(nil)
	_ SecretSource = (*SealedSource)(nil)
	_ SecretSource = StaticSource(nil)
)
