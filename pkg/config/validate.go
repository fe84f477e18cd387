// Package config loads and validates service configuration.
package config

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ValidateCore ensures critical configuration is present.
func (c *Config) ValidateCore() error {
	var missing []string

	if strings.TrimSpace(c.Database.URL) == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if strings.TrimSpace(c.Redis.URL) == "" {
		missing = append(missing, "REDIS_URL")
	}
	if strings.TrimSpace(c.Server.Port) == "" {
		missing = append(missing, "SERVER_PORT")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" || c.JWT.Secret == "change-this-secret" {
		missing = append(missing, "JWT_SECRET")
	}
	if strings.TrimSpace(c.Storage.BasePath) == "" {
		missing = append(missing, "STORAGE_PATH")
	}
	if key := c.Security.EncryptionKey; key != "" {
		if b, err := hex.DecodeString(key); err != nil || (len(b) != 16 && len(b) != 24 && len(b) != 32) {
			missing = append(missing, "ENCRYPTION_KEY (hex, 16/24/32 bytes)")
		}
	}
	if !c.Anchor.ExchangeRate.IsPositive() {
		missing = append(missing, "ANCHOR_EXCHANGE_RATE")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	return nil
}

// APIKeyIndexKey keys the anchor API key lookup index. HMAC_KEY is preferred;
// without it the JWT secret is used, so rotating the secret revokes every key.
func (c *Config) APIKeyIndexKey() []byte {
	if b, err := hex.DecodeString(c.Security.HMACKey); err == nil && len(b) > 0 {
		return b
	}
	return []byte(c.JWT.Secret)
}
