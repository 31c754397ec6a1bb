package crypto

import (
	"fmt"

	"github.com/rakunlabs/wasmsvc/internal/config"
)

// EncryptNotifyConfig encrypts Notify.Password in-place and returns the
// modified config. If key is nil, the config is returned unchanged.
func EncryptNotifyConfig(cfg config.Notify, key []byte) (config.Notify, error) {
	if key == nil || cfg.Password == "" {
		return cfg, nil
	}
	enc, err := Encrypt(cfg.Password, key)
	if err != nil {
		return cfg, fmt.Errorf("encrypt notify password: %w", err)
	}
	cfg.Password = enc
	return cfg, nil
}

// DecryptNotifyConfig decrypts Notify.Password in-place and returns the
// modified config. If key is nil, or the value isn't encrypted, it is
// left as-is.
func DecryptNotifyConfig(cfg config.Notify, key []byte) (config.Notify, error) {
	if key == nil || cfg.Password == "" {
		return cfg, nil
	}
	dec, err := Decrypt(cfg.Password, key)
	if err != nil {
		return cfg, fmt.Errorf("decrypt notify password: %w", err)
	}
	cfg.Password = dec
	return cfg, nil
}
