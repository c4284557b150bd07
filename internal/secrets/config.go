package secrets

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// ErrNoIdentity means the config holds sealed values but no identity was found.
var ErrNoIdentity = errors.New("config contains ENC[...] values but no age identity is configured")

// SealedKeys lists the config keys whose values are ENC[...] envelopes.
func SealedKeys(v *viper.Viper) []string {
	var keys []string
	for _, key := range v.AllKeys() {
		if IsEncrypted(v.GetString(key)) {
			keys = append(keys, key)
		}
	}
	return keys
}

// DecryptConfig replaces every sealed value in v with its plaintext. Configs
// without sealed values need no identity.
func DecryptConfig(v *viper.Viper) error {
	keys := SealedKeys(v)
	if len(keys) == 0 {
		return nil
	}

	ids, err := Resolve(v)
	if err != nil {
		return fmt.Errorf("resolve age identity: %w", err)
	}
	if len(ids) == 0 {
		return ErrNoIdentity
	}

	for _, key := range keys {
		plain, err := Decrypt(v.GetString(key), ids...)
		if err != nil {
			return fmt.Errorf("decrypt %s: %w", key, err)
		}
		v.Set(key, plain)
	}
	return nil
}
