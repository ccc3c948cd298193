// Package secrets resolves named credentials (provider keys, webhook URLs,
// token signing keys) at call time so rotated values are picked up without a
// restart of long-lived components.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

var ErrSecretNotFound = errors.New("secret not found")

// Provider is the narrow secret lookup the engine depends on.
type Provider interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// ViperProvider reads secrets from the "secrets" section of the config
// (SECRETS_<NAME> in the environment), falling back to an environment
// variable named after the secret itself.
type ViperProvider struct {
	v *viper.Viper
}

func NewViperProvider(v *viper.Viper) *ViperProvider {
	return &ViperProvider{v: v}
}

func (p *ViperProvider) GetSecret(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return "", fmt.Errorf("%w: empty name", ErrSecretNotFound)
	}

	if value := strings.TrimSpace(p.v.GetString("secrets." + key)); value != "" {
		return value, nil
	}
	if value := strings.TrimSpace(os.Getenv(strings.ToUpper(key))); value != "" {
		return value, nil
	}

	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
}

// Static serves a fixed map. Used by tests and the CLI.
type Static map[string]string

func (s Static) GetSecret(ctx context.Context, name string) (string, error) {
	if value, ok := s[name]; ok && value != "" {
		return value, nil
	}
	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
}
