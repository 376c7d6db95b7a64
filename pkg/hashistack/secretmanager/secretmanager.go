package secretmanager

import (
	"os"

	vault "github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("secretmanager", fx.Provide(ProvideVault))

// ProvideVault builds a client from the VAULT_* environment. When VAULT_ADDR is
// unset no client is provided and configuration is read without secrets.
func ProvideVault() (*vault.Client, error) {
	if _, ok := os.LookupEnv("VAULT_ADDR"); !ok {
		zap.L().Info("VAULT_ADDR not set, skipping vault client")
		return nil, nil
	}

	client, err := vault.New(
		vault.WithEnvironment(),
	)
	if err != nil {
		return nil, err
	}

	if token, ok := os.LookupEnv("VAULT_TOKEN"); ok {
		if err := client.SetToken(token); err != nil {
			return nil, err
		}
	}

	return client, nil
}
