package secrets_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/straye-as/device-importer/internal/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSecretClient struct {
	values map[string]string
	calls  int
}

func (f *fakeSecretClient) GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	f.calls++
	value, ok := f.values[name]
	if !ok {
		return azsecrets.GetSecretResponse{}, errors.New("SecretNotFound")
	}
	return azsecrets.GetSecretResponse{Secret: azsecrets.Secret{Value: &value}}, nil
}

func TestNewProvider_AutoSource(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		want        secrets.SecretSource
	}{
		{name: "development uses environment", environment: "development", want: secrets.SourceEnvironment},
		{name: "local uses environment", environment: "local", want: secrets.SourceEnvironment},
		{name: "empty uses environment", environment: "", want: secrets.SourceEnvironment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := secrets.NewProvider(&secrets.ProviderConfig{
				Source:      secrets.SourceAuto,
				Environment: tt.environment,
			}, zap.NewNop())

			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Source())
			assert.False(t, p.IsVaultEnabled())
		})
	}
}

func TestNewProvider_VaultRequiresName(t *testing.T) {
	_, err := secrets.NewProvider(&secrets.ProviderConfig{
		Source:      secrets.SourceAuto,
		Environment: "production",
	}, zap.NewNop())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "vault name required")
}

func TestNewProvider_UnknownSource(t *testing.T) {
	_, err := secrets.NewProvider(&secrets.ProviderConfig{Source: "s3"}, zap.NewNop())

	assert.Error(t, err)
}

func TestProvider_EnvironmentSource(t *testing.T) {
	t.Setenv("DEVICE_IMPORTER_TEST_SECRET", "from-env")

	p, err := secrets.NewProvider(&secrets.ProviderConfig{Source: secrets.SourceEnvironment}, zap.NewNop())
	require.NoError(t, err)

	value, err := p.GetSecret(context.Background(), "DEVICE_IMPORTER_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-env", value)

	_, err = p.GetSecret(context.Background(), "DEVICE_IMPORTER_MISSING_SECRET")
	assert.Error(t, err)
}

func TestProvider_GetSecretOrEnv_PrefersEnvironment(t *testing.T) {
	t.Setenv("IOTHUB_CONNECTIONSTRING", "HostName=env")

	client := &fakeSecretClient{values: map[string]string{"iothub-connection-string": "HostName=vault"}}
	vault := secrets.NewVaultClientWithClient(client, &secrets.VaultConfig{CacheEnabled: true}, zap.NewNop())
	p := secrets.NewVaultProvider(vault, zap.NewNop())

	value, err := p.GetSecretOrEnv(context.Background(), "iothub-connection-string", "IOTHUB_CONNECTIONSTRING")

	require.NoError(t, err)
	assert.Equal(t, "HostName=env", value)
	assert.Equal(t, 0, client.calls)
}

func TestProvider_GetSecretOrEnv_FallsBackToVault(t *testing.T) {
	client := &fakeSecretClient{values: map[string]string{"storage-connection-string": "AccountName=vault"}}
	vault := secrets.NewVaultClientWithClient(client, &secrets.VaultConfig{CacheEnabled: true}, zap.NewNop())
	p := secrets.NewVaultProvider(vault, zap.NewNop())

	value, err := p.GetSecretOrEnv(context.Background(), "storage-connection-string", "DEVICE_IMPORTER_UNSET_ENV")

	require.NoError(t, err)
	assert.Equal(t, "AccountName=vault", value)
	assert.True(t, p.IsVaultEnabled())
}

func TestVaultClient_CachesSecrets(t *testing.T) {
	client := &fakeSecretClient{values: map[string]string{"admin-api-key": "k"}}
	vault := secrets.NewVaultClientWithClient(client, &secrets.VaultConfig{CacheEnabled: true}, zap.NewNop())

	for i := 0; i < 3; i++ {
		value, err := vault.GetSecret(context.Background(), "admin-api-key")
		require.NoError(t, err)
		assert.Equal(t, "k", value)
	}
	assert.Equal(t, 1, client.calls)
}

func TestVaultClient_CacheDisabled(t *testing.T) {
	client := &fakeSecretClient{values: map[string]string{"admin-api-key": "k"}}
	vault := secrets.NewVaultClientWithClient(client, &secrets.VaultConfig{CacheEnabled: false}, zap.NewNop())

	_, _ = vault.GetSecret(context.Background(), "admin-api-key")
	_, _ = vault.GetSecret(context.Background(), "admin-api-key")

	assert.Equal(t, 2, client.calls)
}

func TestVaultClient_MissingSecret(t *testing.T) {
	client := &fakeSecretClient{values: map[string]string{}}
	vault := secrets.NewVaultClientWithClient(client, &secrets.VaultConfig{}, zap.NewNop())

	_, err := vault.GetSecret(context.Background(), "nope")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get secret 'nope'")
}
