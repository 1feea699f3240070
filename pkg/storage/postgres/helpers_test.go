package postgres_test

import (
	"os"
	"testing"

	"marketstream/pkg/storage/postgres"

	"github.com/stretchr/testify/require"
)

const testDSNEnv = "MARKETSTREAM_TEST_POSTGRES_DSN"

// newTestClient connects to the database named by MARKETSTREAM_TEST_POSTGRES_DSN
// and migrates it, skipping the test when the variable is unset.
func newTestClient(t *testing.T) *postgres.PostgresClient {
	t.Helper()
	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDSNEnv)
	}

	client, err := postgres.NewClient(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.AutoMigrate())
	return client
}
