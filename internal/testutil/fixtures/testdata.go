// Package fixtures provides shared test data constants for the Back Burn
// core test suite.
//
// Using common constants for test identities prevents magic strings in
// tests and ensures consistency across packages.
package fixtures

// Standard identity values used in token verification tests.
const (
	// TestSubject is the default subject claim for test identities.
	TestSubject = "user-7f3a-4c21"

	// TestIssuer is the default token issuer for test identities. The
	// shape mirrors a Supabase project auth endpoint.
	TestIssuer = "https://test-project.supabase.co/auth/v1"

	// TestAudience is the default audience for test identities.
	TestAudience = "authenticated"

	// TestKeyID is the default signing key ID used in key-set tests.
	TestKeyID = "key-2024-a"

	// AltKeyID is a second key ID for rotation tests requiring two keys.
	AltKeyID = "key-2024-b"

	// TestEmail is the default email claim for test identities.
	TestEmail = "athlete@example.com"
)

// Standard configuration values used in config loader tests.
const (
	// TestEnvPrefix is the default environment variable prefix for config tests.
	TestEnvPrefix = "TESTAPP"

	// TestConfigYAML is a minimal valid YAML configuration for tests.
	TestConfigYAML = `host: localhost
port: 8080
database: testdb
`
)

// Standard database configuration values used in postgres client tests.
const (
	// TestDBHost is the default database host for test configurations.
	TestDBHost = "localhost"

	// TestDBPort is the default database port for test configurations.
	TestDBPort = 5432

	// TestDBName is the default database name for test configurations.
	TestDBName = "testdb"

	// TestDBUser is the default database user for test configurations.
	TestDBUser = "testuser"

	// TestDBPassword is the default database password for test configurations.
	// This is a deliberately weak value suitable only for unit tests.
	TestDBPassword = "testpass"
)
