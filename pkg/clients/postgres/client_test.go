package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bberr "github.com/ssimonitch/back-burn-core/pkg/errors"
)

// newMockClient creates a Client backed by a pgxmock pool. Pings are
// always monitored in pgxmock v4, so Health tests can set expectations
// on them.
func newMockClient(t *testing.T) (*Client, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return NewFromPool(mock, &Config{Database: "backburn_test"}), mock
}

// ===========================================================================
// NewFromPool Tests
// ===========================================================================

// TestNewFromPool_WithConfig verifies that NewFromPool correctly initializes
// the client with the provided pool and config.
func TestNewFromPool_WithConfig(t *testing.T) {
	t.Parallel()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := &Config{Database: "backburn"}
	client := NewFromPool(mock, cfg)

	assert.NotNil(t, client.pool)
	assert.Equal(t, cfg, client.config)
	assert.Equal(t, "backburn", client.databaseName)
	assert.NotNil(t, client.tracer)
}

// TestNewFromPool_NilConfig verifies that NewFromPool handles a nil config
// gracefully by initializing a zero-value Config.
func TestNewFromPool_NilConfig(t *testing.T) {
	t.Parallel()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	client := NewFromPool(mock, nil)

	require.NotNil(t, client.config)
	assert.Empty(t, client.databaseName)
}

// ===========================================================================
// Query Tests
// ===========================================================================

// TestClient_Query_Success verifies that Query returns rows on success.
func TestClient_Query_Success(t *testing.T) {
	t.Parallel()
	client, mock := newMockClient(t)

	mock.ExpectQuery("SELECT id, name FROM plans").
		WithArgs("user-7f3a").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).
			AddRow("plan-1", "Push Pull Legs"))

	rows, err := client.Query(context.Background(), "SELECT id, name FROM plans WHERE user_id = $1", "user-7f3a")
	require.NoError(t, err)
	defer rows.Close()

	require.True(t, rows.Next())
	var id, name string
	require.NoError(t, rows.Scan(&id, &name))
	assert.Equal(t, "plan-1", id)
	assert.Equal(t, "Push Pull Legs", name)

	require.NoError(t, mock.ExpectationsWereMet())
}

// TestClient_Query_Error verifies that Query wraps database errors with
// CodeInternalDatabase.
func TestClient_Query_Error(t *testing.T) {
	t.Parallel()
	client, mock := newMockClient(t)

	mock.ExpectQuery("SELECT id FROM plans").
		WillReturnError(errors.New(`relation "plans" does not exist`))

	_, err := client.Query(context.Background(), "SELECT id FROM plans")
	require.Error(t, err)

	var bbErr *bberr.Error
	require.True(t, errors.As(err, &bbErr), "Query() error type = %T, want *bberr.Error", err)
	assert.Equal(t, bberr.CodeInternalDatabase, bbErr.Code)

	require.NoError(t, mock.ExpectationsWereMet())
}

// TestClient_Query_TimeoutError verifies that a deadline-exceeded error is
// classified as CodeTimeoutDatabase.
func TestClient_Query_TimeoutError(t *testing.T) {
	t.Parallel()
	client, mock := newMockClient(t)

	mock.ExpectQuery("SELECT id FROM plans").
		WillReturnError(context.DeadlineExceeded)

	_, err := client.Query(context.Background(), "SELECT id FROM plans")
	require.Error(t, err)

	var bbErr *bberr.Error
	require.True(t, errors.As(err, &bbErr))
	assert.Equal(t, bberr.CodeTimeoutDatabase, bbErr.Code)
	assert.True(t, bberr.IsRetryable(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

// ===========================================================================
// QueryRow Tests
// ===========================================================================

// TestClient_QueryRow verifies that QueryRow returns a scannable row.
func TestClient_QueryRow(t *testing.T) {
	t.Parallel()
	client, mock := newMockClient(t)

	mock.ExpectQuery("SELECT name FROM plans").
		WithArgs("plan-1").
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("Push Pull Legs"))

	var name string
	err := client.QueryRow(context.Background(), "SELECT name FROM plans WHERE id = $1", "plan-1").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "Push Pull Legs", name)

	require.NoError(t, mock.ExpectationsWereMet())
}

// ===========================================================================
// Exec Tests
// ===========================================================================

// TestClient_Exec_Success verifies that Exec returns the command tag on
// success.
func TestClient_Exec_Success(t *testing.T) {
	t.Parallel()
	client, mock := newMockClient(t)

	mock.ExpectExec("DELETE FROM sessions").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	tag, err := client.Exec(context.Background(), "DELETE FROM sessions WHERE expired_at < now()")
	require.NoError(t, err)
	assert.Equal(t, int64(3), tag.RowsAffected())

	require.NoError(t, mock.ExpectationsWereMet())
}

// TestClient_Exec_Error verifies that Exec wraps database errors.
func TestClient_Exec_Error(t *testing.T) {
	t.Parallel()
	client, mock := newMockClient(t)

	mock.ExpectExec("INSERT INTO plans").
		WithArgs("plan-1").
		WillReturnError(errors.New("duplicate key value violates unique constraint"))

	_, err := client.Exec(context.Background(), "INSERT INTO plans (id) VALUES ($1)", "plan-1")
	require.Error(t, err)

	var bbErr *bberr.Error
	require.True(t, errors.As(err, &bbErr))
	assert.Equal(t, bberr.CodeInternalDatabase, bbErr.Code)

	require.NoError(t, mock.ExpectationsWereMet())
}

// ===========================================================================
// Health Tests
// ===========================================================================

// TestClient_Health_Success verifies that Health returns nil when the
// ping succeeds.
func TestClient_Health_Success(t *testing.T) {
	t.Parallel()
	client, mock := newMockClient(t)

	mock.ExpectPing()

	require.NoError(t, client.Health(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestClient_Health_Failure verifies that a failed ping is reported as
// CodeUnavailable for readiness probes.
func TestClient_Health_Failure(t *testing.T) {
	t.Parallel()
	client, mock := newMockClient(t)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	err := client.Health(context.Background())
	require.Error(t, err)

	var bbErr *bberr.Error
	require.True(t, errors.As(err, &bbErr))
	assert.Equal(t, bberr.CodeUnavailable, bbErr.Code)

	require.NoError(t, mock.ExpectationsWereMet())
}

// ===========================================================================
// Pool Accessor Tests
// ===========================================================================

// TestClient_PoolAccessor verifies that Pool() exposes the underlying pool.
func TestClient_PoolAccessor(t *testing.T) {
	t.Parallel()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	client := NewFromPool(mock, nil)
	assert.NotNil(t, client.Pool())
}

// ===========================================================================
// wrapError Tests
// ===========================================================================

// TestWrapError_Classification verifies timeout vs internal classification.
func TestWrapError_Classification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode bberr.Code
	}{
		{name: "deadline exceeded", err: context.DeadlineExceeded, wantCode: bberr.CodeTimeoutDatabase},
		{name: "canceled", err: context.Canceled, wantCode: bberr.CodeTimeoutDatabase},
		{name: "generic database error", err: errors.New("syntax error"), wantCode: bberr.CodeInternalDatabase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			wrapped := wrapError(tt.err, "postgres: operation failed")
			require.NotNil(t, wrapped)
			assert.Equal(t, tt.wantCode, wrapped.Code)
		})
	}

	assert.Nil(t, wrapError(nil, "unused"))
}
