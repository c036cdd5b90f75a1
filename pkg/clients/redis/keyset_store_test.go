package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// keySetDoc is a minimal JWKS document used across the store tests.
const keySetDoc = `{"keys":[{"kty":"RSA","kid":"key-2026-03","alg":"RS256","n":"0vx7","e":"AQAB"}]}`

func newKeySetStore(m *mockCmdable) *KeySetStore {
	return NewKeySetStore(NewFromClient(m, nil), "", 0)
}

// TestNewKeySetStore_Defaults verifies that an empty key and zero TTL fall
// back to the documented defaults.
func TestNewKeySetStore_Defaults(t *testing.T) {
	t.Parallel()
	store := NewKeySetStore(NewFromClient(new(mockCmdable), nil), "", 0)

	assert.Equal(t, DefaultKeySetKey, store.key)
	assert.Equal(t, DefaultKeySetTTL, store.ttl)
}

// TestKeySetStore_SaveSnapshot verifies the snapshot is written as a JSON
// envelope carrying the provider fetch time, with the store's TTL applied.
func TestKeySetStore_SaveSnapshot(t *testing.T) {
	t.Parallel()

	fetchedAt := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	var written string

	m := new(mockCmdable)
	m.On("Set", mock.Anything, DefaultKeySetKey, mock.Anything, DefaultKeySetTTL).
		Run(func(args mock.Arguments) {
			written = args.Get(2).(string)
		}).
		Return(newStatusCmd("OK", nil))

	store := newKeySetStore(m)
	require.NoError(t, store.SaveSnapshot(context.Background(), []byte(keySetDoc), fetchedAt))

	var envelope keySetEnvelope
	require.NoError(t, json.Unmarshal([]byte(written), &envelope))
	assert.True(t, envelope.FetchedAt.Equal(fetchedAt))
	assert.JSONEq(t, keySetDoc, string(envelope.Document))

	m.AssertExpectations(t)
}

// TestKeySetStore_LoadSnapshot_RoundTrip verifies that a saved envelope is
// read back with the document and fetch time intact.
func TestKeySetStore_LoadSnapshot_RoundTrip(t *testing.T) {
	t.Parallel()

	fetchedAt := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	payload, err := json.Marshal(keySetEnvelope{
		FetchedAt: fetchedAt,
		Document:  json.RawMessage(keySetDoc),
	})
	require.NoError(t, err)

	m := new(mockCmdable)
	m.On("Get", mock.Anything, DefaultKeySetKey).
		Return(newStringCmd(string(payload), nil))

	store := newKeySetStore(m)
	doc, gotFetchedAt, err := store.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, keySetDoc, string(doc))
	assert.True(t, gotFetchedAt.Equal(fetchedAt))

	m.AssertExpectations(t)
}

// TestKeySetStore_LoadSnapshot_MissingKey verifies that a cold store reads
// as "no snapshot" rather than an error.
func TestKeySetStore_LoadSnapshot_MissingKey(t *testing.T) {
	t.Parallel()

	m := new(mockCmdable)
	m.On("Get", mock.Anything, DefaultKeySetKey).
		Return(newStringCmd("", redis.Nil))

	store := newKeySetStore(m)
	doc, fetchedAt, err := store.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Nil(t, doc)
	assert.True(t, fetchedAt.IsZero())

	m.AssertExpectations(t)
}

// TestKeySetStore_LoadSnapshot_CorruptEnvelope verifies that an undecodable
// envelope is surfaced as an error rather than silently returning garbage.
func TestKeySetStore_LoadSnapshot_CorruptEnvelope(t *testing.T) {
	t.Parallel()

	m := new(mockCmdable)
	m.On("Get", mock.Anything, DefaultKeySetKey).
		Return(newStringCmd("not json", nil))

	store := newKeySetStore(m)
	_, _, err := store.LoadSnapshot(context.Background())
	require.Error(t, err)

	m.AssertExpectations(t)
}

// TestKeySetStore_LoadSnapshot_EmptyDocument verifies that an envelope
// without a document reads as "no snapshot".
func TestKeySetStore_LoadSnapshot_EmptyDocument(t *testing.T) {
	t.Parallel()

	payload, err := json.Marshal(keySetEnvelope{FetchedAt: time.Now()})
	require.NoError(t, err)

	m := new(mockCmdable)
	m.On("Get", mock.Anything, DefaultKeySetKey).
		Return(newStringCmd(string(payload), nil))

	store := newKeySetStore(m)
	doc, fetchedAt, err := store.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Nil(t, doc)
	assert.True(t, fetchedAt.IsZero())

	m.AssertExpectations(t)
}

// TestKeySetStore_LoadSnapshot_RedisError verifies that transport errors
// propagate to the caller.
func TestKeySetStore_LoadSnapshot_RedisError(t *testing.T) {
	t.Parallel()

	m := new(mockCmdable)
	m.On("Get", mock.Anything, DefaultKeySetKey).
		Return(newStringCmd("", errors.New("connection reset by peer")))

	store := newKeySetStore(m)
	_, _, err := store.LoadSnapshot(context.Background())
	require.Error(t, err)

	m.AssertExpectations(t)
}

// TestKeySetStore_CustomKeyAndTTL verifies that configured values override
// the defaults.
func TestKeySetStore_CustomKeyAndTTL(t *testing.T) {
	t.Parallel()

	m := new(mockCmdable)
	m.On("Set", mock.Anything, "custom:jwks", mock.Anything, time.Hour).
		Return(newStatusCmd("OK", nil))

	store := NewKeySetStore(NewFromClient(m, nil), "custom:jwks", time.Hour)
	require.NoError(t, store.SaveSnapshot(context.Background(), []byte(keySetDoc), time.Now()))

	m.AssertExpectations(t)
}
