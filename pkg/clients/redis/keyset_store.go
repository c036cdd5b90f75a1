package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ssimonitch/back-burn-core/pkg/auth"
	bberr "github.com/ssimonitch/back-burn-core/pkg/errors"
)

// DefaultKeySetKey is the Redis key under which the identity provider's
// key-set snapshot is stored when no key is configured.
const DefaultKeySetKey = "auth:jwks:snapshot"

// DefaultKeySetTTL bounds how long a snapshot survives in Redis without
// being rewritten. A generous multiple of the verifier's cache TTL: the
// snapshot only has to outlive a deploy or restart, and the verifier
// ignores snapshots older than its own TTL anyway.
const DefaultKeySetTTL = 24 * time.Hour

// KeySetStore persists identity-provider key-set snapshots in Redis so that
// freshly started instances can verify tokens before their first upstream
// fetch completes. It implements [auth.SnapshotStore] and is shared safely
// by all replicas: last write wins, and every write carries the provider
// fetch time so readers can judge staleness themselves.
//
// Example:
//
//	store := redis.NewKeySetStore(client, "", 0)
//	verifier, err := auth.NewTokenVerifier(cfg, auth.VerifierConfig{
//	    SnapshotStore: store,
//	    ...
//	})
type KeySetStore struct {
	client *Client
	key    string
	ttl    time.Duration
}

// Compile-time interface compliance check.
var _ auth.SnapshotStore = (*KeySetStore)(nil)

// keySetEnvelope is the JSON wire format for a persisted snapshot. The fetch
// time travels with the document so a reader can tell how stale it is.
type keySetEnvelope struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Document  json.RawMessage `json:"document"`
}

// NewKeySetStore creates a KeySetStore backed by the given client. An empty
// key selects [DefaultKeySetKey]; a zero ttl selects [DefaultKeySetTTL].
func NewKeySetStore(client *Client, key string, ttl time.Duration) *KeySetStore {
	if key == "" {
		key = DefaultKeySetKey
	}
	if ttl <= 0 {
		ttl = DefaultKeySetTTL
	}
	return &KeySetStore{client: client, key: key, ttl: ttl}
}

// LoadSnapshot returns the most recently saved key-set document and the time
// it was fetched from the provider. A missing key is not an error: it returns
// (nil, zero time, nil) so a cold store reads as "no snapshot".
func (s *KeySetStore) LoadSnapshot(ctx context.Context) ([]byte, time.Time, error) {
	raw, err := s.client.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, time.Time{}, nil
		}
		return nil, time.Time{}, err
	}

	var envelope keySetEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return nil, time.Time{}, bberr.Wrap(err, bberr.CodeInternalDatabase,
			"redis: key-set snapshot is corrupt")
	}
	if len(envelope.Document) == 0 {
		return nil, time.Time{}, nil
	}
	return envelope.Document, envelope.FetchedAt, nil
}

// SaveSnapshot persists a key-set document and its provider fetch time,
// replacing any previous snapshot. The entry expires after the store's TTL
// so an abandoned deployment does not serve arbitrarily old key material.
func (s *KeySetStore) SaveSnapshot(ctx context.Context, raw []byte, fetchedAt time.Time) error {
	envelope := keySetEnvelope{
		FetchedAt: fetchedAt,
		Document:  json.RawMessage(raw),
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return bberr.Wrap(err, bberr.CodeInternal,
			"redis: failed to encode key-set snapshot")
	}
	return s.client.Set(ctx, s.key, string(payload), s.ttl)
}
