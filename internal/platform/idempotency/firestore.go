package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/vnshop/api/internal/platform/firestore"
)

const collection = "idempotency_keys"

type storedEntry struct {
	Scope       string              `firestore:"scope"`
	Key         string              `firestore:"key"`
	Fingerprint string              `firestore:"fingerprint"`
	Done        bool                `firestore:"done"`
	Status      int                 `firestore:"status,omitempty"`
	Header      map[string][]string `firestore:"header,omitempty"`
	Body        []byte              `firestore:"body,omitempty"`
	CreatedAt   time.Time           `firestore:"created_at"`
	ExpiresAt   time.Time           `firestore:"expires_at"`
}

func toStored(e Entry) storedEntry {
	return storedEntry{
		Scope: e.Key.Scope, Key: e.Key.Value, Fingerprint: e.Fingerprint,
		Done: e.Done, Status: e.Status, Header: e.Header, Body: e.Body,
		CreatedAt: e.CreatedAt, ExpiresAt: e.ExpiresAt,
	}
}

func (s storedEntry) entry() Entry {
	return Entry{
		Key: Key{Scope: s.Scope, Value: s.Key}, Fingerprint: s.Fingerprint,
		Done: s.Done, Status: s.Status, Header: s.Header, Body: s.Body,
		CreatedAt: s.CreatedAt, ExpiresAt: s.ExpiresAt,
	}
}

// FirestoreStore shares claims across API instances through the idempotency_keys collection.
// A Firestore TTL policy on expires_at can replace Purge in production.
type FirestoreStore struct {
	provider *pfirestore.Provider
	docs     *pfirestore.Collection[storedEntry]
}

func NewFirestoreStore(provider *pfirestore.Provider) *FirestoreStore {
	return &FirestoreStore{
		provider: provider,
		docs:     pfirestore.NewCollection[storedEntry](provider, collection),
	}
}

// load reads the entry for ref inside tx. found is false for a missing document.
func (s *FirestoreStore) load(ctx context.Context, tx *firestore.Transaction, ref *firestore.DocumentRef) (entry Entry, found bool, err error) {
	snap, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	doc, err := s.docs.Decode(snap)
	if err != nil {
		return Entry{}, false, err
	}
	return doc.Data.entry(), true, nil
}

func (s *FirestoreStore) Claim(ctx context.Context, key Key, fingerprint string, now time.Time, lock time.Duration) (Claim, error) {
	ref, err := s.docs.Doc(ctx, key.id())
	if err != nil {
		return Claim{}, err
	}
	var claim Claim
	err = s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, found, err := s.load(ctx, tx, ref)
		if err != nil {
			return err
		}
		if found {
			c, ok, err := decide(existing, fingerprint, now)
			if err != nil {
				return err
			}
			if ok {
				claim = c
				return nil
			}
		}
		entry := pendingEntry(key, fingerprint, now, lock)
		claim = Claim{Outcome: OutcomeOwned, Entry: entry}
		return tx.Set(ref, toStored(entry))
	}, pfirestore.WithTxName("idempotency.claim"))
	if err != nil {
		return Claim{}, pfirestore.WrapError("idempotency.claim", err)
	}
	return claim, nil
}

func (s *FirestoreStore) Complete(ctx context.Context, key Key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	ref, err := s.docs.Doc(ctx, key.id())
	if err != nil {
		return err
	}
	err = s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		entry, found, err := s.load(ctx, tx, ref)
		if err != nil {
			return err
		}
		switch {
		case !found:
			entry = pendingEntry(key, fingerprint, now, 0)
		case entry.Fingerprint != fingerprint:
			return ErrKeyReused
		}
		return tx.Set(ref, toStored(settle(entry, resp, now, ttl)))
	}, pfirestore.WithTxName("idempotency.complete"))
	return pfirestore.WrapError("idempotency.complete", err)
}

func (s *FirestoreStore) Abandon(ctx context.Context, key Key) error {
	return s.docs.Delete(ctx, key.id())
}

// Purge deletes up to limit expired entries.
func (s *FirestoreStore) Purge(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	expired, err := s.docs.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("expires_at", "<=", now.UTC()).Limit(limit)
	})
	if err != nil {
		return 0, pfirestore.WrapError("idempotency.purge", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	writer := client.BulkWriter(ctx)
	coll := client.Collection(collection)
	for _, doc := range expired {
		if _, err := writer.Delete(coll.Doc(doc.ID)); err != nil {
			writer.End()
			return 0, err
		}
	}
	writer.End()
	return len(expired), nil
}
