//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/vnshop/api/internal/platform/firestore"
	"github.com/vnshop/api/internal/platform/firestore/firestoretest"
)

type sampleEntity struct {
	Name  string `firestore:"name"`
	Count int    `firestore:"count"`
}

type repoClassifier interface {
	IsNotFound() bool
	IsConflict() bool
}

func TestProviderAndRepositoryIntegration(t *testing.T) {
	cfg := firestoretest.Start(t, "test-project")
	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() { _ = provider.Close(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := provider.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	repo := pfirestore.NewCollection[sampleEntity](provider, "samples")

	if err := repo.Create(ctx, "sample-1", sampleEntity{Name: "alpha", Count: 1}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	err := repo.Create(ctx, "sample-1", sampleEntity{Name: "dup"})
	var cls repoClassifier
	if !errors.As(err, &cls) || !cls.IsConflict() {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}

	if err := repo.Update(ctx, "sample-1", []firestore.Update{{Path: "count", Value: firestore.Increment(1)}}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	doc, err := repo.Get(ctx, "sample-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if doc.ID != "sample-1" || doc.Data.Count != 2 {
		t.Fatalf("unexpected document %#v", doc)
	}

	if err := repo.Set(ctx, "sample-2", sampleEntity{Name: "beta"}); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	total, err := repo.Count(ctx, nil)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 documents, got %d", total)
	}

	docs, err := repo.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("name", "==", "beta")
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "sample-2" {
		t.Fatalf("unexpected query result %#v", docs)
	}

	_, err = repo.Get(ctx, "missing")
	if !errors.As(err, &cls) || !cls.IsNotFound() {
		t.Fatalf("expected not found classification, got %v", err)
	}

	sentinel := errors.New("abort")
	err = provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := repo.Doc(ctx, "sample-1")
		if err != nil {
			return err
		}
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		if err := tx.Update(ref, []firestore.Update{{Path: "count", Value: 100}}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel from transaction, got %v", err)
	}
	doc, err = repo.Get(ctx, "sample-1")
	if err != nil {
		t.Fatalf("get after aborted transaction failed: %v", err)
	}
	if doc.Data.Count != 2 {
		t.Fatalf("expected aborted transaction to leave count=2, got %d", doc.Data.Count)
	}

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	if err := provider.RunTransaction(cancelled, func(ctx context.Context, tx *firestore.Transaction) error {
		return nil
	}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled error, got %v", err)
	}
}
