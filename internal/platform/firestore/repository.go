package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
)

// Document is a decoded snapshot with its server timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// QueryBuilder narrows a collection query.
type QueryBuilder func(q firestore.Query) firestore.Query

// Collection is typed access to one top-level collection. Documents are mapped through the
// firestore struct tags of T.
type Collection[T any] struct {
	provider *Provider
	name     string
}

func NewCollection[T any](provider *Provider, name string) *Collection[T] {
	return &Collection[T]{provider: provider, name: strings.TrimSpace(name)}
}

// Create fails with a conflict error when id is taken.
func (c *Collection[T]) Create(ctx context.Context, id string, value T) error {
	return c.write(ctx, id, "create", func(doc *firestore.DocumentRef) error {
		_, err := doc.Create(ctx, value)
		return err
	})
}

func (c *Collection[T]) Set(ctx context.Context, id string, value T, opts ...firestore.SetOption) error {
	return c.write(ctx, id, "set", func(doc *firestore.DocumentRef) error {
		_, err := doc.Set(ctx, value, opts...)
		return err
	})
}

// Update patches fields of an existing document.
func (c *Collection[T]) Update(ctx context.Context, id string, updates []firestore.Update, pre ...firestore.Precondition) error {
	return c.write(ctx, id, "update", func(doc *firestore.DocumentRef) error {
		_, err := doc.Update(ctx, updates, pre...)
		return err
	})
}

// Delete is idempotent unless pre contains firestore.Exists.
func (c *Collection[T]) Delete(ctx context.Context, id string, pre ...firestore.Precondition) error {
	return c.write(ctx, id, "delete", func(doc *firestore.DocumentRef) error {
		_, err := doc.Delete(ctx, pre...)
		return err
	})
}

func (c *Collection[T]) Get(ctx context.Context, id string) (Document[T], error) {
	doc, err := c.Doc(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snap, err := doc.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(c.op("get"), err)
	}
	return Decode[T](snap)
}

// Query runs build over the collection and decodes all matches.
func (c *Collection[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	q, err := c.query(ctx, build)
	if err != nil {
		return nil, err
	}
	docs, err := Collect[T](ctx, q)
	return docs, WrapError(c.op("query"), err)
}

// Count is a server-side count aggregation over build.
func (c *Collection[T]) Count(ctx context.Context, build QueryBuilder) (int64, error) {
	q, err := c.query(ctx, build)
	if err != nil {
		return 0, err
	}
	n, err := CountQuery(ctx, q)
	return n, WrapError(c.op("count"), err)
}

// Ref returns the collection reference, for queries and transactions.
func (c *Collection[T]) Ref(ctx context.Context) (*firestore.CollectionRef, error) {
	if c.provider == nil || c.name == "" {
		return nil, WrapError(c.op("ref"), errors.New("collection is not configured"))
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name), nil
}

// Doc returns the reference of document id.
func (c *Collection[T]) Doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(c.op("doc"), errors.New("document id is required"))
	}
	ref, err := c.Ref(ctx)
	if err != nil {
		return nil, err
	}
	return ref.Doc(id), nil
}

// Decode maps a snapshot read elsewhere, e.g. inside a transaction.
func (c *Collection[T]) Decode(snap *firestore.DocumentSnapshot) (Document[T], error) {
	return Decode[T](snap)
}

func (c *Collection[T]) write(ctx context.Context, id, action string, fn func(*firestore.DocumentRef) error) error {
	doc, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	return WrapError(c.op(action), fn(doc))
}

func (c *Collection[T]) query(ctx context.Context, build QueryBuilder) (firestore.Query, error) {
	ref, err := c.Ref(ctx)
	if err != nil {
		return firestore.Query{}, err
	}
	if build == nil {
		return ref.Query, nil
	}
	return build(ref.Query), nil
}

func (c *Collection[T]) op(action string) string {
	if c.name == "" {
		return "firestore." + action
	}
	return c.name + "." + action
}

// Collect drains q, decoding each result into T.
func Collect[T any](ctx context.Context, q firestore.Query) ([]Document[T], error) {
	it := q.Documents(ctx)
	defer it.Stop()

	var out []Document[T]
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		doc, err := Decode[T](snap)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
}

const countAlias = "n"

// CountQuery runs a count aggregation over q.
func CountQuery(ctx context.Context, q firestore.Query) (int64, error) {
	res, err := q.NewAggregationQuery().WithCount(countAlias).Get(ctx)
	if err != nil {
		return 0, err
	}
	switch v := res[countAlias].(type) {
	case *firestorepb.Value:
		return v.GetIntegerValue(), nil
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("firestore: unexpected count result %T", v)
	}
}

// Decode maps snap into T. A missing document is a not-found error.
func Decode[T any](snap *firestore.DocumentSnapshot) (Document[T], error) {
	if snap == nil || !snap.Exists() {
		id := ""
		if snap != nil && snap.Ref != nil {
			id = snap.Ref.ID
		}
		return Document[T]{}, NotFoundError("decode", id)
	}
	var data T
	if err := snap.DataTo(&data); err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode %s: %w", snap.Ref.Path, err)
	}
	return Document[T]{ID: snap.Ref.ID, Data: data, CreateTime: snap.CreateTime, UpdateTime: snap.UpdateTime}, nil
}
