package firestore

import (
	"context"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/vnshop/api/internal/domain"
	pfirestore "github.com/vnshop/api/internal/platform/firestore"
	"github.com/vnshop/api/internal/platform/textutil"
)

const (
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
)

func direction(order domain.SortOrder) firestore.Direction {
	if order == domain.SortAsc {
		return firestore.Asc
	}
	return firestore.Desc
}

// paged orders, skips and limits a filtered query. A prefix search must order by its key field
// first, so the requested sort only applies when keyField is empty.
func paged(query firestore.Query, page domain.Page, keyField string) firestore.Query {
	if keyField != "" {
		query = query.OrderBy(keyField, firestore.Asc)
	} else {
		field := strings.TrimSpace(page.SortField)
		if field == "" {
			field = fieldCreatedAt
		}
		query = query.OrderBy(field, direction(page.SortOrder))
	}
	if offset := page.Offset(); offset > 0 {
		query = query.Offset(offset)
	}
	if page.Limit > 0 {
		query = query.Limit(page.Limit)
	}
	return query
}

// withPrefix restricts field to values starting with key, which must already be folded with
// textutil.SearchKey. An empty key leaves the query untouched.
func withPrefix(query firestore.Query, field, key string) firestore.Query {
	if key == "" {
		return query
	}
	return query.Where(field, ">=", key).Where(field, "<", textutil.PrefixEnd(key))
}

// searchField returns field when key enables a prefix search.
func searchField(field, key string) string {
	if key == "" {
		return ""
	}
	return field
}

// listPage counts the filtered set and fetches one page of it.
func listPage[D any, T any](ctx context.Context, base *pfirestore.Collection[D], filter pfirestore.QueryBuilder, page domain.Page, keyField string, convert func(pfirestore.Document[D]) T) (domain.PageResult[T], error) {
	total, err := base.Count(ctx, filter)
	if err != nil {
		return domain.PageResult[T]{}, err
	}
	docs, err := base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter != nil {
			q = filter(q)
		}
		return paged(q, page, keyField)
	})
	if err != nil {
		return domain.PageResult[T]{}, err
	}
	items := make([]T, 0, len(docs))
	for _, doc := range docs {
		items = append(items, convert(doc))
	}
	return domain.PageResult[T]{Items: items, Total: int(total)}, nil
}

// getMany loads the documents that exist among ids with a single batched read.
func getMany[D any](ctx context.Context, provider *pfirestore.Provider, base *pfirestore.Collection[D], ids []string) ([]pfirestore.Document[D], error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	client, err := provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		ref, err := base.Doc(ctx, id)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("get_all", err)
	}
	return decodeExisting(ctx, base, snaps)
}

func decodeExisting[D any](ctx context.Context, base *pfirestore.Collection[D], snaps []*firestore.DocumentSnapshot) ([]pfirestore.Document[D], error) {
	docs := make([]pfirestore.Document[D], 0, len(snaps))
	for _, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		doc, err := base.Decode(snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func firstOrNotFound[D any](docs []pfirestore.Document[D], op, key string) (pfirestore.Document[D], error) {
	if len(docs) == 0 {
		return pfirestore.Document[D]{}, pfirestore.NotFoundError(op, key)
	}
	return docs[0], nil
}
