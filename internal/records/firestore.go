package records

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Firestore stores one document per record in a collection, keyed by the
// document ID. Header names become field names verbatim; Firestore has no
// column order so header creation is implicit.
type Firestore struct {
	coll     *firestore.CollectionRef
	idHeader string
}

// NewFirestore creates a store on collection of client.
func NewFirestore(client *firestore.Client, collection, idHeader string) *Firestore {
	if idHeader == "" {
		idHeader = DefaultIDHeader
	}
	return &Firestore{coll: client.Collection(collection), idHeader: idHeader}
}

// ListIDs implements Store with a lexicographic range query on the ID field.
func (f *Firestore) ListIDs(ctx context.Context, prefix string) ([]string, error) {
	path := firestore.FieldPath{f.idHeader}
	q := f.coll.Query
	if prefix != "" {
		q = q.WherePath(path, ">=", prefix).WherePath(path, "<", prefix+"\uf8ff")
	}
	it := q.Documents(ctx)
	defer it.Stop()

	var ids []string
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing records: %w", err)
		}
		v, err := snap.DataAtPath(path)
		if err != nil {
			continue
		}
		if id, ok := v.(string); ok && hasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Append implements Store. Appending an existing ID fails.
func (f *Firestore) Append(ctx context.Context, row Row) error {
	id := row[f.idHeader]
	if id == "" {
		return ErrMissingID
	}
	if _, err := f.coll.Doc(id).Create(ctx, toData(row)); err != nil {
		return fmt.Errorf("creating record %s: %w", id, err)
	}
	return nil
}

// Update implements Store, merging row into the existing document.
func (f *Firestore) Update(ctx context.Context, id string, row Row) error {
	doc := f.coll.Doc(id)
	snap, err := doc.Get(ctx)
	if snap != nil && !snap.Exists() {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("reading record %s: %w", id, err)
	}
	if _, err := doc.Set(ctx, toData(row), firestore.MergeAll); err != nil {
		return fmt.Errorf("updating record %s: %w", id, err)
	}
	return nil
}

func toData(row Row) map[string]interface{} {
	data := make(map[string]interface{}, len(row))
	for k, v := range row {
		data[k] = v
	}
	return data
}
