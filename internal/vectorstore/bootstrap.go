package vectorstore

import "context"

// EnsureCollection implements C12's collection-bootstrap contract
// (spec §4.12): on first write to a collection that doesn't yet exist,
// provision it with the dense+sparse named vectors and the standard
// payload indices. CreateCollection is itself idempotent, so repeated
// calls with the same denseDim are no-ops.
func EnsureCollection(ctx context.Context, store Store, collection string, denseDim uint64) error {
	exists, err := store.CollectionExists(ctx, collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return store.CreateCollection(ctx, collection, denseDim, true, StandardPayloadIndices)
}
