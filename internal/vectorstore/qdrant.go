package vectorstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qdrant/go-client/qdrant"
)

// Qdrant is the production Store, grounded on
// fredcamaral-mcp-alfarrabio/internal/storage/qdrant.go's client-setup
// idiom. It generalizes that file's single-dense-vector collection
// into the named dense+sparse layout spec §4.12 requires, using the
// real client's map-keyed vector/sparse-vector config (not exercised
// anywhere in the pack, grounded on the library's own public API —
// see DESIGN.md).
type Qdrant struct {
	client *qdrant.Client
}

// QdrantConfig mirrors the connection fields the host's QdrantConfig
// carries.
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// NewQdrant dials a Qdrant instance and returns a Store backed by it.
func NewQdrant(cfg QdrantConfig) (*Qdrant, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   cfg.Host,
		Port:                   cfg.Port,
		APIKey:                 cfg.APIKey,
		UseTLS:                 cfg.UseTLS,
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: failed to create qdrant client: %w", err)
	}
	return &Qdrant{client: client}, nil
}

func (q *Qdrant) CollectionExists(ctx context.Context, name string) (bool, error) {
	collections, err := q.client.ListCollections(ctx)
	if err != nil {
		return false, fmt.Errorf("vectorstore: list collections: %w", err)
	}
	for _, c := range collections {
		if c == name {
			return true, nil
		}
	}
	return false, nil
}

// CreateCollection is idempotent: if the collection already exists it
// verifies nothing and returns nil, matching spec §4.12's "repeated
// calls with matching schema are no-ops".
func (q *Qdrant) CreateCollection(ctx context.Context, name string, denseDim uint64, withSparse bool, payloadIndices []string) error {
	exists, err := q.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	vectorsConfig := qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
		DenseVectorName: {
			Size:     denseDim,
			Distance: qdrant.Distance_Cosine,
		},
	})

	create := &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig:  vectorsConfig,
	}

	if withSparse {
		create.SparseVectorsConfig = qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
			SparseVectorName: {},
		})
	}

	if err := q.client.CreateCollection(ctx, create); err != nil {
		return fmt.Errorf("vectorstore: create collection %q: %w", name, err)
	}
	slog.Info("created vector-store collection", "collection", name, "dense_dim", denseDim, "sparse", withSparse)

	for _, field := range payloadIndices {
		_, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("vectorstore: create payload index on %q: %w", field, err)
		}
	}

	return nil
}

func (q *Qdrant) UpsertPoints(ctx context.Context, collection string, points []Point) error {
	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		vectors := map[string]*qdrant.Vector{
			DenseVectorName: qdrant.NewVectorDense(p.Dense),
		}
		if p.Sparse != nil {
			vectors[SparseVectorName] = qdrant.NewVectorSparse(p.Sparse.Indices, p.Sparse.Values)
		}

		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(p.ID),
			Vectors: qdrant.NewVectorsMap(vectors),
			Payload: qdrant.NewValueMap(p.Payload),
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("vectorstore: upsert %d points into %q: %w", len(points), collection, err)
	}
	return nil
}

func (q *Qdrant) DeletePoints(ctx context.Context, collection string, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDNum(id))
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("vectorstore: delete %d points from %q: %w", len(ids), collection, err)
	}
	return nil
}

func buildQdrantFilter(filter Filter) *qdrant.Filter {
	if len(filter.Must) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(filter.Must))
	for _, cond := range filter.Must {
		switch v := cond.Match.(type) {
		case string:
			conditions = append(conditions, qdrant.NewMatch(cond.Key, v))
		case bool:
			conditions = append(conditions, qdrant.NewMatchBool(cond.Key, v))
		default:
			conditions = append(conditions, qdrant.NewMatch(cond.Key, fmt.Sprint(v)))
		}
	}
	return &qdrant.Filter{Must: conditions}
}

func (q *Qdrant) Scroll(ctx context.Context, collection string, filter Filter, withPayload, withVectors bool, limit uint32, offset uint64) ([]Record, uint64, bool, error) {
	if limit == 0 {
		limit = 1000
	}

	req := &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter:         buildQdrantFilter(filter),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(withPayload),
		WithVectors:    qdrant.NewWithVectors(withVectors),
	}
	if offset != 0 {
		req.Offset = qdrant.NewIDNum(offset)
	}

	points, err := q.client.Scroll(ctx, req)
	if err != nil {
		return nil, 0, false, fmt.Errorf("vectorstore: scroll %q: %w", collection, err)
	}

	records := make([]Record, 0, len(points))
	var maxID uint64
	for _, p := range points {
		id := p.GetId().GetNum()
		if id > maxID {
			maxID = id
		}
		rec := Record{ID: id}
		if withPayload {
			rec.Payload = valueMapToGo(p.GetPayload())
		}
		if withVectors {
			if dense := p.GetVectors().GetVectors().GetVectors()[DenseVectorName]; dense != nil {
				rec.Dense = dense.GetData()
			}
		}
		records = append(records, rec)
	}

	hasMore := uint32(len(records)) == limit
	var next uint64
	if hasMore {
		next = maxID + 1
	}
	return records, next, hasMore, nil
}

func (q *Qdrant) Count(ctx context.Context, collection string, filter Filter) (uint64, error) {
	resp, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Filter:         buildQdrantFilter(filter),
	})
	if err != nil {
		return 0, fmt.Errorf("vectorstore: count %q: %w", collection, err)
	}
	return resp, nil
}

func (q *Qdrant) CheckContentExists(ctx context.Context, collection string, contentHash string) (bool, error) {
	n, err := q.Count(ctx, collection, MatchContentHash(contentHash))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (q *Qdrant) FindEntitiesForFileByType(ctx context.Context, collection string, filePath string, chunkTypes []string) (map[string][]Record, error) {
	out := make(map[string][]Record, len(chunkTypes))
	for _, ct := range chunkTypes {
		filter := Filter{Must: []Condition{
			{Key: "metadata.file_path", Match: filePath},
			{Key: "chunk_type", Match: ct},
		}}
		var all []Record
		offset := uint64(0)
		for {
			recs, next, more, err := q.Scroll(ctx, collection, filter, true, false, 1000, offset)
			if err != nil {
				return nil, err
			}
			all = append(all, recs...)
			if !more {
				break
			}
			offset = next
		}
		out[ct] = all
	}
	return out, nil
}

// valueMapToGo unwraps qdrant's protobuf Value wrapper map back into
// plain Go values, since Record.Payload is a map[string]any.
func valueMapToGo(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = qdrantValueToGo(v)
	}
	return out
}

func qdrantValueToGo(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_StructValue:
		return valueMapToGo(kind.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		items := kind.ListValue.GetValues()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = qdrantValueToGo(item)
		}
		return out
	default:
		return nil
	}
}
