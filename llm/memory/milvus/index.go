package milvus

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// row is one memory record as stored in the collection.
type row struct {
	ID        string
	SessionID string
	Content   string
	Topics    string
	CreatedAt int64
	UpdatedAt int64
	Embedding []float32
	Score     float32
}

// vectorIndex is the slice of the collection API the store relies on.
type vectorIndex interface {
	Ensure(ctx context.Context, recreate bool) error
	Upsert(ctx context.Context, rows []row) error
	Query(ctx context.Context, expr string) ([]row, error)
	Search(ctx context.Context, expr string, vector []float32, topK int) ([]row, error)
	Delete(ctx context.Context, expr string) error
	Close() error
}

var outputFields = []string{"id", "session_id", "content", "topics", "created_at", "updated_at"}

// milvusIndex keeps memory records in a Milvus collection.
type milvusIndex struct {
	client         client.Client
	collectionName string
	embeddingDim   int
}

func newMilvusIndex(ctx context.Context, address, collection string, dim int) (*milvusIndex, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	c, err := client.NewClient(ctx, client.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Milvus: %w", err)
	}
	return &milvusIndex{client: c, collectionName: collection, embeddingDim: dim}, nil
}

// Ensure creates, indexes and loads the collection.
func (m *milvusIndex) Ensure(ctx context.Context, recreate bool) error {
	exists, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if exists && recreate {
		if err := m.client.DropCollection(ctx, m.collectionName); err != nil {
			return fmt.Errorf("failed to drop existing collection: %w", err)
		}
		exists = false
	}

	if !exists {
		if err := m.client.CreateCollection(ctx, m.buildSchema(), entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		index, err := entity.NewIndexFlat(entity.COSINE)
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		if err := m.client.CreateIndex(ctx, m.collectionName, "embedding", index, false); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	if err := m.client.LoadCollection(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

func (m *milvusIndex) buildSchema() *entity.Schema {
	varchar := func(name string, max int, desc string) *entity.Field {
		return &entity.Field{
			Name:        name,
			DataType:    entity.FieldTypeVarChar,
			TypeParams:  map[string]string{"max_length": strconv.Itoa(max)},
			Description: desc,
		}
	}
	id := varchar("id", 64, "Memory record id")
	id.PrimaryKey = true

	return &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Conversation memory records",
		Fields: []*entity.Field{
			id,
			varchar("session_id", 128, "Owning session"),
			varchar("content", 65535, "Memory text"),
			varchar("topics", 4096, "JSON encoded topics"),
			{Name: "created_at", DataType: entity.FieldTypeInt64, Description: "Unix nanoseconds"},
			{Name: "updated_at", DataType: entity.FieldTypeInt64, Description: "Unix nanoseconds"},
			{
				Name:        "embedding",
				DataType:    entity.FieldTypeFloatVector,
				TypeParams:  map[string]string{"dim": strconv.Itoa(m.embeddingDim)},
				Description: "Content embedding",
			},
		},
	}
}

func (m *milvusIndex) Upsert(ctx context.Context, rows []row) error {
	if len(rows) == 0 {
		return nil
	}
	ids := make([]string, len(rows))
	sessions := make([]string, len(rows))
	contents := make([]string, len(rows))
	topics := make([]string, len(rows))
	created := make([]int64, len(rows))
	updated := make([]int64, len(rows))
	vectors := make([][]float32, len(rows))
	for i, r := range rows {
		ids[i], sessions[i], contents[i], topics[i] = r.ID, r.SessionID, r.Content, r.Topics
		created[i], updated[i] = r.CreatedAt, r.UpdatedAt
		vectors[i] = r.Embedding
	}

	_, err := m.client.Upsert(ctx, m.collectionName, "",
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnVarChar("session_id", sessions),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnVarChar("topics", topics),
		entity.NewColumnInt64("created_at", created),
		entity.NewColumnInt64("updated_at", updated),
		entity.NewColumnFloatVector("embedding", m.embeddingDim, vectors),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert memories: %w", err)
	}
	if err := m.client.Flush(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush collection: %w", err)
	}
	return nil
}

func (m *milvusIndex) Query(ctx context.Context, expr string) ([]row, error) {
	rs, err := m.client.Query(ctx, m.collectionName, nil, expr, outputFields,
		client.WithSearchQueryConsistencyLevel(entity.ClStrong))
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	return readRows(rs, nil)
}

func (m *milvusIndex) Search(ctx context.Context, expr string, vector []float32, topK int) ([]row, error) {
	sp, err := entity.NewIndexFlatSearchParam()
	if err != nil {
		return nil, err
	}
	results, err := m.client.Search(ctx, m.collectionName, nil, expr, outputFields,
		[]entity.Vector{entity.FloatVector(vector)}, "embedding", entity.COSINE, topK, sp,
		client.WithSearchQueryConsistencyLevel(entity.ClStrong))
	if err != nil {
		return nil, fmt.Errorf("failed to search memories: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	return readRows(results[0].Fields, results[0].Scores)
}

func (m *milvusIndex) Delete(ctx context.Context, expr string) error {
	if err := m.client.Delete(ctx, m.collectionName, "", expr); err != nil {
		return fmt.Errorf("failed to delete memories: %w", err)
	}
	return nil
}

func (m *milvusIndex) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

func readRows(rs client.ResultSet, scores []float32) ([]row, error) {
	idCol := rs.GetColumn("id")
	if idCol == nil {
		return nil, nil
	}
	get := func(name string, i int) (string, error) {
		col := rs.GetColumn(name)
		if col == nil {
			return "", fmt.Errorf("column %s missing from result", name)
		}
		return col.GetAsString(i)
	}
	getInt := func(name string, i int) (int64, error) {
		col := rs.GetColumn(name)
		if col == nil {
			return 0, fmt.Errorf("column %s missing from result", name)
		}
		return col.GetAsInt64(i)
	}

	rows := make([]row, idCol.Len())
	for i := range rows {
		var err error
		r := &rows[i]
		if r.ID, err = get("id", i); err != nil {
			return nil, err
		}
		if r.SessionID, err = get("session_id", i); err != nil {
			return nil, err
		}
		if r.Content, err = get("content", i); err != nil {
			return nil, err
		}
		if r.Topics, err = get("topics", i); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = getInt("created_at", i); err != nil {
			return nil, err
		}
		if r.UpdatedAt, err = getInt("updated_at", i); err != nil {
			return nil, err
		}
		if i < len(scores) {
			r.Score = scores[i]
		}
	}
	return rows, nil
}
