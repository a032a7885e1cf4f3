package weaviate

import (
	"context"
	"fmt"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate/entities/models"

	"lumen/ingest/internal/vector"
	"lumen/ingest/internal/worker"
)

// Store lands embedded chunks in Weaviate and removes them when a document
// goes away.
type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

// objectID derives the Weaviate object uuid from the chunk's vector id.
// Weaviate requires uuid object ids; hashing keeps them stable so a
// re-embedded chunk overwrites its previous version instead of piling up.
func objectID(vectorID string) strfmt.UUID {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(vectorID))
	return strfmt.UUID(id.String())
}

func (s *Store) AddBatch(ctx context.Context, chunks []worker.VectorChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	objects := make([]*models.Object, 0, len(chunks))
	for _, ch := range chunks {
		objects = append(objects, &models.Object{
			ID:    objectID(ch.VectorID),
			Class: vector.ClassName,
			Properties: map[string]interface{}{
				"content":    ch.Content,
				"documentId": ch.DocumentID,
				"userId":     ch.UserID,
				"vectorId":   ch.VectorID,
				"chunkIndex": ch.ChunkIndex,
			},
			Vector: ch.Vector,
		})
	}

	res, err := s.client.Batch().ObjectsBatcher().
		WithObjects(objects...).
		Do(ctx)
	if err != nil {
		return err
	}
	for _, obj := range res {
		if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
			return fmt.Errorf("batch object %s: %s", obj.ID, obj.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

func (s *Store) DeleteByDocument(ctx context.Context, documentID, userID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassName).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithOperator(filters.And).
			WithOperands([]*filters.WhereBuilder{
				filters.Where().
					WithPath([]string{"documentId"}).
					WithOperator(filters.Equal).
					WithValueString(documentID),
				filters.Where().
					WithPath([]string{"userId"}).
					WithOperator(filters.Equal).
					WithValueString(userID),
			})).
		Do(ctx)
	return err
}
