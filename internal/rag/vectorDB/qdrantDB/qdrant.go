package qdrantDB

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/akolanti/ProposalAPI/internal/config"
	"github.com/akolanti/ProposalAPI/internal/rag/vectorDB"
	"github.com/akolanti/ProposalAPI/pkg/logger_i"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const scrollPageSize = 256

var logger = logger_i.NewLogger("Qdrant")
var quadrantInstance *qdrant.Client
var once sync.Once

// keys are arbitrary strings but qdrant only accepts integer or UUID point ids
var pointNamespace = uuid.MustParse("6f1c1f0e-8d5e-4a5b-9a43-4f3b1c2d7e90")

type Options struct {
	Host      string
	Port      int
	UseTLS    bool
	Dimension uint64
}

type ClientHolder struct {
	QObj      *qdrant.Client
	dimension uint64
	ensured   sync.Map
}

// GetQuadrantClient returns the process-wide client, nil if it cannot be created.
func GetQuadrantClient(ctx context.Context, opts Options) *ClientHolder {
	once.Do(func() {
		res, err := qdrant.NewClient(&qdrant.Config{
			Host:     opts.Host,
			Port:     opts.Port,
			UseTLS:   opts.UseTLS,
			PoolSize: uint(config.QdrantPoolSize),
		})
		if err != nil {
			logger.Error("could not instantiate", "error", err)
			return
		}
		quadrantInstance = res
		go closeQdrant(ctx, quadrantInstance)
	})

	if quadrantInstance == nil {
		return nil
	}
	return &ClientHolder{QObj: quadrantInstance, dimension: opts.Dimension}
}

func closeQdrant(ctx context.Context, qi *qdrant.Client) {
	<-ctx.Done()
	logger.Info("Shutting down Qdrant")
	if err := qi.Close(); err != nil {
		logger.Error("could not close Qdrant", "error", err)
	}
	logger.Info("Closed Qdrant")
}

func PointID(key string) string {
	return uuid.NewSHA1(pointNamespace, []byte(key)).String()
}

func (db *ClientHolder) EnsureIndex(ctx context.Context, name string) error {
	if _, ok := db.ensured.Load(name); ok {
		return nil
	}
	if err := createCollection(ctx, db.QObj, name, db.dimension); err != nil {
		return err
	}
	db.ensured.Store(name, true)
	return nil
}

func (db *ClientHolder) Upsert(ctx context.Context, name, key string, vector []float32, payload map[string]string) error {
	fields := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		fields[k] = v
	}
	fields[vectorDB.PayloadKey] = key

	_, err := db.QObj.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(PointID(key)),
			Vectors: qdrant.NewVectors(vector...),
			Payload: qdrant.NewValueMap(fields),
		}},
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}
	return nil
}

func (db *ClientHolder) Query(ctx context.Context, name string, vector []float32, topK int, filter map[string]string) ([]vectorDB.Match, error) {
	loggr := logger.ForContext(ctx)
	result, err := db.QObj.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		Filter:         buildFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		loggr.Error("Error querying Qdrant", "collection", name, "error", err)
		return nil, err
	}

	matches := make([]vectorDB.Match, 0, len(result))
	for _, hit := range result {
		matches = append(matches, vectorDB.Match{
			Key:      hit.Payload[vectorDB.PayloadKey].GetStringValue(),
			Distance: 1 - float64(hit.Score),
		})
	}
	loggr.Debug("qdrant query", "collection", name, "matches", len(matches))
	return matches, nil
}

// ListKeys pages through the collection with the raw points client, which exposes
// the next page offset.
func (db *ClientHolder) ListKeys(ctx context.Context, name string, filter map[string]string) ([]string, error) {
	var keys []string
	var offset *qdrant.PointId
	for {
		resp, err := db.QObj.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: name,
			Filter:         buildFilter(filter),
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			if isNotFound(err) {
				return keys, nil
			}
			return nil, fmt.Errorf("qdrant scroll failed: %w", err)
		}
		for _, point := range resp.GetResult() {
			keys = append(keys, point.Payload[vectorDB.PayloadKey].GetStringValue())
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			return keys, nil
		}
	}
}

func (db *ClientHolder) DeleteKeys(ctx context.Context, name string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	ids := make([]*qdrant.PointId, len(keys))
	for i, key := range keys {
		ids[i] = qdrant.NewID(PointID(key))
	}
	_, err := db.QObj.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: name,
		Points:         qdrant.NewPointsSelector(ids...),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("qdrant delete failed: %w", err)
	}
	return nil
}

func buildFilter(filter map[string]string) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for field, value := range filter {
		conditions = append(conditions, qdrant.NewMatch(field, value))
	}
	return &qdrant.Filter{Must: conditions}
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func createCollection(ctx context.Context, client *qdrant.Client, collectionName string, dimension uint64) error {
	if collectionName == "" {
		return errors.New("empty collection name")
	}

	exists, err := client.CollectionExists(ctx, collectionName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	logger.Info("creating collection", "collection", collectionName, "dimension", dimension)
	return client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
}
