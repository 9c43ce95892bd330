package repository

import (
	"context"
	"crypto/tls"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/timmy/vismatch/internal/domain"
)

const (
	qdrantScrollPage = 256
	qdrantUpsertSize = 64
)

// QdrantConnectionConfig holds configuration for Qdrant connection
type QdrantConnectionConfig struct {
	Host            string
	Port            int
	Collection      string
	APIKey          string // Qdrant Cloud API Key (enables TLS automatically)
	UseTLS          bool   // Explicitly enable TLS without API Key
	VectorDimension int
}

// apiKeyInterceptor creates a unary interceptor that adds API key to metadata
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// QdrantEmbeddingStore keeps one point per catalog item, keyed by the numeric item id.
// Qdrant has no null vectors, so an absent marker deletes the point and the item
// is computed on demand again.
type QdrantEmbeddingStore struct {
	conn            *grpc.ClientConn
	pointsClient    pb.PointsClient
	collectClient   pb.CollectionsClient
	collectionName  string
	vectorDimension int
}

// NewQdrantEmbeddingStore connects to Qdrant.
// Supports both local Qdrant (insecure) and Qdrant Cloud (TLS + API Key)
func NewQdrantEmbeddingStore(cfg *QdrantConnectionConfig) (*QdrantEmbeddingStore, error) {
	if cfg.VectorDimension <= 0 {
		return nil, fmt.Errorf("qdrant: vector dimension must be positive")
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var opts []grpc.DialOption
	if cfg.UseTLS || cfg.APIKey != "" {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &QdrantEmbeddingStore{
		conn:            conn,
		pointsClient:    pb.NewPointsClient(conn),
		collectClient:   pb.NewCollectionsClient(conn),
		collectionName:  cfg.Collection,
		vectorDimension: cfg.VectorDimension,
	}, nil
}

// Close closes the gRPC connection
func (r *QdrantEmbeddingStore) Close() error {
	return r.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist and checks its vector size.
func (r *QdrantEmbeddingStore) EnsureCollection(ctx context.Context) error {
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collectionName,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok && size != uint64(r.vectorDimension) {
			return fmt.Errorf("collection %s has vector size %d, expected %d", r.collectionName, size, r.vectorDimension)
		}
		return nil
	}

	_, err = r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(r.vectorDimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	vectors := info.GetConfig().GetParams().GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}
	if size := vectors.GetParams().GetSize(); size > 0 {
		return size, true
	}
	for _, params := range vectors.GetParamsMap().GetMap() {
		if size := params.GetSize(); size > 0 {
			return size, true
		}
	}
	return 0, false
}

func pointID(id int64) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: uint64(id)}}
}

// Load scrolls every point of the collection.
func (r *QdrantEmbeddingStore) Load(ctx context.Context) (domain.EmbeddingIndex, error) {
	idx := domain.EmbeddingIndex{}
	limit := uint32(qdrantScrollPage)
	var offset *pb.PointId

	for {
		resp, err := r.pointsClient.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: r.collectionName,
			Offset:         offset,
			Limit:          &limit,
			WithVectors: &pb.WithVectorsSelector{
				SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll collection %s: %w", r.collectionName, err)
		}
		for _, point := range resp.GetResult() {
			num, ok := point.GetId().GetPointIdOptions().(*pb.PointId_Num)
			if !ok {
				continue
			}
			idx[int64(num.Num)] = point.GetVectors().GetVector().GetData()
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			return idx, nil
		}
	}
}

// Put upserts the item's point, or deletes it when vec is nil.
func (r *QdrantEmbeddingStore) Put(ctx context.Context, id int64, vec []float32) error {
	if len(vec) == 0 {
		return r.delete(ctx, []*pb.PointId{pointID(id)})
	}
	return r.upsert(ctx, []*pb.PointStruct{newPoint(id, vec)})
}

// Save upserts every present vector and deletes the points of absent markers.
func (r *QdrantEmbeddingStore) Save(ctx context.Context, idx domain.EmbeddingIndex) error {
	var batch []*pb.PointStruct
	var absent []*pb.PointId
	for id, vec := range idx {
		if len(vec) == 0 {
			absent = append(absent, pointID(id))
			continue
		}
		batch = append(batch, newPoint(id, vec))
		if len(batch) == qdrantUpsertSize {
			if err := r.upsert(ctx, batch); err != nil {
				return err
			}
			batch = nil
		}
	}
	if len(batch) > 0 {
		if err := r.upsert(ctx, batch); err != nil {
			return err
		}
	}
	if len(absent) > 0 {
		return r.delete(ctx, absent)
	}
	return nil
}

func newPoint(id int64, vec []float32) *pb.PointStruct {
	return &pb.PointStruct{
		Id: pointID(id),
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{Data: vec},
			},
		},
		Payload: map[string]*pb.Value{
			"item_id": {Kind: &pb.Value_IntegerValue{IntegerValue: id}},
		},
	}
}

func (r *QdrantEmbeddingStore) upsert(ctx context.Context, points []*pb.PointStruct) error {
	wait := true
	_, err := r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collectionName,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d points: %w", len(points), err)
	}
	return nil
}

func (r *QdrantEmbeddingStore) delete(ctx context.Context, ids []*pb.PointId) error {
	wait := true
	_, err := r.pointsClient.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collectionName,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: ids},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete %d points: %w", len(ids), err)
	}
	return nil
}

var _ EmbeddingStore = (*QdrantEmbeddingStore)(nil)
