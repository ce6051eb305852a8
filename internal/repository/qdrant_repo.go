package repository

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const (
	defaultVectorDimension = 1024
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

// QdrantRepository handles vector operations with Qdrant
type QdrantRepository struct {
	conn            *grpc.ClientConn
	pointsClient    pb.PointsClient
	collectClient   pb.CollectionsClient
	collectionName  string
	vectorDimension int
}

// NewQdrantRepository creates a new QdrantRepository
// Supports both local Qdrant (insecure) and Qdrant Cloud (TLS + API Key)
func NewQdrantRepository(cfg *QdrantConnectionConfig) (*QdrantRepository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	vectorDimension := cfg.VectorDimension
	if vectorDimension <= 0 {
		vectorDimension = defaultVectorDimension
	}

	// Build gRPC dial options
	var opts []grpc.DialOption

	// TLS is enabled if: APIKey is set OR UseTLS is explicitly true
	useTLS := cfg.UseTLS || cfg.APIKey != ""

	if useTLS {
		// TLS 1.3 minimum for Qdrant Cloud
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
		creds := credentials.NewTLS(tlsConfig)
		opts = append(opts, grpc.WithTransportCredentials(creds))

		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		// Local mode: no TLS, no authentication
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &QdrantRepository{
		conn:            conn,
		pointsClient:    pb.NewPointsClient(conn),
		collectClient:   pb.NewCollectionsClient(conn),
		collectionName:  cfg.Collection,
		vectorDimension: vectorDimension,
	}, nil
}

// Close closes the gRPC connection
func (r *QdrantRepository) Close() error {
	return r.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist
func (r *QdrantRepository) EnsureCollection(ctx context.Context) error {
	// Check if collection exists
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collectionName,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok {
			if size != uint64(r.vectorDimension) {
				return fmt.Errorf("collection %s has vector size %d, expected %d", r.collectionName, size, r.vectorDimension)
			}
		}
		return nil // Collection exists
	}

	// Create collection
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
		HnswConfig: &pb.HnswConfigDiff{
			M:                 optionalUint64(16),
			EfConstruct:       optionalUint64(128),
			FullScanThreshold: optionalUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

func optionalUint64(v uint64) *uint64 {
	return &v
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	if info == nil {
		return 0, false
	}

	config := info.GetConfig()
	if config == nil {
		return 0, false
	}

	params := config.GetParams()
	if params == nil {
		return 0, false
	}

	vectors := params.GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}

	if single := vectors.GetParams(); single != nil {
		if size := single.GetSize(); size > 0 {
			return size, true
		}
	}

	if paramsMap := vectors.GetParamsMap(); paramsMap != nil {
		for _, vectorParams := range paramsMap.GetMap() {
			if vectorParams == nil {
				continue
			}
			if size := vectorParams.GetSize(); size > 0 {
				return size, true
			}
		}
	}

	return 0, false
}

// ChunkPayload represents the payload stored with each chunk vector
type ChunkPayload struct {
	DocumentID      string `json:"document_id"`
	PageNumber      int    `json:"page_number"`
	ChunkIndex      int    `json:"chunk_index"`
	ChunkType       string `json:"chunk_type"`
	Text            string `json:"text"`
	Title           string `json:"title"`
	IsDocumentLevel bool   `json:"is_document_level"`
}

// VectorPoint bundles a point ID, its vector and the payload for batch upserts
type VectorPoint struct {
	ID      string
	Vector  []float32
	Payload ChunkPayload
}

// UpsertBatch inserts or updates a batch of points in a single call.
// All points land atomically from the caller's perspective: a failed call
// leaves the indexer free to run compensating cleanup.
func (r *QdrantRepository) UpsertBatch(ctx context.Context, points []VectorPoint) error {
	if len(points) == 0 {
		return nil
	}

	pbPoints := make([]*pb.PointStruct, 0, len(points))
	for _, p := range points {
		uid, err := uuid.Parse(p.ID)
		if err != nil {
			return fmt.Errorf("invalid point ID %q: %w", p.ID, err)
		}
		pbPoints = append(pbPoints, &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{
					Uuid: uid.String(),
				},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{
						Data: p.Vector,
					},
				},
			},
			Payload: map[string]*pb.Value{
				"document_id":       {Kind: &pb.Value_StringValue{StringValue: p.Payload.DocumentID}},
				"page_number":       {Kind: &pb.Value_IntegerValue{IntegerValue: int64(p.Payload.PageNumber)}},
				"chunk_index":       {Kind: &pb.Value_IntegerValue{IntegerValue: int64(p.Payload.ChunkIndex)}},
				"chunk_type":        {Kind: &pb.Value_StringValue{StringValue: p.Payload.ChunkType}},
				"text":              {Kind: &pb.Value_StringValue{StringValue: p.Payload.Text}},
				"title":             {Kind: &pb.Value_StringValue{StringValue: p.Payload.Title}},
				"is_document_level": {Kind: &pb.Value_BoolValue{BoolValue: p.Payload.IsDocumentLevel}},
			},
		})
	}

	_, err := r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collectionName,
		Points:         pbPoints,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	return nil
}

// RetrieveExisting returns the subset of ids that exist in the collection.
// Used by the indexer's cleanup path to delete only what was actually written.
func (r *QdrantRepository) RetrieveExisting(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pointIDs, err := toPointIDs(ids)
	if err != nil {
		return nil, err
	}

	resp, err := r.pointsClient.Get(ctx, &pb.GetPoints{
		CollectionName: r.collectionName,
		Ids:            pointIDs,
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: false},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve points: %w", err)
	}

	existing := make([]string, 0, len(resp.Result))
	for _, p := range resp.Result {
		existing = append(existing, p.GetId().GetUuid())
	}
	return existing, nil
}

// DeleteByIDs deletes a batch of points by ID
func (r *QdrantRepository) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs, err := toPointIDs(ids)
	if err != nil {
		return err
	}

	_, err = r.pointsClient.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collectionName,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: pointIDs,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}

	return nil
}

// DeleteByDocument deletes all points belonging to a document. When
// documentLevel is non-nil, only points matching that is_document_level
// value are removed, which lets page/document embeddings and chunk
// embeddings be replaced independently.
func (r *QdrantRepository) DeleteByDocument(ctx context.Context, docID string, documentLevel *bool) error {
	conditions := []*pb.Condition{
		{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: "document_id",
					Match: &pb.Match{
						MatchValue: &pb.Match_Keyword{Keyword: docID},
					},
				},
			},
		},
	}
	if documentLevel != nil {
		conditions = append(conditions, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: "is_document_level",
					Match: &pb.Match{
						MatchValue: &pb.Match_Boolean{Boolean: *documentLevel},
					},
				},
			},
		})
	}

	_, err := r.pointsClient.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collectionName,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{Must: conditions},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete document points: %w", err)
	}

	return nil
}

func toPointIDs(ids []string) ([]*pb.PointId, error) {
	pointIDs := make([]*pb.PointId, 0, len(ids))
	for _, id := range ids {
		uid, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid point ID %q: %w", id, err)
		}
		pointIDs = append(pointIDs, &pb.PointId{
			PointIdOptions: &pb.PointId_Uuid{Uuid: uid.String()},
		})
	}
	return pointIDs, nil
}

// SearchResult represents a search result from Qdrant
type SearchResult struct {
	ID      string
	Score   float32
	Payload *ChunkPayload
}

// SearchFilters defines optional filters for vector search
type SearchFilters struct {
	DocumentID    *string
	PageNumber    *int
	DocumentLevel *bool
	ChunkType     *string
	// ChunkTypes matches any of the listed types. Ignored when ChunkType
	// is set.
	ChunkTypes []string
}

// Search performs a vector similarity search
func (r *QdrantRepository) Search(ctx context.Context, vector []float32, topK int, filters *SearchFilters) ([]SearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: r.collectionName,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	}

	if filters != nil {
		req.Filter = buildFilter(filters)
	}

	resp, err := r.pointsClient.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]SearchResult, len(resp.Result))
	for i, scored := range resp.Result {
		results[i] = SearchResult{
			ID:      scored.Id.GetUuid(),
			Score:   scored.Score,
			Payload: parsePayload(scored.Payload),
		}
	}

	return results, nil
}

func buildFilter(filters *SearchFilters) *pb.Filter {
	var conditions []*pb.Condition

	if filters.DocumentID != nil && *filters.DocumentID != "" {
		conditions = append(conditions, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: "document_id",
					Match: &pb.Match{
						MatchValue: &pb.Match_Keyword{Keyword: *filters.DocumentID},
					},
				},
			},
		})
	}

	if filters.PageNumber != nil {
		conditions = append(conditions, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: "page_number",
					Match: &pb.Match{
						MatchValue: &pb.Match_Integer{Integer: int64(*filters.PageNumber)},
					},
				},
			},
		})
	}

	if filters.DocumentLevel != nil {
		conditions = append(conditions, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: "is_document_level",
					Match: &pb.Match{
						MatchValue: &pb.Match_Boolean{Boolean: *filters.DocumentLevel},
					},
				},
			},
		})
	}

	switch {
	case filters.ChunkType != nil && *filters.ChunkType != "":
		conditions = append(conditions, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: "chunk_type",
					Match: &pb.Match{
						MatchValue: &pb.Match_Keyword{Keyword: *filters.ChunkType},
					},
				},
			},
		})
	case len(filters.ChunkTypes) > 0:
		conditions = append(conditions, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: "chunk_type",
					Match: &pb.Match{
						MatchValue: &pb.Match_Keywords{
							Keywords: &pb.RepeatedStrings{Strings: filters.ChunkTypes},
						},
					},
				},
			},
		})
	}

	if len(conditions) == 0 {
		return nil
	}

	return &pb.Filter{
		Must: conditions,
	}
}

func parsePayload(payload map[string]*pb.Value) *ChunkPayload {
	if payload == nil {
		return nil
	}

	p := &ChunkPayload{}
	if v, ok := payload["document_id"]; ok {
		p.DocumentID = v.GetStringValue()
	}
	if v, ok := payload["page_number"]; ok {
		p.PageNumber = int(v.GetIntegerValue())
	}
	if v, ok := payload["chunk_index"]; ok {
		p.ChunkIndex = int(v.GetIntegerValue())
	}
	if v, ok := payload["chunk_type"]; ok {
		p.ChunkType = v.GetStringValue()
	}
	if v, ok := payload["text"]; ok {
		p.Text = v.GetStringValue()
	}
	if v, ok := payload["title"]; ok {
		p.Title = v.GetStringValue()
	}
	if v, ok := payload["is_document_level"]; ok {
		p.IsDocumentLevel = v.GetBoolValue()
	}

	return p
}
