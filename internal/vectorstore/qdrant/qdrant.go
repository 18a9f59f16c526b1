package qdrant

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

const (
	payloadText = "text"
	pageSize    = 256
)

// CollectionsAPI is the subset of pb.CollectionsClient used by the store.
type CollectionsAPI interface {
	Get(ctx context.Context, in *pb.GetCollectionInfoRequest, opts ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error)
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	UpdateAliases(ctx context.Context, in *pb.ChangeAliases, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	ListAliases(ctx context.Context, in *pb.ListAliasesRequest, opts ...grpc.CallOption) (*pb.ListAliasesResponse, error)
}

// PointsAPI is the subset of pb.PointsClient used by the store.
type PointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// Config contains connection details for a Qdrant gRPC endpoint.
type Config struct {
	Addr   string // gRPC host:port, usually :6334
	APIKey string
	Name   string // alias that always points at the current generation
}

// Store keeps each bundle generation in its own collection "<name>-<generation>"
// and publishes the current one through the alias "<name>".
type Store struct {
	mu          sync.RWMutex
	conn        *grpc.ClientConn
	collections CollectionsAPI
	points      PointsAPI
	name        string
	logger      *slog.Logger
}

// New dials Addr and returns a Store whose alias is Name.
// The api key, when set, is sent as metadata on every call.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if cfg.APIKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
	}
	conn, err := grpc.NewClient(cfg.Addr, opts...)
	if err != nil {
		return nil, domain.ConfigError("qdrant.new", fmt.Errorf("dial %s: %w", cfg.Addr, err))
	}
	s := NewWithClients(pb.NewCollectionsClient(conn), pb.NewPointsClient(conn), cfg.Name, logger)
	s.conn = conn
	return s, nil
}

// NewWithClients builds a store on existing clients.
func NewWithClients(collections CollectionsAPI, points PointsAPI, name string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{collections: collections, points: points, name: name, logger: logger}
}

func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", key)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func (s *Store) Build(ctx context.Context, segments []string, matrix domain.Matrix) (vectorstore.BuildResult, error) {
	if err := vectorstore.ValidateBuild(segments, matrix); err != nil {
		return vectorstore.BuildResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, err := s.resolveAlias(ctx)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return vectorstore.BuildResult{}, err
	}

	gen := uuid.NewString()
	collection := s.name + "-" + gen
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(matrix.Dimension()),
					Distance: pb.Distance_Euclid,
				},
			},
		},
	})
	if err != nil {
		return vectorstore.BuildResult{}, domain.IOError("qdrant.build", fmt.Errorf("create collection %s: %w", collection, err))
	}

	if err := s.upsert(ctx, collection, segments, matrix); err != nil {
		s.dropCollection(ctx, collection)
		return vectorstore.BuildResult{}, err
	}

	actions := make([]*pb.AliasOperations, 0, 2)
	if previous != "" {
		actions = append(actions, &pb.AliasOperations{
			Action: &pb.AliasOperations_DeleteAlias{DeleteAlias: &pb.DeleteAlias{AliasName: s.name}},
		})
	}
	actions = append(actions, &pb.AliasOperations{
		Action: &pb.AliasOperations_CreateAlias{CreateAlias: &pb.CreateAlias{CollectionName: collection, AliasName: s.name}},
	})
	if _, err := s.collections.UpdateAliases(ctx, &pb.ChangeAliases{Actions: actions}); err != nil {
		s.dropCollection(ctx, collection)
		return vectorstore.BuildResult{}, domain.IOError("qdrant.build", fmt.Errorf("switch alias %s: %w", s.name, err))
	}
	s.logger.Info("bundle swapped", "bundle", s.name, "collection", collection, "previous", previous, "count", len(segments))

	s.prune(ctx, collection, previous)

	return vectorstore.BuildResult{
		Generation:   gen,
		IndexPath:    "qdrant://" + collection,
		SegmentsPath: "qdrant://" + collection + "#" + payloadText,
		Count:        len(segments),
	}, nil
}

func (s *Store) upsert(ctx context.Context, collection string, segments []string, matrix domain.Matrix) error {
	wait := true
	for start := 0; start < len(segments); start += pageSize {
		end := min(start+pageSize, len(segments))
		points := make([]*pb.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, &pb.PointStruct{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: uint64(i)}},
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: matrix[i]}}},
				Payload: map[string]*pb.Value{
					payloadText: {Kind: &pb.Value_StringValue{StringValue: segments[i]}},
				},
			})
		}
		if _, err := s.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: collection,
			Wait:           &wait,
			Points:         points,
		}); err != nil {
			return domain.IOError("qdrant.build", fmt.Errorf("upsert %d-%d: %w", start, end, err))
		}
	}
	return nil
}

// Load resolves the alias once; the returned bundle stays bound to that collection
// even if a later Build moves the alias.
func (s *Store) Load(ctx context.Context) (*vectorstore.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	collection, err := s.resolveAlias(ctx)
	if err != nil {
		return nil, err
	}

	info, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: collection})
	if err != nil {
		return nil, domain.IOError("qdrant.load", fmt.Errorf("collection info %s: %w", collection, err))
	}
	dim := int(info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())

	exact := true
	count, err := s.points.Count(ctx, &pb.CountPoints{CollectionName: collection, Exact: &exact})
	if err != nil {
		return nil, domain.IOError("qdrant.load", fmt.Errorf("count %s: %w", collection, err))
	}
	n := int(count.GetResult().GetCount())

	segments, err := s.scrollSegments(ctx, collection, n)
	if err != nil {
		return nil, err
	}
	return &vectorstore.Bundle{
		Name:       s.name,
		Generation: strings.TrimPrefix(collection, s.name+"-"),
		Index:      &remoteIndex{points: s.points, collection: collection, dim: dim, count: n},
		Segments:   segments,
	}, nil
}

func (s *Store) scrollSegments(ctx context.Context, collection string, n int) ([]string, error) {
	segments := make([]string, n)
	seen := make([]bool, n)
	limit := uint32(pageSize)
	var offset *pb.PointId
	for {
		resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: collection,
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		})
		if err != nil {
			return nil, domain.IOError("qdrant.load", fmt.Errorf("scroll %s: %w", collection, err))
		}
		for _, p := range resp.GetResult() {
			id := int(p.GetId().GetNum())
			if id < 0 || id >= n {
				return nil, domain.ValidationError("qdrant.load", fmt.Errorf("point id %d outside count %d", id, n))
			}
			segments[id] = p.GetPayload()[payloadText].GetStringValue()
			seen[id] = true
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			break
		}
	}
	for i, ok := range seen {
		if !ok {
			return nil, domain.ValidationError("qdrant.load", fmt.Errorf("missing point %d", i))
		}
	}
	return segments, nil
}

func (s *Store) resolveAlias(ctx context.Context) (string, error) {
	resp, err := s.collections.ListAliases(ctx, &pb.ListAliasesRequest{})
	if err != nil {
		return "", domain.IOError("qdrant.alias", err)
	}
	for _, a := range resp.GetAliases() {
		if a.GetAliasName() == s.name {
			return a.GetCollectionName(), nil
		}
	}
	return "", domain.NotFoundError("qdrant.alias", fmt.Errorf("alias %s", s.name))
}

// prune drops generation collections of this bundle other than keep.
func (s *Store) prune(ctx context.Context, keep ...string) {
	resp, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		s.logger.Warn("prune: list collections", "err", err)
		return
	}
	for _, c := range resp.GetCollections() {
		name := c.GetName()
		gen, ok := strings.CutPrefix(name, s.name+"-")
		if !ok || slices.Contains(keep, name) {
			continue
		}
		if _, err := uuid.Parse(gen); err != nil {
			continue
		}
		s.dropCollection(ctx, name)
	}
}

func (s *Store) dropCollection(ctx context.Context, name string) {
	if _, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name}); err != nil {
		s.logger.Warn("drop collection", "collection", name, "err", err)
	}
}

// remoteIndex searches one concrete collection exactly.
type remoteIndex struct {
	points     PointsAPI
	collection string
	dim        int
	count      int
}

func (r *remoteIndex) Len() int       { return r.count }
func (r *remoteIndex) Dimension() int { return r.dim }

func (r *remoteIndex) Search(ctx context.Context, query domain.Vector, k int) ([]vectorstore.Neighbor, error) {
	if k <= 0 || r.count == 0 {
		return nil, nil
	}
	if err := vectorstore.ValidateQuery(r.dim, query); err != nil {
		return nil, err
	}
	// One extra point shows whether the k-th distance is tied past the page.
	res, err := r.search(ctx, query, min(k+1, r.count), nil)
	if err != nil {
		return nil, err
	}
	if len(res) > k && res[k].GetScore() == res[k-1].GetScore() {
		threshold := res[k-1].GetScore()
		if res, err = r.search(ctx, query, r.count, &threshold); err != nil {
			return nil, err
		}
	}
	out := make([]vectorstore.Neighbor, 0, len(res))
	for _, p := range res {
		// Euclid scores are plain distances
		d := p.GetScore()
		out = append(out, vectorstore.Neighbor{Position: int(p.GetId().GetNum()), Distance: d * d})
	}
	slices.SortStableFunc(out, func(a, b vectorstore.Neighbor) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Position, b.Position)
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// search runs an exact query. With a threshold, every point at or below that
// distance is returned, up to limit.
func (r *remoteIndex) search(ctx context.Context, query domain.Vector, limit int, threshold *float32) ([]*pb.ScoredPoint, error) {
	exact := true
	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         query,
		Limit:          uint64(limit),
		ScoreThreshold: threshold,
		Params:         &pb.SearchParams{Exact: &exact},
	})
	if err != nil {
		return nil, domain.IOError("qdrant.search", err)
	}
	return resp.GetResult(), nil
}

var _ vectorstore.Store = (*Store)(nil)
