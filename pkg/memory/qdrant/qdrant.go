// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

// Package qdrant backs the long-term memory tier with a remote Qdrant
// collection over gRPC. Unlike the local flat-index store, Qdrant deletes
// vectors natively, so compaction is a no-op here.
package qdrant

import (
	"context"
	"fmt"
	"strings"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/google/uuid"
	"github.com/metis-ai/metis/pkg/errors"
	"github.com/metis-ai/metis/pkg/memory"
)

const metadataPrefix = "meta_"

// Config configures the remote store.
type Config struct {
	// Addr is the Qdrant gRPC endpoint, host:port.
	Addr string

	// Collection is the collection holding memory records.
	Collection string

	// Dimension is the embedding width (default memory.DefaultDimension).
	Dimension int

	// Embedder converts content to vectors. Nil stores zero vectors.
	Embedder memory.Embedder
}

// Store implements memory.Backend over a Qdrant collection.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dim         int
	embedder    memory.Embedder
}

// New connects to Qdrant. Call EnsureCollection before first use.
func New(cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New(errors.CodeInvalidInput, "qdrant address is required", nil)
	}
	if cfg.Collection == "" {
		cfg.Collection = "metis_memory"
	}
	if cfg.Dimension <= 0 {
		if cfg.Embedder != nil {
			cfg.Dimension = cfg.Embedder.Dimension()
		} else {
			cfg.Dimension = memory.DefaultDimension
		}
	}

	conn, err := grpc.Dial(cfg.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, errors.New(errors.CodeUnavailable, "connect to qdrant", err)
	}

	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  cfg.Collection,
		dim:         cfg.Dimension,
		embedder:    cfg.Embedder,
	}, nil
}

// EnsureCollection creates the collection if it does not exist yet.
func (s *Store) EnsureCollection(ctx context.Context) error {
	_, err := s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(s.dim),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return errors.New(errors.CodeMemoryBackend, "create qdrant collection", err)
	}
	return nil
}

// Add implements memory.Backend.
func (s *Store) Add(ctx context.Context, content string, metadata map[string]any) (string, error) {
	vec, err := s.embed(ctx, content)
	if err != nil {
		return "", errors.New(errors.CodeMemoryBackend, "embed content", err)
	}

	id := uuid.NewString()
	payload := map[string]*pb.Value{
		"content":   {Kind: &pb.Value_StringValue{StringValue: content}},
		"timestamp": {Kind: &pb.Value_StringValue{StringValue: time.Now().UTC().Format(time.RFC3339Nano)}},
	}
	for k, v := range metadata {
		if value := toValue(v); value != nil {
			payload[metadataPrefix+k] = value
		}
	}

	_, err = s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Points: []*pb.PointStruct{{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: id},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vec},
				},
			},
			Payload: payload,
		}},
	})
	if err != nil {
		return "", errors.New(errors.CodeMemoryBackend, "upsert qdrant point", err)
	}
	return id, nil
}

// Search implements memory.Backend.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]memory.MemoryRecord, error) {
	if topK <= 0 {
		return nil, nil
	}
	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, errors.New(errors.CodeMemoryBackend, "embed query", err)
	}

	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vec,
		Limit:          uint64(topK),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, errors.New(errors.CodeMemoryBackend, "search qdrant points", err)
	}

	records := make([]memory.MemoryRecord, 0, len(resp.Result))
	for _, r := range resp.Result {
		record := memory.MemoryRecord{
			ID:    pointID(r.Id),
			Score: r.Score,
		}
		metadata := make(map[string]any)
		for k, v := range r.Payload {
			value := fromValue(v)
			switch {
			case k == "content":
				if text, ok := value.(string); ok {
					record.Content = text
				}
			case k == "timestamp":
				if raw, ok := value.(string); ok {
					if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
						record.Timestamp = t
					}
				}
			case strings.HasPrefix(k, metadataPrefix):
				metadata[strings.TrimPrefix(k, metadataPrefix)] = value
			}
		}
		if len(metadata) > 0 {
			record.Metadata = metadata
		}
		records = append(records, record)
	}
	return records, nil
}

// Delete removes the given points. Qdrant drops the vectors natively, so no
// tombstones remain.
func (s *Store) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
	}

	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return errors.New(errors.CodeMemoryBackend, "delete qdrant points", err)
	}
	return nil
}

// Clear implements memory.Backend by dropping and recreating the collection.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: s.collection})
	if err != nil && !strings.Contains(err.Error(), "doesn't exist") {
		return errors.New(errors.CodeMemoryBackend, "drop qdrant collection", err)
	}
	return s.EnsureCollection(ctx)
}

// Count implements memory.Backend.
func (s *Store) Count(ctx context.Context) (int, error) {
	exact := true
	resp, err := s.points.Count(ctx, &pb.CountPoints{
		CollectionName: s.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, errors.New(errors.CodeMemoryBackend, "count qdrant points", err)
	}
	return int(resp.Result.Count), nil
}

// Compact is a no-op: Qdrant removes deleted vectors itself.
func (s *Store) Compact(_ context.Context) error { return nil }

// Close releases the gRPC connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return make([]float32, s.dim), nil
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return memory.FitDimension(vec, s.dim), nil
}

// toValue converts a metadata value to a qdrant payload value. Unsupported
// types are dropped.
func toValue(v any) *pb.Value {
	switch val := v.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: val}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: val}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: val}}
	default:
		return nil
	}
}

func fromValue(v *pb.Value) any {
	if v == nil || v.GetKind() == nil {
		return nil
	}
	switch kind := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_BoolValue:
		return kind.BoolValue
	case *pb.Value_IntegerValue:
		return kind.IntegerValue
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	default:
		return nil
	}
}

func pointID(id *pb.PointId) string {
	if id == nil {
		return ""
	}
	if id.GetUuid() != "" {
		return id.GetUuid()
	}
	return fmt.Sprintf("%d", id.GetNum())
}
