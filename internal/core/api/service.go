// Package api provides the gRPC resolution service.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/qualify/internal/ctxtoken"
	"github.com/solatis/qualify/internal/resolver"
	"github.com/solatis/qualify/internal/types"
)

/*
 * Resolver service over google.protobuf.Struct messages.
 *
 * Requests:
 *   {"resource": "greeting", "context": {"language": "fr"}}
 *   {"resource": "greeting", "token": "fr|CA"}
 * "context" and "token" are exclusive; neither means the empty context.
 *
 * Responses carry JSON values as Struct/Value trees:
 *   Resolve         {"resource", "candidate": {index, kind, score, priority,
 *                    isPartial, mergeMethod, value}}
 *   ResolveAll      {"resource", "candidates": [...]}
 *   ResolveComposed {"resource", "value"}
 *   ParseContext    {"context": {...}, "token": canonical token}
 *
 * The active resolver can be swapped while serving; each request uses the
 * resolver current at its start.
 */

// Recorder counts resolution outcomes. Optional.
type Recorder interface {
	RecordResolution(operation, result string)
}

// ResolverService implements ResolverServer.
type ResolverService struct {
	current  atomic.Pointer[resolver.Resolver]
	logger   *slog.Logger
	recorder Recorder
}

// NewResolverService creates a service resolving against r.
func NewResolverService(r *resolver.Resolver, logger *slog.Logger, recorder Recorder) (*ResolverService, error) {
	if r == nil {
		return nil, fmt.Errorf("resolver cannot be nil")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &ResolverService{logger: logger, recorder: recorder}
	s.current.Store(r)
	return s, nil
}

// Swap replaces the active resolver.
func (s *ResolverService) Swap(r *resolver.Resolver) {
	if r == nil {
		return
	}
	s.current.Store(r)
	s.logger.Info("resolver swapped", "resources", len(r.Collection().Resources))
}

// Resolver returns the active resolver.
func (s *ResolverService) Resolver() *resolver.Resolver {
	return s.current.Load()
}

// Resolve returns the best candidate of a resource.
func (s *ResolverService) Resolve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := s.current.Load()
	id, qctx, err := parseRequest(r, req)
	if err != nil {
		return nil, s.fail("resolve", err)
	}
	match, err := r.ResolveResource(id, qctx)
	if err != nil {
		return nil, s.fail("resolve", err)
	}
	cand, err := candidateValue(match)
	if err != nil {
		return nil, s.fail("resolve", err)
	}
	s.record("resolve", "match")
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"resource":  structpb.NewStringValue(id),
		"candidate": cand,
	}}, nil
}

// ResolveAll returns every matching candidate of a resource, ranked.
func (s *ResolverService) ResolveAll(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := s.current.Load()
	id, qctx, err := parseRequest(r, req)
	if err != nil {
		return nil, s.fail("resolve_all", err)
	}
	matches, err := r.ResolveAllResourceCandidates(id, qctx)
	if err != nil {
		return nil, s.fail("resolve_all", err)
	}
	list := make([]*structpb.Value, 0, len(matches))
	for _, m := range matches {
		v, err := candidateValue(m)
		if err != nil {
			return nil, s.fail("resolve_all", err)
		}
		list = append(list, v)
	}
	result := "match"
	if len(list) == 0 {
		result = "no_match"
	}
	s.record("resolve_all", result)
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"resource":   structpb.NewStringValue(id),
		"candidates": structpb.NewListValue(&structpb.ListValue{Values: list}),
	}}, nil
}

// ResolveComposed returns the composed value of a resource.
func (s *ResolverService) ResolveComposed(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := s.current.Load()
	id, qctx, err := parseRequest(r, req)
	if err != nil {
		return nil, s.fail("resolve_composed", err)
	}
	value, err := r.ResolveComposedResourceValue(id, qctx)
	if err != nil {
		return nil, s.fail("resolve_composed", err)
	}
	pv, err := structpb.NewValue(value)
	if err != nil {
		return nil, s.fail("resolve_composed", fmt.Errorf("encode value: %w", err))
	}
	s.record("resolve_composed", "match")
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"resource": structpb.NewStringValue(id),
		"value":    pv,
	}}, nil
}

// ParseContext validates a context token and returns its canonical form.
func (s *ResolverService) ParseContext(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := s.current.Load()
	token := req.GetFields()["token"].GetStringValue()
	qctx, err := r.ParseContext(token)
	if err != nil {
		return nil, StatusError(err)
	}
	canonical, err := ctxtoken.ToToken(r.Qualifiers(), qctx)
	if err != nil {
		return nil, StatusError(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"context": contextValue(qctx),
		"token":   structpb.NewStringValue(canonical),
	}}, nil
}

func (s *ResolverService) record(op, result string) {
	if s.recorder != nil {
		s.recorder.RecordResolution(op, result)
	}
}

// fail records and maps err.
func (s *ResolverService) fail(op string, err error) error {
	switch {
	case errors.Is(err, types.ErrNoMatch):
		s.record(op, "no_match")
	default:
		s.record(op, "error")
	}
	err = StatusError(err)
	if status.Code(err) == codes.Internal {
		s.logger.Error("resolution failed", "operation", op, "error", err)
	}
	return err
}

// parseRequest extracts the resource id and validated context.
func parseRequest(r *resolver.Resolver, req *structpb.Struct) (string, ctxtoken.Context, error) {
	fields := req.GetFields()
	id := fields["resource"].GetStringValue()
	if id == "" {
		return "", nil, status.Error(codes.InvalidArgument, "resource is required")
	}
	rawCtx, hasCtx := fields["context"]
	rawToken, hasToken := fields["token"]
	if hasCtx && hasToken {
		return "", nil, status.Error(codes.InvalidArgument, "context and token are exclusive")
	}
	if hasToken {
		qctx, err := r.ParseContext(rawToken.GetStringValue())
		return id, qctx, err
	}
	raw := map[string]string{}
	if hasCtx {
		obj := rawCtx.GetStructValue()
		if obj == nil {
			return "", nil, status.Error(codes.InvalidArgument, "context must be an object")
		}
		for name, v := range obj.GetFields() {
			sv, ok := v.GetKind().(*structpb.Value_StringValue)
			if !ok {
				return "", nil, status.Errorf(codes.InvalidArgument, "context value for %q must be a string", name)
			}
			raw[name] = sv.StringValue
		}
	}
	qctx, err := r.ValidateContext(raw)
	return id, qctx, err
}

func candidateValue(m resolver.CandidateMatch) (*structpb.Value, error) {
	value, err := structpb.NewValue(m.Value)
	if err != nil {
		return nil, fmt.Errorf("encode candidate %d: %w", m.Index, err)
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"index":       structpb.NewNumberValue(float64(m.Index)),
		"kind":        structpb.NewStringValue(m.Kind.String()),
		"score":       structpb.NewNumberValue(float64(m.Score)),
		"priority":    structpb.NewNumberValue(float64(m.Priority)),
		"isPartial":   structpb.NewBoolValue(m.IsPartial),
		"mergeMethod": structpb.NewStringValue(m.MergeMethod),
		"value":       value,
	}}), nil
}

func contextValue(ctx ctxtoken.Context) *structpb.Value {
	fields := make(map[string]*structpb.Value, len(ctx))
	for name, v := range ctx {
		fields[name] = structpb.NewStringValue(v)
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}
