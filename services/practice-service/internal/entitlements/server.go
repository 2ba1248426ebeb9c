package entitlements

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/model"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/plan"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/storage"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// The entitlements API is declared by hand over structpb.Struct so other
// services can read a practice's effective plan without generated stubs.
const (
	ServiceName           = "practicepulse.entitlements.v1.EntitlementsService"
	getEntitlementsMethod = "/" + ServiceName + "/GetEntitlements"
)

type EntitlementsServer interface {
	GetEntitlements(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type PracticeReader interface {
	GetPractice(ctx context.Context, id string) (model.Practice, error)
}

type server struct {
	practices PracticeReader
	now       func() time.Time
}

func Register(grpcServer *grpc.Server, practices PracticeReader) {
	grpcServer.RegisterService(&serviceDesc, &server{practices: practices, now: time.Now})
}

func (s *server) GetEntitlements(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	practiceID := req.GetFields()["practice_id"].GetStringValue()
	if _, err := uuid.Parse(practiceID); err != nil {
		return nil, status.Error(codes.InvalidArgument, "practice_id must be a uuid")
	}
	p, err := s.practices.GetPractice(ctx, practiceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, status.Error(codes.NotFound, "practice not found")
		}
		return nil, status.Error(codes.Internal, "lookup failed")
	}

	now := s.now()
	limits := LimitsForTier(plan.ForPractice(p, now))
	templates := make([]any, 0, len(limits.Templates))
	for _, tpl := range limits.Templates {
		templates = append(templates, tpl)
	}
	return structpb.NewStruct(map[string]any{
		"practice_id":             p.ID,
		"tier":                    string(limits.Tier),
		"override_active":         plan.OverrideActive(p, now),
		"suspended":               p.IsSuspended(),
		"max_locations":           limits.MaxLocations,
		"max_responses_per_month": limits.MaxResponsesPerMonth,
		"has_alerts":              limits.HasAlerts,
		"has_branding":            limits.HasBranding,
		"has_custom_time_filter":  limits.HasCustomTimeFilter,
		"templates":               templates,
	})
}

func getEntitlementsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EntitlementsServer).GetEntitlements(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getEntitlementsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EntitlementsServer).GetEntitlements(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EntitlementsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetEntitlements", Handler: getEntitlementsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "practicepulse/entitlements/v1/entitlements.proto",
}

// Client calls EntitlementsService on another replica or service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) GetEntitlements(ctx context.Context, practiceID string) (Limits, error) {
	req, err := structpb.NewStruct(map[string]any{"practice_id": practiceID})
	if err != nil {
		return Limits{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getEntitlementsMethod, req, out); err != nil {
		return Limits{}, err
	}
	f := out.GetFields()
	l := Limits{
		Tier:                 plan.Tier(f["tier"].GetStringValue()),
		MaxLocations:         int(f["max_locations"].GetNumberValue()),
		MaxResponsesPerMonth: int(f["max_responses_per_month"].GetNumberValue()),
		HasAlerts:            f["has_alerts"].GetBoolValue(),
		HasBranding:          f["has_branding"].GetBoolValue(),
		HasCustomTimeFilter:  f["has_custom_time_filter"].GetBoolValue(),
	}
	for _, v := range f["templates"].GetListValue().GetValues() {
		l.Templates = append(l.Templates, v.GetStringValue())
	}
	return l, nil
}
