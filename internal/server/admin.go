package server

import (
	"context"
	"database/sql"
	"fmt"

	"CoverLedger/internal/core"
	"CoverLedger/internal/persistence"
	"CoverLedger/internal/projection"
	"CoverLedger/internal/query"
	"CoverLedger/internal/state"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const AdminServiceName = "coverledger.v1.Admin"

// SnapshotSource is the core surface the back-office needs.
type SnapshotSource interface {
	GetAdmin() state.Principal
	GetSequence() int64
	CreateSnapshotState() *core.SnapshotState
}

// AdminServer is the handler type of the Admin service. Every method is
// restricted to the current admin principal.
type AdminServer interface {
	VerifyIntegrity(context.Context, *Empty) (*query.IntegrityReport, error)
	TakeSnapshot(context.Context, *Empty) (*SnapshotResponse, error)
	RebuildProjections(context.Context, *Empty) (*SnapshotResponse, error)
	GetEventLogInfo(context.Context, *Empty) (*EventLogInfoResponse, error)
	GetFundProjection(context.Context, *Empty) (*query.FundView, error)
	ListPolicies(context.Context, *ListPoliciesRequest) (*PolicyViewList, error)
	ListClaims(context.Context, *ListClaimsRequest) (*ClaimViewList, error)
	GetJournalHistory(context.Context, *JournalHistoryRequest) (*JournalList, error)
}

// AdminService serves projection reads and maintenance operations.
type AdminService struct {
	db          *sql.DB
	core        SnapshotSource
	queries     *query.QueryService
	snapMgr     *persistence.SnapshotManager
	snapshotter *persistence.Snapshotter
}

var _ AdminServer = (*AdminService)(nil)

func NewAdminService(
	db *sql.DB,
	c SnapshotSource,
	queries *query.QueryService,
	snapMgr *persistence.SnapshotManager,
	snapshotter *persistence.Snapshotter,
) *AdminService {
	return &AdminService{
		db:          db,
		core:        c,
		queries:     queries,
		snapMgr:     snapMgr,
		snapshotter: snapshotter,
	}
}

var AdminServiceDesc = grpc.ServiceDesc{
	ServiceName: AdminServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(AdminServiceName, "VerifyIntegrity", AdminServer.VerifyIntegrity),
		unary(AdminServiceName, "TakeSnapshot", AdminServer.TakeSnapshot),
		unary(AdminServiceName, "RebuildProjections", AdminServer.RebuildProjections),
		unary(AdminServiceName, "GetEventLogInfo", AdminServer.GetEventLogInfo),
		unary(AdminServiceName, "GetFundProjection", AdminServer.GetFundProjection),
		unary(AdminServiceName, "ListPolicies", AdminServer.ListPolicies),
		unary(AdminServiceName, "ListClaims", AdminServer.ListClaims),
		unary(AdminServiceName, "GetJournalHistory", AdminServer.GetJournalHistory),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "coverledger/v1/admin.proto",
}

func (s *AdminService) requireAdmin(ctx context.Context) error {
	if caller := principalFrom(ctx); caller == "" || caller != s.core.GetAdmin() {
		return status.Error(codes.PermissionDenied, "admin principal required")
	}
	return nil
}

func (s *AdminService) VerifyIntegrity(ctx context.Context, _ *Empty) (*query.IntegrityReport, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	report, err := s.queries.VerifyIntegrity(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "verify integrity: %v", err)
	}
	return report, nil
}

func (s *AdminService) TakeSnapshot(ctx context.Context, _ *Empty) (*SnapshotResponse, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := s.snapshotter.TakeSnapshot(ctx); err != nil {
		return nil, status.Errorf(codes.Internal, "take snapshot: %v", err)
	}
	return &SnapshotResponse{Sequence: s.core.GetSequence() - 1}, nil
}

// RebuildProjections replaces the projection tables from the live core
// state.
func (s *AdminService) RebuildProjections(ctx context.Context, _ *Empty) (*SnapshotResponse, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	snap := s.core.CreateSnapshotState()
	if err := projection.Rebuild(ctx, s.db, snap); err != nil {
		return nil, status.Errorf(codes.Internal, "rebuild failed: %v", err)
	}
	return &SnapshotResponse{Sequence: snap.Sequence}, nil
}

func (s *AdminService) GetEventLogInfo(ctx context.Context, _ *Empty) (*EventLogInfoResponse, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	latestSeq, err := s.snapMgr.GetLatestSequence(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get latest sequence: %v", err)
	}
	return &EventLogInfoResponse{
		LastSequence: latestSeq,
		CoreSequence: s.core.GetSequence() - 1,
	}, nil
}

func (s *AdminService) GetFundProjection(ctx context.Context, _ *Empty) (*query.FundView, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	fund, err := s.queries.GetFund(ctx)
	if err != nil {
		return nil, toStatus(err, true)
	}
	return fund, nil
}

func (s *AdminService) ListPolicies(ctx context.Context, req *ListPoliciesRequest) (*PolicyViewList, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if req.Owner == "" {
		return nil, status.Error(codes.InvalidArgument, "owner is required")
	}
	policies, err := s.queries.ListPoliciesByOwner(ctx, req.Owner, req.Limit, req.AfterID)
	if err != nil {
		return nil, toStatus(fmt.Errorf("list policies: %w", err), true)
	}
	return &PolicyViewList{Policies: policies}, nil
}

func (s *AdminService) ListClaims(ctx context.Context, req *ListClaimsRequest) (*ClaimViewList, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	var statusFilter *string
	if req.Status != "" {
		statusFilter = &req.Status
	}
	claims, err := s.queries.ListClaims(ctx, statusFilter, req.Limit, req.AfterID)
	if err != nil {
		return nil, toStatus(fmt.Errorf("list claims: %w", err), true)
	}
	return &ClaimViewList{Claims: claims}, nil
}

func (s *AdminService) GetJournalHistory(ctx context.Context, req *JournalHistoryRequest) (*JournalList, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if req.Account == "" {
		return nil, status.Error(codes.InvalidArgument, "account is required")
	}
	var before *int64
	if req.BeforeSequence > 0 {
		before = &req.BeforeSequence
	}
	entries, err := s.queries.GetJournalHistory(ctx, req.Account, req.Limit, before)
	if err != nil {
		return nil, toStatus(fmt.Errorf("journal history: %w", err), true)
	}
	return &JournalList{Journals: entries}, nil
}
