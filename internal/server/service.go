package server

import (
	"context"
	"encoding/hex"

	"CoverLedger/internal/core"
	"CoverLedger/internal/event"
	"CoverLedger/internal/state"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	LedgerServiceName = "coverledger.v1.Ledger"

	// PrincipalMetadataKey carries the caller identity on every RPC.
	PrincipalMetadataKey = "x-principal"
)

// Ledger is the core surface the RPC layer needs. *core.DeterministicCore
// implements it.
type Ledger interface {
	ProcessEvent(evt event.Event) (event.Outcome, error)
	GetPolicy(id uint64) (state.Policy, error)
	GetClaim(id uint64) (state.Claim, error)
	GetWarranty(id uint64) (state.Warranty, error)
	GetMyPolicies(caller state.Principal) []state.Policy
	GetFundBalance() int64
	GetCurrentYear() int64
	GetAdmin() state.Principal
	GetStats() core.Stats
	CheckWarrantyGuarantee(ctx context.Context, warrantyID uint64, currentValue int64) (core.GuaranteeResult, error)
}

// LedgerServer is the handler type of the Ledger service.
type LedgerServer interface {
	CreatePolicy(context.Context, *CreatePolicyRequest) (*CommandResponse, error)
	PayPremium(context.Context, *PayPremiumRequest) (*CommandResponse, error)
	FileClaim(context.Context, *FileClaimRequest) (*CommandResponse, error)
	AdjudicateClaim(context.Context, *AdjudicateClaimRequest) (*CommandResponse, error)
	CreateWarranty(context.Context, *CreateWarrantyRequest) (*CommandResponse, error)
	SetCurrentYear(context.Context, *SetCurrentYearRequest) (*CommandResponse, error)
	TransferAdmin(context.Context, *TransferAdminRequest) (*CommandResponse, error)
	GetPolicy(context.Context, *GetPolicyRequest) (*state.Policy, error)
	GetClaim(context.Context, *GetClaimRequest) (*state.Claim, error)
	GetWarranty(context.Context, *GetWarrantyRequest) (*state.Warranty, error)
	GetMyPolicies(context.Context, *Empty) (*PolicyList, error)
	GetFundBalance(context.Context, *Empty) (*FundBalanceResponse, error)
	GetCurrentYear(context.Context, *Empty) (*CurrentYearResponse, error)
	GetAdmin(context.Context, *Empty) (*AdminResponse, error)
	GetStats(context.Context, *Empty) (*StatsResponse, error)
	CheckWarrantyGuarantee(context.Context, *CheckWarrantyGuaranteeRequest) (*core.GuaranteeResult, error)
}

// LedgerService adapts the core to the Ledger RPC service.
type LedgerService struct {
	ledger Ledger
}

var _ LedgerServer = (*LedgerService)(nil)

func NewLedgerService(ledger Ledger) *LedgerService {
	return &LedgerService{ledger: ledger}
}

// LedgerServiceDesc is registered in place of protoc output; messages use
// the JSON codec.
var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: LedgerServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(LedgerServiceName, "CreatePolicy", LedgerServer.CreatePolicy),
		unary(LedgerServiceName, "PayPremium", LedgerServer.PayPremium),
		unary(LedgerServiceName, "FileClaim", LedgerServer.FileClaim),
		unary(LedgerServiceName, "AdjudicateClaim", LedgerServer.AdjudicateClaim),
		unary(LedgerServiceName, "CreateWarranty", LedgerServer.CreateWarranty),
		unary(LedgerServiceName, "SetCurrentYear", LedgerServer.SetCurrentYear),
		unary(LedgerServiceName, "TransferAdmin", LedgerServer.TransferAdmin),
		unary(LedgerServiceName, "GetPolicy", LedgerServer.GetPolicy),
		unary(LedgerServiceName, "GetClaim", LedgerServer.GetClaim),
		unary(LedgerServiceName, "GetWarranty", LedgerServer.GetWarranty),
		unary(LedgerServiceName, "GetMyPolicies", LedgerServer.GetMyPolicies),
		unary(LedgerServiceName, "GetFundBalance", LedgerServer.GetFundBalance),
		unary(LedgerServiceName, "GetCurrentYear", LedgerServer.GetCurrentYear),
		unary(LedgerServiceName, "GetAdmin", LedgerServer.GetAdmin),
		unary(LedgerServiceName, "GetStats", LedgerServer.GetStats),
		unary(LedgerServiceName, "CheckWarrantyGuarantee", LedgerServer.CheckWarrantyGuarantee),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "coverledger/v1/ledger.proto",
}

// unary builds a MethodDesc for a typed handler method of S.
func unary[S any, Req any, Resp any](service, method string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(S)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + service + "/" + method,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(s, ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ============================================================================
// Commands
// ============================================================================

func (s *LedgerService) CreatePolicy(ctx context.Context, req *CreatePolicyRequest) (*CommandResponse, error) {
	id, err := requestID(req.RequestID)
	if err != nil {
		return nil, err
	}
	return s.apply(&event.CreatePolicy{
		RequestID:      id,
		Principal:      principalFrom(ctx),
		InstrumentID:   req.InstrumentID,
		Brand:          req.Brand,
		CoverageAmount: req.CoverageAmount,
		StartDate:      req.StartDate,
		DurationYears:  req.DurationYears,
	})
}

func (s *LedgerService) PayPremium(ctx context.Context, req *PayPremiumRequest) (*CommandResponse, error) {
	id, err := requestID(req.RequestID)
	if err != nil {
		return nil, err
	}
	return s.apply(&event.PayPremium{
		RequestID: id,
		Principal: principalFrom(ctx),
		PolicyID:  req.PolicyID,
		Amount:    req.Amount,
	})
}

func (s *LedgerService) FileClaim(ctx context.Context, req *FileClaimRequest) (*CommandResponse, error) {
	id, err := requestID(req.RequestID)
	if err != nil {
		return nil, err
	}
	return s.apply(&event.FileClaim{
		RequestID:    id,
		Principal:    principalFrom(ctx),
		PolicyID:     req.PolicyID,
		ClaimAmount:  req.ClaimAmount,
		Reason:       req.Reason,
		EvidenceHash: req.EvidenceHash,
	})
}

func (s *LedgerService) AdjudicateClaim(ctx context.Context, req *AdjudicateClaimRequest) (*CommandResponse, error) {
	id, err := requestID(req.RequestID)
	if err != nil {
		return nil, err
	}
	return s.apply(&event.AdjudicateClaim{
		RequestID:     id,
		Principal:     principalFrom(ctx),
		ClaimID:       req.ClaimID,
		Approve:       req.Approve,
		StatusMessage: req.StatusMessage,
	})
}

func (s *LedgerService) CreateWarranty(ctx context.Context, req *CreateWarrantyRequest) (*CommandResponse, error) {
	id, err := requestID(req.RequestID)
	if err != nil {
		return nil, err
	}
	return s.apply(&event.CreateWarranty{
		RequestID:           id,
		Principal:           principalFrom(ctx),
		Owner:               req.Owner,
		InstrumentID:        req.InstrumentID,
		Brand:               req.Brand,
		GuaranteePercentage: req.GuaranteePercentage,
		StartDate:           req.StartDate,
		DurationYears:       req.DurationYears,
	})
}

func (s *LedgerService) SetCurrentYear(ctx context.Context, req *SetCurrentYearRequest) (*CommandResponse, error) {
	id, err := requestID(req.RequestID)
	if err != nil {
		return nil, err
	}
	return s.apply(&event.SetCurrentYear{
		RequestID: id,
		Principal: principalFrom(ctx),
		Year:      req.Year,
	})
}

func (s *LedgerService) TransferAdmin(ctx context.Context, req *TransferAdminRequest) (*CommandResponse, error) {
	id, err := requestID(req.RequestID)
	if err != nil {
		return nil, err
	}
	return s.apply(&event.TransferAdmin{
		RequestID: id,
		Principal: principalFrom(ctx),
		NewAdmin:  req.NewAdmin,
	})
}

func (s *LedgerService) apply(evt event.Event) (*CommandResponse, error) {
	out, err := s.ledger.ProcessEvent(evt)
	if err != nil {
		return nil, toStatus(err, false)
	}
	return &CommandResponse{
		PolicyID:        out.PolicyID,
		ClaimID:         out.ClaimID,
		WarrantyID:      out.WarrantyID,
		PremiumRequired: out.PremiumRequired,
		Payout:          out.Payout,
		Duplicate:       out.Duplicate,
	}, nil
}

// ============================================================================
// Queries
// ============================================================================

func (s *LedgerService) GetPolicy(ctx context.Context, req *GetPolicyRequest) (*state.Policy, error) {
	p, err := s.ledger.GetPolicy(req.PolicyID)
	if err != nil {
		return nil, toStatus(err, true)
	}
	return &p, nil
}

func (s *LedgerService) GetClaim(ctx context.Context, req *GetClaimRequest) (*state.Claim, error) {
	c, err := s.ledger.GetClaim(req.ClaimID)
	if err != nil {
		return nil, toStatus(err, true)
	}
	return &c, nil
}

func (s *LedgerService) GetWarranty(ctx context.Context, req *GetWarrantyRequest) (*state.Warranty, error) {
	w, err := s.ledger.GetWarranty(req.WarrantyID)
	if err != nil {
		return nil, toStatus(err, true)
	}
	return &w, nil
}

func (s *LedgerService) GetMyPolicies(ctx context.Context, _ *Empty) (*PolicyList, error) {
	return &PolicyList{Policies: s.ledger.GetMyPolicies(principalFrom(ctx))}, nil
}

func (s *LedgerService) GetFundBalance(ctx context.Context, _ *Empty) (*FundBalanceResponse, error) {
	return &FundBalanceResponse{Balance: s.ledger.GetFundBalance()}, nil
}

func (s *LedgerService) GetCurrentYear(ctx context.Context, _ *Empty) (*CurrentYearResponse, error) {
	return &CurrentYearResponse{Year: s.ledger.GetCurrentYear()}, nil
}

func (s *LedgerService) GetAdmin(ctx context.Context, _ *Empty) (*AdminResponse, error) {
	return &AdminResponse{Admin: s.ledger.GetAdmin()}, nil
}

func (s *LedgerService) GetStats(ctx context.Context, _ *Empty) (*StatsResponse, error) {
	stats := s.ledger.GetStats()
	return &StatsResponse{
		Stats:     stats,
		StateHash: hex.EncodeToString(stats.StateHash[:]),
	}, nil
}

func (s *LedgerService) CheckWarrantyGuarantee(ctx context.Context, req *CheckWarrantyGuaranteeRequest) (*core.GuaranteeResult, error) {
	res, err := s.ledger.CheckWarrantyGuarantee(ctx, req.WarrantyID, req.CurrentValue)
	if err != nil {
		return nil, toStatus(err, true)
	}
	return &res, nil
}

// ============================================================================
// Helpers
// ============================================================================

// principalFrom reads the caller identity from incoming metadata. A missing
// principal yields the empty principal, which every guarded command rejects.
func principalFrom(ctx context.Context) state.Principal {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(PrincipalMetadataKey); len(v) > 0 {
		return state.Principal(v[0])
	}
	return ""
}

func requestID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.New(), nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid request_id: %v", err)
	}
	if id == uuid.Nil {
		return uuid.Nil, status.Error(codes.InvalidArgument, "request_id must not be the nil uuid")
	}
	return id, nil
}
