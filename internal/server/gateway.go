package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"CoverLedger/internal/core"
	"CoverLedger/internal/query"
	"CoverLedger/internal/state"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// PrincipalHeader carries the caller identity on HTTP requests.
const PrincipalHeader = "X-Principal"

// LedgerMethod returns the full RPC name of a Ledger method.
func LedgerMethod(name string) string {
	return "/" + LedgerServiceName + "/" + name
}

// AdminMethod returns the full RPC name of an Admin method.
func AdminMethod(name string) string {
	return "/" + AdminServiceName + "/" + name
}

// Gateway serves HTTP/JSON by proxying each route to its RPC. Error statuses
// go through runtime.HTTPStatusFromCode.
type Gateway struct {
	mux       *runtime.ServeMux
	conn      grpc.ClientConnInterface
	marshaler runtime.Marshaler
}

// NewGateway registers every Ledger and Admin route on a fresh mux.
func NewGateway(conn grpc.ClientConnInterface) (*Gateway, error) {
	g := &Gateway{
		mux:       runtime.NewServeMux(),
		conn:      conn,
		marshaler: &runtime.JSONBuiltin{},
	}

	policyID := pathUint("policy_id")
	claimID := pathUint("claim_id")
	warrantyID := pathUint("warranty_id")

	routes := []error{
		// Policies
		route[CreatePolicyRequest, CommandResponse](g, http.MethodPost, "/v1/policies", LedgerMethod("CreatePolicy"), nil),
		route[Empty, PolicyList](g, http.MethodGet, "/v1/policies", LedgerMethod("GetMyPolicies"), nil),
		route[GetPolicyRequest, state.Policy](g, http.MethodGet, "/v1/policies/{policy_id}", LedgerMethod("GetPolicy"),
			func(_ *http.Request, p map[string]string, req *GetPolicyRequest) error {
				return policyID(p, &req.PolicyID)
			}),
		route[PayPremiumRequest, CommandResponse](g, http.MethodPost, "/v1/policies/{policy_id}/premium", LedgerMethod("PayPremium"),
			func(_ *http.Request, p map[string]string, req *PayPremiumRequest) error {
				return policyID(p, &req.PolicyID)
			}),
		route[FileClaimRequest, CommandResponse](g, http.MethodPost, "/v1/policies/{policy_id}/claims", LedgerMethod("FileClaim"),
			func(_ *http.Request, p map[string]string, req *FileClaimRequest) error {
				return policyID(p, &req.PolicyID)
			}),

		// Claims
		route[GetClaimRequest, state.Claim](g, http.MethodGet, "/v1/claims/{claim_id}", LedgerMethod("GetClaim"),
			func(_ *http.Request, p map[string]string, req *GetClaimRequest) error {
				return claimID(p, &req.ClaimID)
			}),
		route[AdjudicateClaimRequest, CommandResponse](g, http.MethodPost, "/v1/claims/{claim_id}/adjudication", LedgerMethod("AdjudicateClaim"),
			func(_ *http.Request, p map[string]string, req *AdjudicateClaimRequest) error {
				return claimID(p, &req.ClaimID)
			}),

		// Warranties
		route[CreateWarrantyRequest, CommandResponse](g, http.MethodPost, "/v1/warranties", LedgerMethod("CreateWarranty"), nil),
		route[GetWarrantyRequest, state.Warranty](g, http.MethodGet, "/v1/warranties/{warranty_id}", LedgerMethod("GetWarranty"),
			func(_ *http.Request, p map[string]string, req *GetWarrantyRequest) error {
				return warrantyID(p, &req.WarrantyID)
			}),
		route[CheckWarrantyGuaranteeRequest, core.GuaranteeResult](g, http.MethodGet, "/v1/warranties/{warranty_id}/guarantee", LedgerMethod("CheckWarrantyGuarantee"),
			func(r *http.Request, p map[string]string, req *CheckWarrantyGuaranteeRequest) error {
				if err := warrantyID(p, &req.WarrantyID); err != nil {
					return err
				}
				return queryInt64(r, "current_value", true, &req.CurrentValue)
			}),

		// Fund, clock and admin role
		route[Empty, FundBalanceResponse](g, http.MethodGet, "/v1/fund", LedgerMethod("GetFundBalance"), nil),
		route[Empty, CurrentYearResponse](g, http.MethodGet, "/v1/year", LedgerMethod("GetCurrentYear"), nil),
		route[SetCurrentYearRequest, CommandResponse](g, http.MethodPut, "/v1/year", LedgerMethod("SetCurrentYear"), nil),
		route[Empty, AdminResponse](g, http.MethodGet, "/v1/admin", LedgerMethod("GetAdmin"), nil),
		route[TransferAdminRequest, CommandResponse](g, http.MethodPut, "/v1/admin", LedgerMethod("TransferAdmin"), nil),
		route[Empty, StatsResponse](g, http.MethodGet, "/v1/stats", LedgerMethod("GetStats"), nil),

		// Back-office
		route[Empty, query.IntegrityReport](g, http.MethodGet, "/v1/admin/integrity", AdminMethod("VerifyIntegrity"), nil),
		route[Empty, SnapshotResponse](g, http.MethodPost, "/v1/admin/snapshots", AdminMethod("TakeSnapshot"), nil),
		route[Empty, SnapshotResponse](g, http.MethodPost, "/v1/admin/projections/rebuild", AdminMethod("RebuildProjections"), nil),
		route[Empty, EventLogInfoResponse](g, http.MethodGet, "/v1/admin/event-log", AdminMethod("GetEventLogInfo"), nil),
		route[Empty, query.FundView](g, http.MethodGet, "/v1/admin/fund", AdminMethod("GetFundProjection"), nil),
		route[ListPoliciesRequest, PolicyViewList](g, http.MethodGet, "/v1/admin/policies", AdminMethod("ListPolicies"),
			func(r *http.Request, _ map[string]string, req *ListPoliciesRequest) error {
				req.Owner = state.Principal(r.URL.Query().Get("owner"))
				if err := queryInt(r, "limit", &req.Limit); err != nil {
					return err
				}
				return queryUint64(r, "after_id", &req.AfterID)
			}),
		route[ListClaimsRequest, ClaimViewList](g, http.MethodGet, "/v1/admin/claims", AdminMethod("ListClaims"),
			func(r *http.Request, _ map[string]string, req *ListClaimsRequest) error {
				req.Status = r.URL.Query().Get("status")
				if err := queryInt(r, "limit", &req.Limit); err != nil {
					return err
				}
				return queryUint64(r, "after_id", &req.AfterID)
			}),
		route[JournalHistoryRequest, JournalList](g, http.MethodGet, "/v1/admin/journals", AdminMethod("GetJournalHistory"),
			func(r *http.Request, _ map[string]string, req *JournalHistoryRequest) error {
				req.Account = r.URL.Query().Get("account")
				if err := queryInt(r, "limit", &req.Limit); err != nil {
					return err
				}
				return queryInt64(r, "before_sequence", false, &req.BeforeSequence)
			}),
	}

	if err := errors.Join(routes...); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mux.ServeHTTP(w, r)
}

// route registers one HTTP route. Bodies of POST/PUT requests decode into
// Req before bind (optional) applies path and query parameters.
func route[Req any, Resp any](
	g *Gateway,
	method, pattern, rpc string,
	bind func(*http.Request, map[string]string, *Req) error,
) error {
	return g.mux.HandlePath(method, pattern, func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		req := new(Req)
		if method == http.MethodPost || method == http.MethodPut {
			if err := g.marshaler.NewDecoder(r.Body).Decode(req); err != nil && !errors.Is(err, io.EOF) {
				g.fail(w, r, status.Errorf(codes.InvalidArgument, "decode body: %v", err))
				return
			}
		}
		if bind != nil {
			if err := bind(r, params, req); err != nil {
				g.fail(w, r, status.Error(codes.InvalidArgument, err.Error()))
				return
			}
		}

		resp := new(Resp)
		if err := g.conn.Invoke(outgoingContext(r), rpc, req, resp, grpc.CallContentSubtype(CodecName)); err != nil {
			g.fail(w, r, err)
			return
		}

		w.Header().Set("Content-Type", g.marshaler.ContentType(resp))
		_ = g.marshaler.NewEncoder(w).Encode(resp)
	})
}

func (g *Gateway) fail(w http.ResponseWriter, r *http.Request, err error) {
	runtime.HTTPError(r.Context(), g.mux, g.marshaler, w, r, err)
}

// outgoingContext forwards the X-Principal header as RPC metadata.
func outgoingContext(r *http.Request) context.Context {
	ctx := r.Context()
	if p := r.Header.Get(PrincipalHeader); p != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, PrincipalMetadataKey, p)
	}
	return ctx
}

func pathUint(name string) func(map[string]string, *uint64) error {
	return func(params map[string]string, dst *uint64) error {
		v, err := strconv.ParseUint(params[name], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q", name, params[name])
		}
		*dst = v
		return nil
	}
}

func queryInt64(r *http.Request, name string, required bool, dst *int64) error {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if required {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q", name, raw)
	}
	*dst = v
	return nil
}

func queryUint64(r *http.Request, name string, dst *uint64) error {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q", name, raw)
	}
	*dst = v
	return nil
}

func queryInt(r *http.Request, name string, dst *int) error {
	var v int64
	if err := queryInt64(r, name, false, &v); err != nil {
		return err
	}
	*dst = int(v)
	return nil
}
