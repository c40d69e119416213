package server_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"CoverLedger/internal/core"
	"CoverLedger/internal/observability"
	"CoverLedger/internal/oracle"
	"CoverLedger/internal/server"
	"CoverLedger/internal/state"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const admin state.Principal = "admin"

type harness struct {
	core *core.DeterministicCore
	conn *grpc.ClientConn
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	metrics := observability.NewMetricsWith(prometheus.NewRegistry())
	c, err := core.NewDeterministicCore(core.CoreConfig{
		Admin:       admin,
		InitialFund: 1_000_000,
		InitialYear: 2023,
		MaxRecords:  100,
	}, make(chan core.CoreOutput, 1024), make(chan core.CoreOutput, 1024), nil, oracle.NewFixed(100_000), metrics)
	require.NoError(t, err)

	srv := server.NewGRPCServer("bufconn", "", &server.ServerDeps{
		Core:    c,
		Metrics: metrics,
		Logger:  zerolog.Nop(),
	})

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Server().Serve(lis) }()
	t.Cleanup(srv.Server().Stop)

	conn, err := grpc.NewClient("passthrough:///bufconn",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(server.CodecName)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &harness{core: c, conn: conn}
}

func as(p state.Principal) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), server.PrincipalMetadataKey, string(p))
}

func (h *harness) call(t *testing.T, ctx context.Context, method string, req, resp interface{}) error {
	t.Helper()
	return h.conn.Invoke(ctx, server.LedgerMethod(method), req, resp)
}

func (h *harness) mustCall(t *testing.T, ctx context.Context, method string, req, resp interface{}) {
	t.Helper()
	require.NoError(t, h.call(t, ctx, method, req, resp), method)
}

func TestLedgerRPC_PolicyClaimLifecycle(t *testing.T) {
	h := newHarness(t)
	alice := as("alice")

	var created server.CommandResponse
	h.mustCall(t, alice, "CreatePolicy", &server.CreatePolicyRequest{
		InstrumentID: "G-123", Brand: "Gibson", CoverageAmount: 50_000, StartDate: 2023, DurationYears: 5,
	}, &created)
	assert.Equal(t, uint64(1), created.PolicyID)
	assert.Equal(t, int64(5000), created.PremiumRequired)

	var ack server.CommandResponse
	h.mustCall(t, alice, "PayPremium", &server.PayPremiumRequest{PolicyID: 1, Amount: 5000}, &ack)

	var policy state.Policy
	h.mustCall(t, alice, "GetPolicy", &server.GetPolicyRequest{PolicyID: 1}, &policy)
	assert.True(t, policy.Active)
	assert.Equal(t, state.Principal("alice"), policy.Owner)

	var filed server.CommandResponse
	h.mustCall(t, alice, "FileClaim", &server.FileClaimRequest{PolicyID: 1, ClaimAmount: 25_000, Reason: "Damage"}, &filed)
	assert.Equal(t, uint64(1), filed.ClaimID)

	var adjudicated server.CommandResponse
	h.mustCall(t, as(admin), "AdjudicateClaim", &server.AdjudicateClaimRequest{
		ClaimID: 1, Approve: true, StatusMessage: "Approved",
	}, &adjudicated)
	assert.Equal(t, int64(25_000), adjudicated.Payout)

	var fund server.FundBalanceResponse
	h.mustCall(t, alice, "GetFundBalance", &server.Empty{}, &fund)
	assert.Equal(t, int64(1_000_000+5000-25_000), fund.Balance)

	var mine server.PolicyList
	h.mustCall(t, alice, "GetMyPolicies", &server.Empty{}, &mine)
	require.Len(t, mine.Policies, 1)

	var none server.PolicyList
	h.mustCall(t, as("bob"), "GetMyPolicies", &server.Empty{}, &none)
	assert.NotNil(t, none.Policies)
	assert.Empty(t, none.Policies)
}

func TestLedgerRPC_ErrorMapping(t *testing.T) {
	h := newHarness(t)
	alice := as("alice")

	var created server.CommandResponse
	h.mustCall(t, alice, "CreatePolicy", &server.CreatePolicyRequest{
		InstrumentID: "G-1", Brand: "Fender", CoverageAmount: 50_000, StartDate: 2023, DurationYears: 5,
	}, &created)
	h.mustCall(t, alice, "PayPremium", &server.PayPremiumRequest{PolicyID: created.PolicyID, Amount: 5000}, &server.CommandResponse{})
	h.mustCall(t, alice, "FileClaim", &server.FileClaimRequest{PolicyID: created.PolicyID, ClaimAmount: 1, Reason: "r"}, &server.CommandResponse{})

	tests := []struct {
		name   string
		ctx    context.Context
		method string
		req    interface{}
		want   codes.Code
	}{
		{"no principal", context.Background(), "SetCurrentYear", &server.SetCurrentYearRequest{Year: 2030}, codes.PermissionDenied},
		{"non-admin", alice, "SetCurrentYear", &server.SetCurrentYearRequest{Year: 2030}, codes.PermissionDenied},
		{"lookup missing policy", alice, "GetPolicy", &server.GetPolicyRequest{PolicyID: 99}, codes.NotFound},
		{"lookup missing claim", alice, "GetClaim", &server.GetClaimRequest{ClaimID: 99}, codes.NotFound},
		{"pay missing policy", alice, "PayPremium", &server.PayPremiumRequest{PolicyID: 99, Amount: 1}, codes.InvalidArgument},
		{"start in the past", alice, "CreatePolicy", &server.CreatePolicyRequest{
			InstrumentID: "x", Brand: "y", CoverageAmount: 50_000, StartDate: 2000, DurationYears: 1,
		}, codes.InvalidArgument},
		{"second claim", alice, "FileClaim", &server.FileClaimRequest{PolicyID: created.PolicyID, ClaimAmount: 1, Reason: "again"}, codes.FailedPrecondition},
		{"bad request id", alice, "CreatePolicy", &server.CreatePolicyRequest{RequestID: "not-a-uuid"}, codes.InvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.call(t, tt.ctx, tt.method, tt.req, &server.CommandResponse{})
			require.Error(t, err)
			assert.Equal(t, tt.want, status.Code(err), err.Error())
		})
	}
}

func TestLedgerRPC_DomainCodeInMessage(t *testing.T) {
	h := newHarness(t)

	err := h.call(t, as("alice"), "SetCurrentYear", &server.SetCurrentYearRequest{Year: 2030}, &server.CommandResponse{})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(status.Convert(err).Message(), "Unauthorized:"))
}

func TestLedgerRPC_RequestIDIsIdempotent(t *testing.T) {
	h := newHarness(t)
	req := &server.CreatePolicyRequest{
		RequestID:    "550e8400-e29b-41d4-a716-446655440000",
		InstrumentID: "G-1", Brand: "Fender", CoverageAmount: 50_000, StartDate: 2023, DurationYears: 5,
	}

	var first, second server.CommandResponse
	h.mustCall(t, as("alice"), "CreatePolicy", req, &first)
	h.mustCall(t, as("alice"), "CreatePolicy", req, &second)

	assert.False(t, first.Duplicate)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.PolicyID, second.PolicyID)
	assert.Equal(t, int64(5000), second.PremiumRequired)
	assert.Equal(t, 1, h.core.GetStats().Policies)
}

func TestLedgerRPC_WarrantyGuarantee(t *testing.T) {
	h := newHarness(t)

	var created server.CommandResponse
	h.mustCall(t, as(admin), "CreateWarranty", &server.CreateWarrantyRequest{
		Owner: "carol", InstrumentID: "V-1", Brand: "Martin", GuaranteePercentage: 80, StartDate: 2023, DurationYears: 2,
	}, &created)
	require.Equal(t, uint64(1), created.WarrantyID)

	var res core.GuaranteeResult
	h.mustCall(t, as("carol"), "CheckWarrantyGuarantee", &server.CheckWarrantyGuaranteeRequest{WarrantyID: 1, CurrentValue: 70_000}, &res)
	assert.Equal(t, core.GuaranteeResult{HasGuarantee: true, GuaranteedValue: 80_000, Shortfall: 10_000}, res)

	h.mustCall(t, as(admin), "SetCurrentYear", &server.SetCurrentYearRequest{Year: 2026}, &server.CommandResponse{})
	err := h.call(t, as("carol"), "CheckWarrantyGuarantee", &server.CheckWarrantyGuaranteeRequest{WarrantyID: 1, CurrentValue: 70_000}, &res)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestLedgerRPC_TransferAdminAndStats(t *testing.T) {
	h := newHarness(t)

	h.mustCall(t, as(admin), "TransferAdmin", &server.TransferAdminRequest{NewAdmin: "dave"}, &server.CommandResponse{})

	var got server.AdminResponse
	h.mustCall(t, as("anyone"), "GetAdmin", &server.Empty{}, &got)
	assert.Equal(t, state.Principal("dave"), got.Admin)

	err := h.call(t, as(admin), "SetCurrentYear", &server.SetCurrentYearRequest{Year: 2024}, &server.CommandResponse{})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	var stats server.StatsResponse
	h.mustCall(t, as("anyone"), "GetStats", &server.Empty{}, &stats)
	assert.Equal(t, int64(1), stats.LastSequence)
	assert.Len(t, stats.StateHash, 64)
}

func TestAdminRPC_NotRegisteredWithoutDatabase(t *testing.T) {
	h := newHarness(t)

	err := h.conn.Invoke(as(admin), server.AdminMethod("VerifyIntegrity"), &server.Empty{}, &server.Empty{})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

// ============================================================================
// HTTP gateway
// ============================================================================

func newGateway(t *testing.T) (*harness, *httptest.Server) {
	t.Helper()
	h := newHarness(t)
	gw, err := server.NewGateway(h.conn)
	require.NoError(t, err)
	ts := httptest.NewServer(gw)
	t.Cleanup(ts.Close)
	return h, ts
}

func doJSON(t *testing.T, method, url string, principal state.Principal, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if principal != "" {
		req.Header.Set(server.PrincipalHeader, string(principal))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestGateway_PolicyFlow(t *testing.T) {
	_, ts := newGateway(t)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/policies", "alice",
		`{"instrument_id":"G-1","brand":"Gibson","coverage_amount":50000,"start_date":2023,"duration_years":5}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, float64(1), body["policy_id"])
	assert.Equal(t, float64(5000), body["premium_required"])

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/v1/policies/1/premium", "alice", `{"amount":5000}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/v1/policies/1", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["active"])

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/v1/policies", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Len(t, body["policies"], 1)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/v1/fund", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, float64(1_005_000), body["balance"])
}

func TestGateway_ErrorStatuses(t *testing.T) {
	_, ts := newGateway(t)

	tests := []struct {
		name      string
		method    string
		path      string
		principal state.Principal
		body      string
		want      int
	}{
		{"missing policy", http.MethodGet, "/v1/policies/99", "alice", "", http.StatusNotFound},
		{"bad path param", http.MethodGet, "/v1/policies/abc", "alice", "", http.StatusBadRequest},
		{"missing current_value", http.MethodGet, "/v1/warranties/1/guarantee", "alice", "", http.StatusBadRequest},
		{"no principal", http.MethodPut, "/v1/year", "", `{"year":2030}`, http.StatusForbidden},
		{"malformed body", http.MethodPost, "/v1/policies", "alice", `{"coverage_amount":"lots"}`, http.StatusBadRequest},
		{"admin service absent", http.MethodGet, "/v1/admin/integrity", "admin", "", http.StatusNotImplemented},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, tt.method, ts.URL+tt.path, tt.principal, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode, body)
		})
	}
}

func TestGateway_AdminRoutes(t *testing.T) {
	h, ts := newGateway(t)

	resp, body := doJSON(t, http.MethodPut, ts.URL+"/v1/year", admin, `{"year":2030}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, int64(2030), h.core.GetCurrentYear())

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/v1/year", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, float64(2030), body["year"])

	resp, body = doJSON(t, http.MethodPut, ts.URL+"/v1/admin", admin, `{"new_admin":"erin"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, state.Principal("erin"), h.core.GetAdmin())
}
