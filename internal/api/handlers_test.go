package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"nifty-options-trader/internal/orchestrator"
	"nifty-options-trader/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeProvider struct {
	state            orchestrator.State
	mode             types.Mode
	dailyTradeCount  int
	availableCapital decimal.Decimal
	usedMargin       decimal.Decimal
	openPositions    []types.Position
	degraded         bool
	riskBreached     bool
}

func (f *fakeProvider) State() orchestrator.State               { return f.state }
func (f *fakeProvider) Mode() types.Mode                        { return f.mode }
func (f *fakeProvider) DailyTradeCount() int                    { return f.dailyTradeCount }
func (f *fakeProvider) AvailableCapital() decimal.Decimal       { return f.availableCapital }
func (f *fakeProvider) UsedMargin() decimal.Decimal             { return f.usedMargin }
func (f *fakeProvider) OpenPositions() []types.Position         { return f.openPositions }
func (f *fakeProvider) IsDegraded() bool                        { return f.degraded }
func (f *fakeProvider) RiskBreached() bool                      { return f.riskBreached }

func TestHandleHealthReturnsOK(t *testing.T) {
	h := NewHandlers(&fakeProvider{}, testLogger())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	h.HandleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestHandleSnapshotReflectsProviderState(t *testing.T) {
	provider := &fakeProvider{
		state:            orchestrator.StateRunning,
		mode:             types.ModePaper,
		dailyTradeCount:  3,
		availableCapital: decimal.NewFromInt(150000),
		usedMargin:       decimal.NewFromInt(50000),
		degraded:         false,
		riskBreached:     true,
		openPositions: []types.Position{
			{
				Symbol:        "NIFTY25050CE",
				Strategy:      "supertrend",
				OptionType:    types.CE,
				Quantity:      75,
				AveragePrice:  decimal.NewFromInt(100),
				CurrentPrice:  decimal.NewFromInt(110),
				UnrealizedPnL: decimal.NewFromInt(750),
				EntryTime:     time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC),
			},
		},
	}
	h := NewHandlers(provider, testLogger())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/snapshot", nil)

	h.HandleSnapshot(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if snap.State != "RUNNING" {
		t.Errorf("expected state RUNNING, got %q", snap.State)
	}
	if !snap.RiskBreached {
		t.Error("expected risk_breached to reflect the provider")
	}
	if len(snap.OpenPositions) != 1 || snap.OpenPositions[0].Symbol != "NIFTY25050CE" {
		t.Errorf("expected one open position to round-trip, got %+v", snap.OpenPositions)
	}
}
