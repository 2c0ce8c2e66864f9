package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"nifty-options-trader/pkg/types"
)

func TestSaveOrderAssignsID(t *testing.T) {
	s := New()
	order := &types.Order{
		Symbol: "NIFTY25050CE", Side: types.BUY, Quantity: 75,
		Price: decimal.NewFromInt(100), Mode: types.ModePaper,
	}
	id, err := s.SaveOrder(context.Background(), order)
	if err != nil {
		t.Fatalf("SaveOrder returned error: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty id")
	}
}

func TestSaveOrderRejectsSellWithoutOpenPosition(t *testing.T) {
	s := New()
	order := &types.Order{
		Symbol: "NIFTY25050CE", Side: types.SELL, Quantity: 75,
		Price: decimal.NewFromInt(100), Mode: types.ModePaper,
	}
	if _, err := s.SaveOrder(context.Background(), order); err == nil {
		t.Fatal("expected SELL without a matching open position to be rejected")
	}
}

func TestUpdatePositionPartialPatch(t *testing.T) {
	s := New()
	pos := &types.Position{
		Symbol: "NIFTY25050CE", Quantity: 75, AveragePrice: decimal.NewFromInt(100),
		EntryTime: time.Now(), IsOpen: true, Mode: types.ModePaper,
	}
	id, err := s.SavePosition(context.Background(), pos)
	if err != nil {
		t.Fatalf("SavePosition returned error: %v", err)
	}

	closedQty := int64(0)
	isOpen := false
	if err := s.UpdatePosition(context.Background(), id, types.PositionPatch{
		Quantity: &closedQty,
		IsOpen:   &isOpen,
	}); err != nil {
		t.Fatalf("UpdatePosition returned error: %v", err)
	}

	got, ok := s.Position(id)
	if !ok {
		t.Fatal("expected position to exist")
	}
	if got.IsOpen || got.Quantity != 0 {
		t.Errorf("expected closed position with quantity 0, got IsOpen=%v Quantity=%d", got.IsOpen, got.Quantity)
	}
	if !got.AveragePrice.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected untouched fields to survive partial patch, average_price changed to %s", got.AveragePrice)
	}
}

func TestGetOpenPositionsOrderedByEntryTime(t *testing.T) {
	s := New()
	now := time.Now()
	older := &types.Position{Symbol: "A", Quantity: 1, AveragePrice: decimal.NewFromInt(1), EntryTime: now.Add(-time.Hour), IsOpen: true, Mode: types.ModePaper}
	newer := &types.Position{Symbol: "B", Quantity: 1, AveragePrice: decimal.NewFromInt(1), EntryTime: now, IsOpen: true, Mode: types.ModePaper}
	s.SavePosition(context.Background(), newer)
	s.SavePosition(context.Background(), older)

	got, err := s.GetOpenPositions(context.Background(), types.ModePaper)
	if err != nil {
		t.Fatalf("GetOpenPositions returned error: %v", err)
	}
	if len(got) != 2 || got[0].Symbol != "A" {
		t.Errorf("expected FIFO order by entry time, got %+v", got)
	}
}
