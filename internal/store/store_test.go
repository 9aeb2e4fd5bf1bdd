package store

import (
	"context"
	"testing"

	"tradecore/internal/model"
)

func TestInMemoryBotConfigs_BotsForSymbolFiltersBySymbol(t *testing.T) {
	repo := NewInMemoryBotConfigs([]model.BotConfig{
		{ID: "b1", Symbol: "BTCUSDT"},
		{ID: "b2", Symbol: "ETHUSDT"},
		{ID: "b3", Symbol: "BTCUSDT"},
	})
	got, err := repo.BotsForSymbol(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 bots for BTCUSDT, got %d", len(got))
	}
}

func TestInMemoryBotConfigs_GetMissingReturnsFalse(t *testing.T) {
	repo := NewInMemoryBotConfigs(nil)
	_, ok, err := repo.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected ok=false for an unknown bot id")
	}
}

func TestInMemoryBotConfigs_UpsertReplacesExisting(t *testing.T) {
	repo := NewInMemoryBotConfigs([]model.BotConfig{{ID: "b1", Symbol: "BTCUSDT", Enabled: false}})
	repo.Upsert(model.BotConfig{ID: "b1", Symbol: "BTCUSDT", Enabled: true})
	got, ok, _ := repo.Get(context.Background(), "b1")
	if !ok || !got.Enabled {
		t.Error("expected upsert to replace the bot's Enabled field")
	}
}

func newOrderState(id, botID, signalID string, status model.OrderStatus) model.OrderState {
	return model.OrderState{ID: id, BotID: botID, SignalID: signalID, Status: status}
}

func TestInMemoryOrderStates_CreateRejectsDuplicateBotSignalPair(t *testing.T) {
	repo := NewInMemoryOrderStates()
	ctx := context.Background()
	s := newOrderState("o1", "bot1", "sig1", model.StatusPending)
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("unexpected error on first create: %v", err)
	}
	dup := newOrderState("o2", "bot1", "sig1", model.StatusPending)
	if err := repo.Create(ctx, dup); err == nil {
		t.Error("expected an error creating a second state for the same (bot_id, signal_id)")
	}
}

func TestInMemoryOrderStates_GetByBotAndSignal(t *testing.T) {
	repo := NewInMemoryOrderStates()
	ctx := context.Background()
	repo.Create(ctx, newOrderState("o1", "bot1", "sig1", model.StatusPending))

	got, ok, err := repo.Get(ctx, "bot1", "sig1")
	if err != nil || !ok {
		t.Fatalf("expected to find the state, ok=%v err=%v", ok, err)
	}
	if got.ID != "o1" {
		t.Errorf("id = %s, want o1", got.ID)
	}

	_, ok, _ = repo.Get(ctx, "bot1", "unknown-sig")
	if ok {
		t.Error("expected ok=false for an unknown signal id")
	}
}

func TestInMemoryOrderStates_UpdateRejectsUnknownID(t *testing.T) {
	repo := NewInMemoryOrderStates()
	err := repo.Update(context.Background(), newOrderState("ghost", "bot1", "sig1", model.StatusClosed))
	if err == nil {
		t.Error("expected an error updating a state that was never created")
	}
}

func TestInMemoryOrderStates_ListActiveForBotExcludesTerminalStatuses(t *testing.T) {
	repo := NewInMemoryOrderStates()
	ctx := context.Background()
	repo.Create(ctx, newOrderState("o1", "bot1", "sig1", model.StatusPending))
	repo.Create(ctx, newOrderState("o2", "bot1", "sig2", model.StatusArmed))
	repo.Create(ctx, newOrderState("o3", "bot1", "sig3", model.StatusClosed))
	repo.Create(ctx, newOrderState("o4", "bot2", "sig4", model.StatusPending))

	got, err := repo.ListActiveForBot(ctx, "bot1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 active states for bot1, got %d", len(got))
	}
	for _, s := range got {
		if s.Status.Terminal() {
			t.Errorf("terminal state %s leaked into ListActiveForBot", s.ID)
		}
	}
}

func TestInMemoryOrderStates_ListByStatusMatchesAnyRequested(t *testing.T) {
	repo := NewInMemoryOrderStates()
	ctx := context.Background()
	repo.Create(ctx, newOrderState("o1", "bot1", "sig1", model.StatusPending))
	repo.Create(ctx, newOrderState("o2", "bot1", "sig2", model.StatusArmed))
	repo.Create(ctx, newOrderState("o3", "bot1", "sig3", model.StatusFilled))
	repo.Create(ctx, newOrderState("o4", "bot1", "sig4", model.StatusClosed))

	got, err := repo.ListByStatus(ctx, model.StatusPending, model.StatusArmed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 states matching pending/armed, got %d", len(got))
	}
}

func TestInMemoryOrderStates_UpdatePersistsStatusTransition(t *testing.T) {
	repo := NewInMemoryOrderStates()
	ctx := context.Background()
	s := newOrderState("o1", "bot1", "sig1", model.StatusPending)
	repo.Create(ctx, s)

	s.Status = model.StatusFilled
	if err := repo.Update(ctx, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _, _ := repo.GetByID(ctx, "o1")
	if got.Status != model.StatusFilled {
		t.Errorf("status = %s, want filled", got.Status)
	}
	if got.UpdatedAt.Before(got.CreatedAt) {
		t.Error("expected UpdatedAt to be no earlier than CreatedAt")
	}
}
