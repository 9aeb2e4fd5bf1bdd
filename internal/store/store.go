// Package store defines the narrow repository interfaces the core consumes
// from the persistent store (out of scope: its schema/DDL) and ships an
// in-memory implementation for tests and DRY_RUN_MODE.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"tradecore/internal/model"
)

// BotConfigRepository resolves bot configuration by symbol or id. It is
// read-only from the core's perspective — bots are owned by an external
// admin path.
type BotConfigRepository interface {
	BotsForSymbol(ctx context.Context, symbol string) ([]model.BotConfig, error)
	Get(ctx context.Context, botID string) (model.BotConfig, bool, error)
	All(ctx context.Context) ([]model.BotConfig, error)
}

// OrderStateRepository is the authoritative lifecycle log for order trios.
type OrderStateRepository interface {
	Create(ctx context.Context, state model.OrderState) error
	Get(ctx context.Context, botID, signalID string) (model.OrderState, bool, error)
	GetByID(ctx context.Context, id string) (model.OrderState, bool, error)
	Update(ctx context.Context, state model.OrderState) error
	ListByStatus(ctx context.Context, statuses ...model.OrderStatus) ([]model.OrderState, error)
	ListActiveForBot(ctx context.Context, botID string) ([]model.OrderState, error)
}

// InMemoryBotConfigs is a mutex-guarded in-memory BotConfigRepository.
type InMemoryBotConfigs struct {
	mu   sync.RWMutex
	bots map[string]model.BotConfig
}

// NewInMemoryBotConfigs seeds a repository from a fixed slice of bots.
func NewInMemoryBotConfigs(bots []model.BotConfig) *InMemoryBotConfigs {
	m := make(map[string]model.BotConfig, len(bots))
	for _, b := range bots {
		m[b.ID] = b
	}
	return &InMemoryBotConfigs{bots: m}
}

func (r *InMemoryBotConfigs) BotsForSymbol(_ context.Context, symbol string) ([]model.BotConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.BotConfig
	for _, b := range r.bots {
		if b.Symbol == symbol {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *InMemoryBotConfigs) Get(_ context.Context, botID string) (model.BotConfig, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bots[botID]
	return b, ok, nil
}

func (r *InMemoryBotConfigs) All(_ context.Context) ([]model.BotConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.BotConfig, 0, len(r.bots))
	for _, b := range r.bots {
		out = append(out, b)
	}
	return out, nil
}

// Upsert installs or replaces one bot, used by tests to mutate fixtures.
func (r *InMemoryBotConfigs) Upsert(b model.BotConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bots[b.ID] = b
}

// LoadBotConfigsFile reads a JSON array of BotConfig from path. Bot CRUD is
// owned by an external admin path (§1); this is the stand-in that seeds the
// in-memory repository for a standalone run.
func LoadBotConfigsFile(path string) ([]model.BotConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: read bots config file: %w", err)
	}
	var bots []model.BotConfig
	if err := json.Unmarshal(raw, &bots); err != nil {
		return nil, fmt.Errorf("store: parse bots config file: %w", err)
	}
	return bots, nil
}

// InMemoryOrderStates is a mutex-guarded in-memory OrderStateRepository.
type InMemoryOrderStates struct {
	mu     sync.RWMutex
	states map[string]model.OrderState // by id
	byKey  map[string]string           // (bot_id, signal_id) -> id
}

// NewInMemoryOrderStates returns an empty repository.
func NewInMemoryOrderStates() *InMemoryOrderStates {
	return &InMemoryOrderStates{
		states: make(map[string]model.OrderState),
		byKey:  make(map[string]string),
	}
}

func key(botID, signalID string) string {
	return botID + "|" + signalID
}

func (r *InMemoryOrderStates) Create(_ context.Context, state model.OrderState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(state.BotID, state.SignalID)
	if _, exists := r.byKey[k]; exists {
		return fmt.Errorf("order state: (bot_id, signal_id) already exists: %s", k)
	}
	if state.CreatedAt.IsZero() {
		state.CreatedAt = time.Now().UTC()
	}
	state.UpdatedAt = state.CreatedAt
	r.states[state.ID] = state
	r.byKey[k] = state.ID
	return nil
}

func (r *InMemoryOrderStates) Get(_ context.Context, botID, signalID string) (model.OrderState, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[key(botID, signalID)]
	if !ok {
		return model.OrderState{}, false, nil
	}
	s, ok := r.states[id]
	return s, ok, nil
}

func (r *InMemoryOrderStates) GetByID(_ context.Context, id string) (model.OrderState, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[id]
	return s, ok, nil
}

func (r *InMemoryOrderStates) Update(_ context.Context, state model.OrderState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.states[state.ID]; !ok {
		return fmt.Errorf("order state: unknown id %s", state.ID)
	}
	state.UpdatedAt = time.Now().UTC()
	r.states[state.ID] = state
	return nil
}

// ListActiveForBot returns every non-terminal state owned by a bot,
// regardless of symbol/side — used by the DISARM handler and the Monitor's
// orphan sweep.
func (r *InMemoryOrderStates) ListActiveForBot(_ context.Context, botID string) ([]model.OrderState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.OrderState
	for _, s := range r.states {
		if s.BotID == botID && !s.Status.Terminal() {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *InMemoryOrderStates) ListByStatus(_ context.Context, statuses ...model.OrderStatus) ([]model.OrderState, error) {
	want := make(map[model.OrderStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.OrderState
	for _, s := range r.states {
		if want[s.Status] {
			out = append(out, s)
		}
	}
	return out, nil
}
