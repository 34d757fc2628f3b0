package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ludoteca/ludoteca/internal/game/room"
	"github.com/ludoteca/ludoteca/internal/protocol"
)

// Recorder reports game lifecycle transitions to durable storage so a
// restarted process cannot re-hydrate a room whose game already started.
// Implementations must tolerate being called from hot paths; failures are
// logged, never fatal.
type Recorder interface {
	RecordStarted(ctx context.Context, roomID string) error
	RecordFinished(ctx context.Context, roomID string, results protocol.GameResults) error
}

// NopRecorder discards all lifecycle reports.
type NopRecorder struct{}

func (NopRecorder) RecordStarted(context.Context, string) error { return nil }
func (NopRecorder) RecordFinished(context.Context, string, protocol.GameResults) error {
	return nil
}

// Session binds one live room to one adapter instance and owns the
// authoritative game state. At most one Session exists per room id at any
// time; the Manager upholds that invariant.
type Session struct {
	room     *room.Room
	adapter  Adapter
	recorder Recorder
	logger   *zap.Logger

	tickPeriod time.Duration

	mu       sync.Mutex
	state    State
	lastTick time.Time
	finished bool
	stopped  bool
	quit     chan struct{}
}

// New constructs a session, building the initial game state from the
// room's config (or the adapter's default) and current player roster.
//
// Precondition: r, adapter, recorder, and logger must be non-nil;
// tickPeriod must be positive.
func New(r *room.Room, adapter Adapter, cfg map[string]any, tickPeriod time.Duration, recorder Recorder, logger *zap.Logger) *Session {
	if cfg == nil {
		cfg = adapter.DefaultConfig()
	}
	return &Session{
		room:       r,
		adapter:    adapter,
		recorder:   recorder,
		logger:     logger,
		tickPeriod: tickPeriod,
		state:      adapter.CreateInitialState(cfg, r.PlayerIDs()),
		quit:       make(chan struct{}),
	}
}

// State returns the current authoritative game state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Finished reports whether the game reached a terminal state.
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Start flips the room to playing, announces the initial state, and begins
// the tick loop if the adapter is time-driven.
func (s *Session) Start() {
	s.room.MarkPlaying()
	s.room.Broadcast(protocol.NewGameStarted(s.State()))

	s.reportStarted()

	if _, ok := s.adapter.(TickingAdapter); ok {
		s.mu.Lock()
		s.lastTick = time.Now()
		s.mu.Unlock()
		go s.tickLoop()
	}

	s.logger.Info("game started",
		zap.String("room_id", s.room.ID()),
		zap.String("game_slug", s.room.GameSlug()),
		zap.Int("players", s.room.PlayerCount()),
	)
}

// HandleAction validates and applies a player action. A rejected action
// yields a targeted INVALID_ACTION error and no state change; an accepted
// one replaces the state and broadcasts it, then checks for completion.
// An adapter panic degrades to a targeted error rather than crashing the
// room.
func (s *Session) HandleAction(playerID string, payload map[string]any) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("adapter panicked handling action",
				zap.String("room_id", s.room.ID()),
				zap.String("player_id", playerID),
				zap.Any("panic", rec),
			)
			s.room.SendTo(playerID, protocol.NewError(protocol.CodeInvalidAction, "acción no válida"))
		}
	}()

	action := Action{PlayerID: playerID, Payload: payload}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished || s.stopped {
		return
	}

	if !s.adapter.ValidateAction(s.state, action) {
		s.room.SendTo(playerID, protocol.NewError(protocol.CodeInvalidAction, "acción no válida"))
		return
	}

	s.state = s.adapter.ApplyAction(s.state, action)
	s.room.Broadcast(protocol.NewGameState(s.state))

	if s.adapter.IsFinished(s.state) {
		s.finishLocked()
	}
}

// tickLoop drives the adapter's time transition at the fixed tick period
// until the session stops or finishes.
func (s *Session) tickLoop() {
	ticker := time.NewTicker(s.tickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			if !s.processTick() {
				return
			}
		}
	}
}

// processTick applies one tick. Returns false when the loop should exit.
func (s *Session) processTick() (alive bool) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("adapter panicked on tick",
				zap.String("room_id", s.room.ID()),
				zap.Any("panic", rec),
			)
			alive = true
		}
	}()

	ticking := s.adapter.(TickingAdapter)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished || s.stopped {
		return false
	}

	now := time.Now()
	delta := now.Sub(s.lastTick).Milliseconds()
	s.lastTick = now

	s.state = ticking.Tick(s.state, delta)
	s.room.Broadcast(protocol.NewGameState(s.state))

	if s.adapter.IsFinished(s.state) {
		s.finishLocked()
		return false
	}
	return true
}

// finishLocked ends the game: marks it finished, stops the tick loop, and
// announces the rankings. Caller must hold s.mu.
func (s *Session) finishLocked() {
	s.finished = true
	s.stopLocked()

	s.room.MarkFinished()
	results := s.adapter.CalculateResults(s.state)
	s.room.Broadcast(protocol.NewGameFinished(results))

	s.reportFinished(results)

	s.logger.Info("game finished",
		zap.String("room_id", s.room.ID()),
		zap.Int("ranked_players", len(results.Rankings)),
	)
}

// Stop cancels any tick loop. Idempotent; safe when no loop is running.
// After Stop returns, no further tick begins processing.
func (s *Session) Stop() {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
}

func (s *Session) stopLocked() {
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.quit)
}

func (s *Session) reportStarted() {
	roomID := s.room.ID()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.recorder.RecordStarted(ctx, roomID); err != nil {
			s.logger.Warn("recording game start",
				zap.String("room_id", roomID),
				zap.Error(err),
			)
		}
	}()
}

func (s *Session) reportFinished(results protocol.GameResults) {
	roomID := s.room.ID()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.recorder.RecordFinished(ctx, roomID, results); err != nil {
			s.logger.Warn("recording game finish",
				zap.String("room_id", roomID),
				zap.Error(err),
			)
		}
	}()
}
