package services

import (
	"context"
	"sync"
	"time"

	"broadcast-console/internal/domain"
	"broadcast-console/internal/events"
	"broadcast-console/internal/overlay"
	"broadcast-console/pkg/logger"
)

// StreamController is the facade over the streaming tool: scene
// switching, stream start/stop gated on a bound venue, and auction
// overlay lifecycle. It exclusively owns the cached scene set and the
// local streaming flag.
type StreamController struct {
	transport       domain.Transport
	engine          *overlay.Engine
	emitter         *events.Emitter
	log             logger.Logger
	textSource      string
	overlayInterval time.Duration

	mu        sync.RWMutex
	scenes    *domain.SceneSet
	venue     *domain.Venue
	streaming bool
	auction   *domain.AuctionState
}

func NewStreamController(
	transport domain.Transport,
	engine *overlay.Engine,
	emitter *events.Emitter,
	textSource string,
	overlayInterval time.Duration,
	log logger.Logger,
) *StreamController {
	if overlayInterval <= 0 {
		overlayInterval = time.Second
	}
	return &StreamController{
		transport:       transport,
		engine:          engine,
		emitter:         emitter,
		textSource:      textSource,
		overlayInterval: overlayInterval,
		log:             log,
	}
}

// Configure retargets the underlying transport for the next connect.
func (sc *StreamController) Configure(address, password string) {
	sc.transport.SetTarget(address, password)
}

func (sc *StreamController) Connect(ctx context.Context) bool {
	if !sc.transport.Connect(ctx) {
		return false
	}
	if err := sc.RefreshScenes(ctx); err != nil {
		sc.log.Error("Failed to refresh scenes after connect", "error", err)
	}

	// Seed the local streaming flag from the tool; it may already be
	// live after a reconnect.
	if status, err := sc.transport.StreamingStatus(ctx); err == nil {
		sc.mu.Lock()
		sc.streaming = status.Streaming
		sc.mu.Unlock()
	} else {
		sc.log.Warn("Failed to query streaming status after connect", "error", err)
	}
	return true
}

func (sc *StreamController) Disconnect() {
	sc.engine.StopAuctionUpdate()
	sc.transport.Disconnect()

	sc.mu.Lock()
	sc.streaming = false
	sc.mu.Unlock()
}

func (sc *StreamController) IsConnected() bool {
	return sc.transport.Connected()
}

func (sc *StreamController) Phase() domain.ConnPhase {
	return sc.transport.Phase()
}

// BindVenue binds the showroom whose stream key this broadcast uses.
// Streaming operations refuse to run without one.
func (sc *StreamController) BindVenue(venue domain.Venue) {
	sc.mu.Lock()
	sc.venue = &venue
	sc.mu.Unlock()

	sc.log.Info("Venue bound", "venue_id", venue.ID, "venue_name", venue.Name)
}

func (sc *StreamController) Venue() *domain.Venue {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.venue
}

// RefreshScenes replaces the cached scene set wholesale.
func (sc *StreamController) RefreshScenes(ctx context.Context) error {
	set, err := sc.transport.SceneList(ctx)
	if err != nil {
		return err
	}

	sc.mu.Lock()
	sc.scenes = set
	sc.mu.Unlock()
	return nil
}

func (sc *StreamController) Scenes() *domain.SceneSet {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.scenes
}

// SwitchScene is idempotent at the protocol level; re-selecting the
// current scene is harmless.
func (sc *StreamController) SwitchScene(ctx context.Context, name string) error {
	if err := sc.transport.SetCurrentScene(ctx, name); err != nil {
		return err
	}

	sc.mu.Lock()
	if sc.scenes != nil {
		sc.scenes.Current = name
	}
	sc.mu.Unlock()
	return nil
}

func (sc *StreamController) StartStreaming(ctx context.Context) bool {
	if !sc.transport.Connected() {
		sc.log.Warn("Cannot start streaming: not connected")
		return false
	}

	sc.mu.RLock()
	venue := sc.venue
	sc.mu.RUnlock()
	if venue == nil {
		sc.log.Warn("Cannot start streaming: no venue bound")
		return false
	}

	if err := sc.transport.StartStreaming(ctx); err != nil {
		sc.log.Error("Failed to start streaming", "error", err)
		return false
	}

	sc.mu.Lock()
	sc.streaming = true
	sc.mu.Unlock()

	sc.log.Info("Streaming started", "venue_id", venue.ID)
	sc.emitter.Emit(domain.EventStreamStarted, venue)
	return true
}

func (sc *StreamController) StopStreaming(ctx context.Context) bool {
	if !sc.transport.Connected() {
		sc.log.Warn("Cannot stop streaming: not connected")
		return false
	}

	sc.mu.RLock()
	venue := sc.venue
	sc.mu.RUnlock()
	if venue == nil {
		sc.log.Warn("Cannot stop streaming: no venue bound")
		return false
	}

	if err := sc.transport.StopStreaming(ctx); err != nil {
		sc.log.Error("Failed to stop streaming", "error", err)
		return false
	}

	sc.mu.Lock()
	sc.streaming = false
	sc.mu.Unlock()

	sc.log.Info("Streaming stopped", "venue_id", venue.ID)
	sc.emitter.Emit(domain.EventStreamStopped, venue)
	return true
}

func (sc *StreamController) IsStreaming() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.streaming
}

// StartAuction hands the state to the overlay engine and caches it so
// concurrent readers can query the running auction without re-deriving
// it.
func (sc *StreamController) StartAuction(state *domain.AuctionState) {
	sc.mu.Lock()
	sc.auction = state
	sc.mu.Unlock()

	sc.engine.StartAuctionUpdate(state, sc.overlayInterval)
	sc.log.Info("Auction overlay started",
		"make", state.Car.Make, "model", state.Car.Model, "end_time", state.EndTime)
}

func (sc *StreamController) StopAuction() {
	sc.engine.StopAuctionUpdate()

	sc.mu.Lock()
	sc.auction = nil
	sc.mu.Unlock()

	sc.log.Info("Auction overlay stopped")
}

func (sc *StreamController) CurrentAuction() *domain.AuctionState {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auction
}

// UpdateCarInfo goes through the running overlay engine when there is
// one; otherwise it is a one-shot text push that bypasses the engine.
func (sc *StreamController) UpdateCarInfo(ctx context.Context, car domain.CarInfo) error {
	if sc.engine.Running() {
		sc.engine.UpdateCarInfo(car)
		return nil
	}
	return sc.UpdateTextSource(ctx, sc.textSource, overlay.RenderCarInfo(car))
}

func (sc *StreamController) UpdateHighestBidder(bidder domain.Bidder) {
	sc.engine.UpdateHighestBidder(bidder)
}

func (sc *StreamController) ExtendAuctionTime(seconds int) {
	sc.engine.ExtendAuctionTime(seconds)
}

func (sc *StreamController) SetAuctionActive(active bool) {
	sc.engine.SetAuctionActive(active)
}

// UpdateTextSource is the low-level escape hatch: push text straight to
// a source with no auction timer involved.
func (sc *StreamController) UpdateTextSource(ctx context.Context, source, text string) error {
	return sc.transport.SetTextProperties(ctx, source, text)
}

// CreateOverlaySource provisions the overlay text source inside a scene.
func (sc *StreamController) CreateOverlaySource(ctx context.Context, scene string) error {
	return sc.transport.CreateTextSource(ctx, scene, sc.textSource, "")
}
