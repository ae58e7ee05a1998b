package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"broadcast-console/internal/domain"
	"broadcast-console/internal/events"
	"broadcast-console/pkg/logger"
	"broadcast-console/pkg/utils"

	"github.com/robfig/cron/v3"
)

// Reconciler bridges the facade to the backend's authoritative
// broadcast record and gates privileged operations behind the operator
// session. It exclusively owns the cached record and the persisted
// connection settings.
type Reconciler struct {
	console  domain.StreamConsole
	backend  domain.BroadcastAPI
	settings domain.SettingsStore
	session  domain.SessionStore
	history  domain.SessionLog
	emitter  *events.Emitter
	log      logger.Logger
	pollSpec string
	cron     *cron.Cron

	mu      sync.Mutex
	entry   cron.EntryID
	polling bool
	record  *domain.BroadcastRecord
	saved   *domain.ConnectionSettings
}

func NewReconciler(
	console domain.StreamConsole,
	backend domain.BroadcastAPI,
	settings domain.SettingsStore,
	session domain.SessionStore,
	history domain.SessionLog,
	emitter *events.Emitter,
	pollSpec string,
	log logger.Logger,
) *Reconciler {
	if pollSpec == "" {
		pollSpec = "@every 5s"
	}

	r := &Reconciler{
		console:  console,
		backend:  backend,
		settings: settings,
		session:  session,
		history:  history,
		emitter:  emitter,
		pollSpec: pollSpec,
		log:      log,
		cron:     cron.New(cron.WithSeconds()),
	}

	// Settings are read once, here; crash recovery reuses them via Resume.
	saved, err := settings.Load(context.Background())
	if err != nil {
		log.Warn("Failed to load persisted connection settings", "error", err)
	} else {
		r.saved = saved
	}

	return r
}

// Connect persists the settings first, so a later crash recovery can
// reuse them even if the connect attempt itself fails, then delegates
// to the facade. On success it fetches the broadcast record and starts
// the polling loop.
func (r *Reconciler) Connect(ctx context.Context, settings *domain.ConnectionSettings) bool {
	if err := r.settings.Save(ctx, settings); err != nil {
		r.log.Error("Failed to persist connection settings", "error", err)
	}
	r.mu.Lock()
	r.saved = settings
	r.mu.Unlock()

	r.console.Configure(fmt.Sprintf("%s:%d", settings.Address, settings.Port), settings.Credential)
	if !r.console.Connect(ctx) {
		return false
	}

	if err := r.refreshRecord(ctx); err != nil {
		r.log.Warn("Failed to fetch broadcast record after connect", "error", err)
	}

	r.startPolling()
	r.appendEvent(ctx, domain.SessionConnected,
		fmt.Sprintf("%s:%d", settings.Address, settings.Port))
	return true
}

// Resume reconnects using the settings persisted by a previous session.
func (r *Reconciler) Resume(ctx context.Context) bool {
	r.mu.Lock()
	saved := r.saved
	r.mu.Unlock()

	if saved == nil {
		r.log.Warn("No persisted connection settings to resume from")
		return false
	}
	return r.Connect(ctx, saved)
}

// Disconnect stops the polling loop and closes the connection. If a
// stream is still running locally it emits a state-transition notice
// but does not force-stop the remote stream.
func (r *Reconciler) Disconnect(ctx context.Context) {
	r.stopPolling()

	if r.console.IsStreaming() {
		r.log.Warn("Disconnecting while stream is live")
		r.emitter.Emit(domain.EventStreamStopped, "disconnect while live")
	}

	r.console.Disconnect()
	r.appendEvent(ctx, domain.SessionDisconnected, "")
}

// StartStreaming requires a live connection, a configured broadcast
// record, and an operator session token. Any missing precondition
// fails the call without touching the facade.
func (r *Reconciler) StartStreaming(ctx context.Context) bool {
	if !r.preconditionsMet(ctx, "start streaming") {
		return false
	}

	if !r.console.StartStreaming(ctx) {
		return false
	}
	r.appendEvent(ctx, domain.SessionStreamStarted, r.videoID())
	return true
}

func (r *Reconciler) StopStreaming(ctx context.Context) bool {
	if !r.preconditionsMet(ctx, "stop streaming") {
		return false
	}

	if !r.console.StopStreaming(ctx) {
		return false
	}
	r.appendEvent(ctx, domain.SessionStreamStopped, r.videoID())
	return true
}

func (r *Reconciler) preconditionsMet(ctx context.Context, op string) bool {
	if !r.console.IsConnected() {
		r.log.Warn("Refusing to "+op, "reason", "not connected")
		return false
	}

	r.mu.Lock()
	record := r.record
	r.mu.Unlock()
	if record == nil {
		// Fetched lazily; still absent means no operator has configured
		// a broadcast yet.
		if err := r.refreshRecord(ctx); err != nil {
			r.log.Warn("Refusing to "+op, "reason", "no broadcast configured", "error", err)
			return false
		}
	}

	token, err := r.session.Token(ctx)
	if err != nil || token == "" {
		r.log.Warn("Refusing to "+op, "reason", "no session token", "error", err)
		return false
	}
	return true
}

// Record returns the cached broadcast record.
func (r *Reconciler) Record() *domain.BroadcastRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record
}

// Settings returns the settings read at construction or saved since.
func (r *Reconciler) Settings() *domain.ConnectionSettings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saved
}

func (r *Reconciler) History(ctx context.Context, limit int) ([]*domain.SessionEvent, error) {
	return r.history.RecentEvents(ctx, limit)
}

// PollOnce is one reconciliation tick: refresh the record and compare
// the backend's live flag against the local streaming flag. Divergence
// is logged and emitted, never auto-corrected; only the local
// streaming app is authoritative for the actual video.
func (r *Reconciler) PollOnce(ctx context.Context) {
	if !r.console.IsConnected() {
		return
	}

	record, err := r.backend.FetchBroadcastState(ctx)
	if err != nil {
		r.log.Warn("Broadcast record poll failed", "error", err)
		return
	}

	r.mu.Lock()
	r.record = record
	r.mu.Unlock()

	local := r.console.IsStreaming()
	if local == record.IsLive {
		return
	}

	notice := domain.DivergenceNotice{
		LocalStreaming: local,
		RemoteLive:     record.IsLive,
		VideoID:        record.VideoID,
		DetectedAt:     time.Now(),
	}
	r.log.Warn("Broadcast state divergence detected",
		"local_streaming", local, "remote_live", record.IsLive, "video_id", record.VideoID)
	r.emitter.Emit(domain.EventBroadcastDivergence, notice)
	r.appendEvent(ctx, domain.SessionDivergence,
		fmt.Sprintf("local=%t remote=%t", local, record.IsLive))
}

func (r *Reconciler) refreshRecord(ctx context.Context) error {
	record, err := r.backend.FetchBroadcastState(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.record = record
	r.mu.Unlock()
	return nil
}

func (r *Reconciler) startPolling() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.polling {
		return
	}

	entry, err := r.cron.AddFunc(r.pollSpec, func() {
		r.PollOnce(context.Background())
	})
	if err != nil {
		r.log.Error("Failed to schedule reconciliation poll", "spec", r.pollSpec, "error", err)
		return
	}

	r.entry = entry
	r.polling = true
	r.cron.Start()
}

func (r *Reconciler) stopPolling() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.polling {
		return
	}
	r.cron.Remove(r.entry)
	r.cron.Stop()
	r.polling = false
}

func (r *Reconciler) videoID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.record == nil {
		return ""
	}
	return r.record.VideoID
}

func (r *Reconciler) appendEvent(ctx context.Context, eventType domain.SessionEventType, detail string) {
	event := &domain.SessionEvent{
		ID:         utils.GenerateID("evt"),
		Type:       eventType,
		Detail:     detail,
		OccurredAt: time.Now(),
	}
	if err := r.history.AppendEvent(ctx, event); err != nil {
		r.log.Error("Failed to append session event", "type", eventType, "error", err)
	}
}
