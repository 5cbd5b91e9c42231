package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brocosoup/PulseRelay-public-sub001/internal/location"
)

// State is the sync controller's view of the sharing switch.
type State string

// Controller states. Updating is the transient guard held while a
// user-initiated change is in flight to the server.
const (
	StateUnknown      State = "unknown"
	StateDisabled     State = "disabled"
	StateEnabledGPS   State = "enabled_gps"
	StateEnabledFixed State = "enabled_fixed"
	StateUpdating     State = "updating"
)

// command is a typed transition input for the reducer. Using commands
// instead of a "suppress my own callback" flag makes the origin of each
// transition explicit: remote applies never loop back to the server.
type command interface {
	isCommand()
}

// applyRemote adopts a server-confirmed settings record verbatim.
type applyRemote struct {
	settings *location.Settings
}

// userChange is a user-initiated toggle or reconfiguration that is
// about to be sent to the server.
type userChange struct{}

// serviceStopped records that the user stopped the tracking service.
type serviceStopped struct{}

func (applyRemote) isCommand()    {}
func (userChange) isCommand()     {}
func (serviceStopped) isCommand() {}

// reduce maps the current state and a command to the next state. It is
// pure; all side effects (persistence, tracker control, network) are
// applied by the controller after the transition.
func reduce(state State, cmd command) State {
	switch c := cmd.(type) {
	case applyRemote:
		return stateFor(c.settings)
	case userChange:
		return StateUpdating
	case serviceStopped:
		// The sharing switch is untouched; only the tracker stopped.
		return state
	default:
		return state
	}
}

// stateFor derives the switch state from a settings record.
func stateFor(s *location.Settings) State {
	if s == nil {
		return StateUnknown
	}
	if !s.Enabled {
		return StateDisabled
	}
	if s.Mode == location.ModeFixed {
		return StateEnabledFixed
	}
	return StateEnabledGPS
}

// Tracker is the device's GPS tracking sub-service.
type Tracker interface {
	Start() error
	Stop()
	Running() bool
}

// FixProvider supplies GPS fixes. LastKnown returns a cached fix if one
// is available; Fresh blocks for a new fix and honors cancellation.
type FixProvider interface {
	LastKnown() (*location.Sample, bool)
	Fresh(ctx context.Context) (*location.Sample, error)
}

// Controller reconciles the device's sharing switch with the server.
// The server copy is authoritative: every confirmed response (fetch or
// update echo) overwrites the local baseline, and racing completions
// resolve as last-writer-wins.
type Controller struct {
	api     API
	store   *DeviceStore
	tracker Tracker
	fixes   FixProvider
	logger  *slog.Logger

	mu       sync.Mutex
	state    State
	baseline *location.Settings

	// userStopped is set when the user explicitly stops tracking in
	// this session; the auto-start rule then stays quiet until the next
	// user-initiated enable.
	userStopped bool
}

// NewController creates a sync controller. logger may be nil.
func NewController(api API, store *DeviceStore, tracker Tracker, fixes FixProvider, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		api:     api,
		store:   store,
		tracker: tracker,
		fixes:   fixes,
		logger:  logger,
		state:   StateUnknown,
	}
}

// State returns the current switch state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Settings returns a copy of the current baseline, or nil before the
// first successful sync.
func (c *Controller) Settings() *location.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.baseline == nil {
		return nil
	}
	return c.baseline.Clone()
}

// Sync fetches the server's settings and applies them locally. Called
// on load and resume, and periodically by Run.
func (c *Controller) Sync(ctx context.Context) error {
	settings, err := c.api.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch settings: %w", err)
	}
	c.adoptRemote(ctx, settings)
	return nil
}

// adoptRemote applies a server-confirmed record: transition, baseline
// overwrite, device-store mirror, and the tracker rules.
func (c *Controller) adoptRemote(ctx context.Context, settings *location.Settings) {
	c.mu.Lock()
	c.state = reduce(c.state, applyRemote{settings})
	c.baseline = settings.Clone()
	autoStart, userStopped := c.mirrorToStore(settings), c.userStopped
	c.mu.Unlock()

	if !settings.Enabled {
		// Server-confirmed disablement forces tracking off unconditionally.
		if c.tracker.Running() {
			c.tracker.Stop()
			c.logger.InfoContext(ctx, "tracking stopped: sharing disabled on server")
		}
		return
	}

	// Server-confirmed enablement only offers to start tracking: the
	// auto-start preference must be set and the user must not have
	// stopped the tracker in this session.
	if autoStart && !userStopped && !c.tracker.Running() {
		if err := c.tracker.Start(); err != nil {
			c.logger.WarnContext(ctx, "failed to auto-start tracking", "error", err)
		} else {
			c.logger.InfoContext(ctx, "tracking auto-started")
		}
	}
}

// mirrorToStore persists the shareable fields of a confirmed record to
// the device store and returns the stored auto-start preference.
// Callers hold c.mu.
func (c *Controller) mirrorToStore(settings *location.Settings) bool {
	state, err := c.store.Load()
	if err != nil {
		c.logger.Warn("failed to load device store", "error", err)
		state = &DeviceState{}
	}

	state.LocationMode = string(settings.Mode)
	state.FixedLatitude = settings.FixedLatitude
	state.FixedLongitude = settings.FixedLongitude
	if settings.FixedLocationName != nil {
		state.FixedLocationName = *settings.FixedLocationName
	} else {
		state.FixedLocationName = ""
	}

	if err := c.store.Save(state); err != nil {
		c.logger.Warn("failed to persist device store", "error", err)
	}
	return state.AutoStart
}

// SetSharingEnabled handles a user-initiated toggle. Validation happens
// locally first; a local failure reverts without a network call. On
// server rejection the previous baseline is restored and the error
// surfaced; on success the server's echoed record becomes the new
// baseline.
func (c *Controller) SetSharingEnabled(ctx context.Context, enabled bool) error {
	c.mu.Lock()
	prev := c.baseline
	if prev == nil {
		c.mu.Unlock()
		return fmt.Errorf("settings not synced yet")
	}

	desired := prev.Clone()
	desired.Enabled = enabled

	if err := desired.Validate(); err != nil {
		// Local validation failure: the switch visually reverts and the
		// server is never called.
		c.mu.Unlock()
		return err
	}

	c.state = reduce(c.state, userChange{})
	if enabled {
		// A deliberate enable clears the "user stopped it" latch.
		c.userStopped = false
	}
	c.mu.Unlock()

	return c.submit(ctx, prev, desired)
}

// ConfigureFixed handles user entry of a fixed location: parse with
// locale-aware separators, range-check, then persist mode=fixed.
func (c *Controller) ConfigureFixed(ctx context.Context, latRaw, lngRaw, name string) error {
	lat, lng, err := ParseFixedCoordinates(latRaw, lngRaw)
	if err != nil {
		return err
	}

	c.mu.Lock()
	prev := c.baseline
	if prev == nil {
		c.mu.Unlock()
		return fmt.Errorf("settings not synced yet")
	}

	desired := prev.Clone()
	desired.Mode = location.ModeFixed
	desired.FixedLatitude = &lat
	desired.FixedLongitude = &lng
	if name != "" {
		desired.FixedLocationName = &name
	}

	c.state = reduce(c.state, userChange{})
	c.mu.Unlock()

	return c.submit(ctx, prev, desired)
}

// ConfigureGPS switches the share source back to live GPS fixes.
func (c *Controller) ConfigureGPS(ctx context.Context) error {
	c.mu.Lock()
	prev := c.baseline
	if prev == nil {
		c.mu.Unlock()
		return fmt.Errorf("settings not synced yet")
	}

	desired := prev.Clone()
	desired.Mode = location.ModeGPS

	c.state = reduce(c.state, userChange{})
	c.mu.Unlock()

	return c.submit(ctx, prev, desired)
}

// submit sends a user-initiated change and resolves the Updating state:
// revert to prev on failure, adopt the server echo on success.
func (c *Controller) submit(ctx context.Context, prev, desired *location.Settings) error {
	stored, err := c.api.UpdateSettings(ctx, desired)
	if err != nil {
		c.adoptRemote(ctx, prev)
		return err
	}
	c.adoptRemote(ctx, stored)
	return nil
}

// SetAutoStart persists the local auto-start preference. This never
// touches the server; it only gates the auto-start rule.
func (c *Controller) SetAutoStart(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.store.Load()
	if err != nil {
		return err
	}
	state.AutoStart = enabled
	return c.store.Save(state)
}

// NotifyServiceStopped records that the user stopped the tracking
// service. The sharing switch is untouched, but auto-start stays quiet
// for the rest of the session.
func (c *Controller) NotifyServiceStopped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = reduce(c.state, serviceStopped{})
	c.userStopped = true
}

// ShareFix acquires one GPS fix and submits it. A cached fix satisfies
// the share immediately and cancels the in-flight fresh request, so a
// single user action never produces two sends.
func (c *Controller) ShareFix(ctx context.Context) error {
	if c.State() != StateEnabledGPS {
		return fmt.Errorf("gps sharing is not active")
	}

	fctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type freshResult struct {
		fix *location.Sample
		err error
	}
	fresh := make(chan freshResult, 1)
	go func() {
		fix, err := c.fixes.Fresh(fctx)
		fresh <- freshResult{fix, err}
	}()

	if fix, ok := c.fixes.LastKnown(); ok {
		cancel()
		return c.api.SendSample(ctx, fix)
	}

	select {
	case res := <-fresh:
		if res.err != nil {
			return fmt.Errorf("failed to acquire fix: %w", res.err)
		}
		return c.api.SendSample(ctx, res.fix)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ShareFixed submits the configured fixed coordinate as a sample. Fixed
// shares write through the same sample path as GPS shares.
func (c *Controller) ShareFixed(ctx context.Context) error {
	c.mu.Lock()
	baseline := c.baseline
	c.mu.Unlock()

	if stateFor(baseline) != StateEnabledFixed {
		return fmt.Errorf("fixed sharing is not active")
	}
	if baseline.FixedLatitude == nil || baseline.FixedLongitude == nil {
		return location.ErrFixedLocationRequired
	}

	return c.api.SendSample(ctx, &location.Sample{
		Latitude:  *baseline.FixedLatitude,
		Longitude: *baseline.FixedLongitude,
	})
}

// resyncEvery is how often Run refreshes settings from the server in
// addition to the per-interval shares.
const resyncEvery = time.Minute

// Run drives the reporting loop until ctx is cancelled: an initial
// sync, then one share per configured update interval while sharing is
// enabled, with periodic re-syncs so remote disablement takes effect.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Sync(ctx); err != nil {
		return err
	}

	resync := time.NewTicker(resyncEvery)
	defer resync.Stop()

	for {
		interval := c.updateInterval()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-resync.C:
			if err := c.Sync(ctx); err != nil {
				c.logger.WarnContext(ctx, "settings re-sync failed", "error", err)
			}
		case <-time.After(interval):
			c.shareOnce(ctx)
		}
	}
}

func (c *Controller) shareOnce(ctx context.Context) {
	var err error
	switch c.State() {
	case StateEnabledGPS:
		err = c.ShareFix(ctx)
	case StateEnabledFixed:
		err = c.ShareFixed(ctx)
	default:
		return
	}
	if err != nil {
		if IsSharingDisabled(err) {
			// The server gate closed between syncs; pick it up now.
			if syncErr := c.Sync(ctx); syncErr != nil {
				c.logger.WarnContext(ctx, "settings re-sync failed", "error", syncErr)
			}
			return
		}
		c.logger.WarnContext(ctx, "share failed", "error", err)
	}
}

// updateInterval returns the reporting cadence, clamped to the allowed
// bounds, with the default when no baseline exists yet.
func (c *Controller) updateInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	seconds := uint32(location.DefaultUpdateInterval)
	if c.baseline != nil && c.baseline.UpdateInterval > 0 {
		seconds = c.baseline.UpdateInterval
	}
	if seconds < location.MinUpdateInterval {
		seconds = location.MinUpdateInterval
	}
	if seconds > location.MaxUpdateInterval {
		seconds = location.MaxUpdateInterval
	}
	return time.Duration(seconds) * time.Second
}
