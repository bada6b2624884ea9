// Package engine runs the per-cycle usage resolution: pick the best credential
// source, hit the matching remote endpoint, enrich with local log stats, and
// fall back gracefully until nothing is left. One Refresh call produces exactly
// one Result; the poll loop in Run just schedules those calls.
package engine

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/janekbaraniewski/claudeusage/internal/api"
	"github.com/janekbaraniewski/claudeusage/internal/config"
	"github.com/janekbaraniewski/claudeusage/internal/cookies"
	"github.com/janekbaraniewski/claudeusage/internal/core"
	"github.com/janekbaraniewski/claudeusage/internal/creds"
	"github.com/janekbaraniewski/claudeusage/internal/history"
	"github.com/janekbaraniewski/claudeusage/internal/localstats"
	"github.com/janekbaraniewski/claudeusage/internal/notify"
)

type Orchestrator struct {
	cfg     config.Config
	cfgPath string

	creds    *creds.Store
	local    *localstats.Aggregator
	history  *history.Log
	notifier *notify.Notifier
	log      zerolog.Logger

	// Test seams: empty means production endpoints.
	apiBase string
	webBase string
	// discoverSessionKey pulls the sessionKey out of the desktop app's cookie
	// store when none is configured.
	discoverSessionKey func() (string, error)

	// cycleMu ensures at most one refresh cycle runs at a time; a tick that
	// lands mid-cycle is dropped rather than queued.
	cycleMu sync.Mutex

	mu   sync.Mutex
	last *core.Result

	refreshCh chan struct{}
}

func New(cfg config.Config, cfgPath string, credStore *creds.Store, local *localstats.Aggregator, hist *history.Log, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		cfgPath: cfgPath,
		creds:   credStore,
		local:   local,
		history: hist,
		notifier: notify.New(cfg.Notify.Thresholds,
			cfg.Notify.FiveHour, cfg.Notify.Weekly, log),
		log:                log,
		discoverSessionKey: cookies.SessionKey,
		refreshCh:          make(chan struct{}, 1),
	}
}

// SetBaseURLs redirects remote endpoints (tests).
func (o *Orchestrator) SetBaseURLs(apiBase, webBase string) {
	o.apiBase = apiBase
	o.webBase = webBase
}

// SetSessionKeyDiscovery replaces desktop cookie extraction (tests).
func (o *Orchestrator) SetSessionKeyDiscovery(fn func() (string, error)) {
	o.discoverSessionKey = fn
}

// Refresh runs one resolution cycle and returns its result. Source priority:
// OAuth bearer token, then sessionKey cookie, then local logs alone. A cycle
// never fails; the worst outcome is an Unavailable result.
func (o *Orchestrator) Refresh(ctx context.Context) core.Result {
	at := time.Now()

	cred := o.resolveCredential(ctx)

	triedRemote := false
	var remote *core.UsageSnapshot

	if cred != nil {
		triedRemote = true
		remote = o.fetchBearer(ctx, cred)
	}
	if remote == nil {
		if key := o.sessionKey(); key != "" {
			triedRemote = true
			remote = o.fetchViaCookie(ctx, key)
		}
	}

	local := o.local.Snapshot()

	if remote != nil {
		snap := overlay(*remote, local, cred)
		o.history.Append(at, snap.FiveHourPct, snap.WeeklyPct)
		return o.store(core.Ok(&snap, at))
	}

	if local != nil {
		return o.store(core.Ok(local, at))
	}

	reason := core.ReasonNoData
	if triedRemote {
		reason = core.ReasonBlocked
	}
	return o.store(core.Unavailable(reason, at))
}

// resolveCredential reads the credential and refreshes it when it is inside
// the expiry slack. A failed refresh drops the credential for this cycle;
// the file is left for the CLI to sort out.
func (o *Orchestrator) resolveCredential(ctx context.Context) *creds.Credential {
	cred := o.creds.Read()
	if cred == nil {
		return nil
	}

	if o.creds.IsExpired(cred) {
		cred = o.creds.Refresh(ctx, cred)
		if cred == nil {
			return nil
		}
	}

	if cred.SubscriptionType != "" && cred.SubscriptionType != o.cfg.SubscriptionType {
		o.cfg.SubscriptionType = cred.SubscriptionType
		if err := config.SaveSubscriptionTypeTo(o.cfgPath, cred.SubscriptionType); err != nil {
			o.log.Debug().Err(err).Msg("could not cache subscription type")
		}
	}

	return cred
}

func (o *Orchestrator) fetchBearer(ctx context.Context, cred *creds.Credential) *core.UsageSnapshot {
	c := api.NewBearerClient(cred.AccessToken, o.log)
	if o.apiBase != "" {
		c.SetBaseURLs(o.apiBase, o.webBase)
	}
	return c.FetchBearerUsage(ctx, cred.SubscriptionType)
}

// sessionKey returns the configured sessionKey, falling back to desktop
// cookie discovery. Discovery failures just mean cookie mode is out.
func (o *Orchestrator) sessionKey() string {
	if o.cfg.SessionKey != "" {
		return o.cfg.SessionKey
	}
	key, err := o.discoverSessionKey()
	if err != nil {
		o.log.Debug().Err(err).Msg("desktop session key discovery failed")
		return ""
	}
	return key
}

// fetchViaCookie resolves the org id (cached in config after first discovery)
// and fetches the org-scoped usage.
func (o *Orchestrator) fetchViaCookie(ctx context.Context, sessionKey string) *core.UsageSnapshot {
	c := api.NewCookieClient(sessionKey, o.log)
	if o.apiBase != "" {
		c.SetBaseURLs(o.apiBase, o.webBase)
	}

	orgID := o.cfg.OrgID
	if orgID == "" {
		orgID = c.GetOrgID(ctx)
		if orgID == "" {
			return nil
		}
		o.cfg.OrgID = orgID
		if err := config.SaveOrgIDTo(o.cfgPath, orgID); err != nil {
			o.log.Debug().Err(err).Msg("could not cache org id")
		}
	}

	return c.FetchOrgUsage(ctx, orgID)
}

// overlay enriches a remote snapshot with the local-only detail the API does
// not expose: message/token counters, cost, burn rate, per-model and
// per-project breakdowns. The remote percentages and resets stay untouched.
func overlay(remote core.UsageSnapshot, local *core.UsageSnapshot, cred *creds.Credential) core.UsageSnapshot {
	if cred != nil && cred.SubscriptionType != "" {
		remote.Plan = core.NormalizePlan(cred.SubscriptionType, remote.Plan)
	}
	if local == nil {
		return remote
	}

	remote.TodayMessages = local.TodayMessages
	remote.TodayTokens = local.TodayTokens
	remote.TodayInputTokens = local.TodayInputTokens
	remote.TodayOutputTokens = local.TodayOutputTokens
	remote.TodayCacheReadTokens = local.TodayCacheReadTokens
	remote.TodayCacheWriteTokens = local.TodayCacheWriteTokens
	remote.TodayCostUSD = local.TodayCostUSD
	remote.BurnRateTokensPerHour = local.BurnRateTokensPerHour
	remote.BurnRateCostPerHour = local.BurnRateCostPerHour
	remote.WeeklyMessages = local.WeeklyMessages
	remote.WeeklyTokens = local.WeeklyTokens
	remote.ModelTokensToday = local.ModelTokensToday
	remote.ProjectMessagesToday = local.ProjectMessagesToday
	remote.TodayFirstMessageAt = local.TodayFirstMessageAt
	return remote
}

func (o *Orchestrator) store(res core.Result) core.Result {
	o.mu.Lock()
	o.last = &res
	o.mu.Unlock()
	return res
}

// Last returns the most recent cycle result, or nil before the first cycle.
func (o *Orchestrator) Last() *core.Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// CheckThresholds feeds a snapshot through the notifier.
func (o *Orchestrator) CheckThresholds(snap *core.UsageSnapshot) []core.NotificationEvent {
	return o.notifier.Check(snap)
}

// History returns the persisted utilization samples.
func (o *Orchestrator) History() []core.HistoryPoint {
	return o.history.Points()
}

// RefreshNow requests an immediate cycle from the Run loop. Safe to call from
// any goroutine; coalesces when a request is already pending.
func (o *Orchestrator) RefreshNow() {
	select {
	case o.refreshCh <- struct{}{}:
	default:
	}
}

// Run polls at the configured interval until ctx is done. Changes to the
// credentials or config file trigger an immediate cycle so an external token
// refresh shows up without waiting out the interval.
func (o *Orchestrator) Run(ctx context.Context) {
	interval := time.Duration(o.cfg.RefreshIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	watcher := o.startWatcher()
	if watcher != nil {
		defer watcher.Close()
	}

	o.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.cycle(ctx)
		case <-o.refreshCh:
			o.cycle(ctx)
		}
	}
}

func (o *Orchestrator) cycle(ctx context.Context) {
	if !o.cycleMu.TryLock() {
		o.log.Debug().Msg("refresh cycle already running, skipping tick")
		return
	}
	defer o.cycleMu.Unlock()

	res := o.Refresh(ctx)
	if !res.OK() {
		o.log.Warn().Str("reason", string(res.Unavailable)).Msg("usage unavailable")
		return
	}

	snap := res.Snapshot
	o.log.Info().
		Int("five_hour_pct", snap.FiveHourPct).
		Int("weekly_pct", snap.WeeklyPct).
		Str("plan", snap.Plan).
		Bool("local_only", snap.IsLocalOnly).
		Msg("usage refreshed")

	for _, ev := range o.CheckThresholds(snap) {
		o.log.Warn().
			Str("window", ev.Window).
			Int("threshold", ev.Threshold).
			Int("pct", ev.Pct).
			Msg("usage threshold reached")
	}
}

// startWatcher watches the directories holding the credentials and config
// files. Watching directories instead of the files survives the whole-file
// rename-replace writes most tools do. Our own org-id and subscription saves
// land here too; they cost one extra cycle and then settle.
func (o *Orchestrator) startWatcher() *fsnotify.Watcher {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		o.log.Debug().Err(err).Msg("file watcher unavailable")
		return nil
	}

	watched := map[string]bool{
		o.creds.Path(): true,
		o.cfgPath:      true,
	}
	for path := range watched {
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			o.log.Debug().Err(err).Str("dir", filepath.Dir(path)).Msg("cannot watch dir")
		}
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !watched[ev.Name] {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				o.log.Debug().Str("file", ev.Name).Msg("watched file changed, refreshing")
				o.reloadConfig(ev.Name)
				o.RefreshNow()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				o.log.Debug().Err(err).Msg("file watcher error")
			}
		}
	}()

	return watcher
}

// reloadConfig re-reads the config after an external edit so session key and
// notification changes apply without a restart. The poll interval keeps its
// startup value until the next restart.
func (o *Orchestrator) reloadConfig(changed string) {
	if changed != o.cfgPath {
		return
	}
	cfg, err := config.LoadFrom(o.cfgPath)
	if err != nil {
		o.log.Debug().Err(err).Msg("config reload failed")
		return
	}

	// Wait out any in-flight cycle so it never sees a half-updated config.
	o.cycleMu.Lock()
	o.cfg.SessionKey = cfg.SessionKey
	o.cfg.OrgID = cfg.OrgID
	o.cfg.Notify = cfg.Notify
	o.cfg.ShowRemaining = cfg.ShowRemaining
	o.cycleMu.Unlock()
}
