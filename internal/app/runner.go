package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	clts "polysentry/clients"
	"polysentry/clients/discord"
	"polysentry/clients/notifier"
	"polysentry/clients/telegram"
	"polysentry/config"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ensure Runner implements ConfigObserver
var _ config.ConfigObserver = (*Runner)(nil)

// Build info - populated from embedded VCS info at init time
var (
	BuildCommit = "dev"
	BuildTime   = "unknown"
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if setting.Value != "" {
					BuildCommit = setting.Value
				}
			case "vcs.time":
				BuildTime = setting.Value
			}
		}
	}
}

// Runner wires the monitor, the command listeners and the stats server
// together and drives the cycle schedule.
//
// Cycles never overlap: a trigger that fires while a cycle is still running
// is dropped and counted in CyclesSkipped.
type Runner struct {
	logger      *zap.Logger
	clients     *clts.Clients
	liveConfig  *config.LiveConfig
	monitor     *Monitor
	subscribers *SubscriberRegistry
	commands    *CommandHandler
	broadcaster *Broadcaster
	startTime   time.Time

	running       atomic.Bool
	cyclesRun     atomic.Int64
	cyclesSkipped atomic.Int64

	lastReportMu sync.RWMutex
	lastReport   *CycleReport

	intervalCh chan time.Duration
}

func NewRunner(clients *clts.Clients, liveConfig *config.LiveConfig) *Runner {
	logger := clients.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := liveConfig.Get()

	subscribers := NewSubscriberRegistry()
	broadcaster := NewBroadcaster(logger, clients.Notifier, subscribers)
	monitor := NewMonitor(
		logger,
		clients.Polymarket,
		NewStalenessCache(cfg.Monitor.RecheckWindow),
		NewAlertLog(),
		broadcaster,
		MonitorConfigFrom(cfg),
	)

	return &Runner{
		logger:      logger,
		clients:     clients,
		liveConfig:  liveConfig,
		monitor:     monitor,
		subscribers: subscribers,
		commands:    NewCommandHandler(logger, subscribers),
		broadcaster: broadcaster,
		startTime:   time.Now(),
		intervalCh:  make(chan time.Duration, 1),
	}
}

// Subscribers exposes the subscriber registry.
func (r *Runner) Subscribers() *SubscriberRegistry { return r.subscribers }

// OnConfigUpdate is called when the config changes.
// Implements config.ConfigObserver interface.
func (r *Runner) OnConfigUpdate(cfg *config.Config) {
	r.logger.Info("config update received, propagating to monitor")

	r.monitor.UpdateConfig(MonitorConfigFrom(cfg))

	// replace any pending interval change with the latest one
	select {
	case <-r.intervalCh:
	default:
	}
	r.intervalCh <- cfg.Monitor.CycleInterval
}

// seedSubscribers subscribes the configured default chat/channel for the
// current stage on every enabled channel.
func (r *Runner) seedSubscribers(cfg *config.Config) {
	defaults := map[string]string{
		telegram.ChannelName: cfg.TelegramChatID(),
		discord.ChannelName:  cfg.DiscordChannelID(),
	}

	for channel, chatID := range defaults {
		if chatID == "" {
			continue
		}
		if _, ok := r.clients.Notifier.Channel(channel); !ok {
			continue
		}
		dest := notifier.Destination{Channel: channel, ChatID: chatID}
		if r.subscribers.Subscribe(dest) {
			r.logger.Info("default subscriber added", zap.String("destination", dest.String()))
		}
	}
}

// TriggerCycle runs a cycle unless one is already in flight.
// Returns false when the trigger was dropped.
func (r *Runner) TriggerCycle(ctx context.Context) (CycleReport, bool) {
	if !r.running.CompareAndSwap(false, true) {
		r.cyclesSkipped.Add(1)
		r.logger.Warn("previous monitoring cycle still running, skipping trigger")
		return CycleReport{}, false
	}
	defer r.running.Store(false)

	report := r.monitor.RunCycle(ctx)
	r.cyclesRun.Add(1)

	r.lastReportMu.Lock()
	r.lastReport = &report
	r.lastReportMu.Unlock()

	return report, true
}

// RunOnce seeds default subscribers and runs a single cycle.
func (r *Runner) RunOnce(ctx context.Context) CycleReport {
	r.seedSubscribers(r.liveConfig.Get())
	report, _ := r.TriggerCycle(ctx)
	return report
}

func (r *Runner) Run(ctx context.Context) error {
	cfg := r.liveConfig.Get()

	// Register as config observer for hot-reload
	r.liveConfig.AddObserver(r)

	r.seedSubscribers(cfg)

	r.logger.Info("starting monitor",
		zap.Duration("cycleInterval", cfg.Monitor.CycleInterval),
		zap.Duration("recheckWindow", cfg.Monitor.RecheckWindow),
		zap.Int("channels", r.clients.Notifier.Count()),
		zap.Int("subscribers", r.subscribers.Len()),
		// carried in config but not read by any rule
		zap.Float64("nicheMarketVolumeMax", cfg.Detection.NicheMarketVolumeMax),
		zap.Int("repeatedEntriesCount", cfg.Detection.RepeatedEntriesCount),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		r.schedule(gctx, cfg.Monitor.CycleInterval)
		return nil
	})

	for _, ch := range r.clients.Notifier.Channels() {
		g.Go(func() error {
			// a broken listener must not take down the monitor
			if err := ch.Listen(gctx, r.commands.Handle); err != nil {
				r.logger.Error("command listener stopped",
					zap.String("channel", ch.Name()),
					zap.Error(err),
				)
			}
			return nil
		})
	}

	if cfg.HealthServer.Enabled {
		srv := r.newStatsServer(cfg.HealthServer.Port)
		g.Go(func() error {
			r.logger.Info("health server started", zap.Int("port", cfg.HealthServer.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	r.logger.Info("runner shutting down")
	return err
}

// schedule runs one cycle immediately, then one per interval until ctx is done.
// Each cycle runs on its own goroutine so the ticker keeps firing and overlap
// is handled by TriggerCycle.
func (r *Runner) schedule(ctx context.Context, interval time.Duration) {
	var wg sync.WaitGroup
	defer wg.Wait()

	fire := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.TriggerCycle(ctx)
		}()
	}

	fire()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-r.intervalCh:
			if d > 0 && d != interval {
				interval = d
				ticker.Reset(d)
				r.logger.Info("cycle interval updated", zap.Duration("interval", d))
			}
		case <-ticker.C:
			fire()
		}
	}
}

// ServiceStats holds service statistics for the stats endpoints.
type ServiceStats struct {
	// Build info
	Build struct {
		Commit    string `json:"commit"`
		Time      string `json:"time,omitempty"`
		GoVersion string `json:"go_version"`
	} `json:"build"`

	// Service info
	StartTime string `json:"start_time"`
	Uptime    string `json:"uptime"`
	UptimeSec int64  `json:"uptime_seconds"`

	Cycles struct {
		Run     int64        `json:"run"`
		Skipped int64        `json:"skipped"`
		Running bool         `json:"running"`
		Last    *CycleReport `json:"last,omitempty"`
	} `json:"cycles"`

	Alerts struct {
		Total        int              `json:"total"`
		ByType       map[FlagType]int `json:"by_type"`
		LastAlertAt  string           `json:"last_alert_at,omitempty"`
		LastAlertAgo string           `json:"last_alert_ago,omitempty"`
	} `json:"alerts"`

	Caches struct {
		WalletCacheSize int    `json:"wallet_cache_size"`
		RecheckWindow   string `json:"recheck_window"`
	} `json:"caches"`

	Subscribers int `json:"subscribers"`

	// Notification status
	Notifications struct {
		DiscordEnabled  bool `json:"discord_enabled"`
		TelegramEnabled bool `json:"telegram_enabled"`
	} `json:"notifications"`

	// Thresholds present in config that no rule reads yet
	InertThresholds struct {
		NicheMarketVolumeMax float64 `json:"niche_market_volume_max"`
		RepeatedEntriesCount int     `json:"repeated_entries_count"`
	} `json:"inert_thresholds"`

	// Runtime stats
	Runtime struct {
		Goroutines int    `json:"goroutines"`
		HeapAlloc  uint64 `json:"heap_alloc"` // bytes currently allocated on heap
		NumGC      uint32 `json:"num_gc"`
		NumCPU     int    `json:"num_cpu"`
	} `json:"runtime"`
}

// GetStats returns service statistics.
func (r *Runner) GetStats() ServiceStats {
	var stats ServiceStats

	stats.Build.Commit = BuildCommit
	stats.Build.Time = BuildTime
	stats.Build.GoVersion = runtime.Version()

	stats.StartTime = r.startTime.UTC().Format(time.RFC3339)
	uptime := time.Since(r.startTime)
	stats.Uptime = uptime.Round(time.Second).String()
	stats.UptimeSec = int64(uptime.Seconds())

	stats.Cycles.Run = r.cyclesRun.Load()
	stats.Cycles.Skipped = r.cyclesSkipped.Load()
	stats.Cycles.Running = r.running.Load()
	r.lastReportMu.RLock()
	if r.lastReport != nil {
		last := *r.lastReport
		stats.Cycles.Last = &last
	}
	r.lastReportMu.RUnlock()

	alerts := r.monitor.Alerts()
	stats.Alerts.Total = alerts.Len()
	stats.Alerts.ByType = alerts.CountByType()
	if last, ok := alerts.Last(); ok {
		stats.Alerts.LastAlertAt = last.CreatedAt.UTC().Format(time.RFC3339)
		stats.Alerts.LastAlertAgo = time.Since(last.CreatedAt).Round(time.Second).String()
	}

	cache := r.monitor.Cache()
	stats.Caches.WalletCacheSize = cache.Len()
	stats.Caches.RecheckWindow = cache.Window().String()

	stats.Subscribers = r.subscribers.Len()

	_, stats.Notifications.DiscordEnabled = r.clients.Notifier.Channel(discord.ChannelName)
	_, stats.Notifications.TelegramEnabled = r.clients.Notifier.Channel(telegram.ChannelName)

	cfg := r.liveConfig.Get()
	stats.InertThresholds.NicheMarketVolumeMax = cfg.Detection.NicheMarketVolumeMax
	stats.InertThresholds.RepeatedEntriesCount = cfg.Detection.RepeatedEntriesCount

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats.Runtime.Goroutines = runtime.NumGoroutine()
	stats.Runtime.HeapAlloc = memStats.HeapAlloc
	stats.Runtime.NumGC = memStats.NumGC
	stats.Runtime.NumCPU = runtime.NumCPU()

	return stats
}
