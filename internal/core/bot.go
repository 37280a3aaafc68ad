package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"newswire/internal/types"
)

// Job is one pipeline stage. Every run is independent and safe to start
// while another run of the same job is in flight.
type Job interface {
	Name() string
	Run(ctx context.Context) (*types.RunSummary, error)
}

// Bot runs a Job on a fixed interval, or once.
type Bot struct {
	name     string
	job      Job
	interval time.Duration
	runOnce  bool

	mu       sync.RWMutex
	running  bool
	runs     int
	failures int
	last     *types.RunSummary

	stopCh   chan struct{}
	stopOnce sync.Once
}

type BotConfig struct {
	Name     string
	Job      Job
	Interval time.Duration
	RunOnce  bool
}

// BotStatus is a point in time view of a bot.
type BotStatus struct {
	Name     string
	Running  bool
	Runs     int
	Failures int
	LastRun  *types.RunSummary
}

func NewBot(config BotConfig) *Bot {
	if config.Interval == 0 {
		config.Interval = 5 * time.Minute
	}
	if config.Name == "" {
		config.Name = config.Job.Name()
	}

	return &Bot{
		name:     config.Name,
		job:      config.Job,
		interval: config.Interval,
		runOnce:  config.RunOnce,
		stopCh:   make(chan struct{}),
	}
}

func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("bot %s already running", b.name)
	}
	b.running = true
	b.mu.Unlock()
	defer b.markStopped()

	if b.runOnce {
		if err := b.execute(ctx, ctx); err != nil {
			return fmt.Errorf("%s run failed: %w", b.name, err)
		}
		return nil
	}

	return b.loop(ctx)
}

func (b *Bot) loop(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.stopCh:
			return nil
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

// tick bounds one scheduled run so it finishes before the next one is due.
func (b *Bot) tick(ctx context.Context) {
	timeout := b.interval - 10*time.Second
	if timeout < b.interval/2 {
		timeout = b.interval / 2
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := b.execute(ctx, runCtx); err != nil {
		slog.Error("Scheduled run failed", "job", b.name, "error", err)
	}
}

func (b *Bot) execute(parent, runCtx context.Context) error {
	summary, err := b.job.Run(runCtx)

	b.mu.Lock()
	b.runs++
	if summary != nil {
		b.last = summary
	}
	if err != nil && parent.Err() == nil {
		b.failures++
	}
	b.mu.Unlock()

	if summary != nil && summary.Partial {
		slog.Warn("Run finished with provider errors", "job", b.name, "errors", len(summary.ProviderErrors))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Stop ends the schedule after the current run. It does not cancel a run
// in flight; cancel the context passed to Start for that.
func (b *Bot) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

func (b *Bot) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

func (b *Bot) Name() string {
	return b.name
}

func (b *Bot) Status() BotStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BotStatus{
		Name:     b.name,
		Running:  b.running,
		Runs:     b.runs,
		Failures: b.failures,
		LastRun:  b.last,
	}
}

func (b *Bot) markStopped() {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
}

type BotManager struct {
	mu   sync.RWMutex
	bots map[string]*Bot
}

func NewBotManager() *BotManager {
	return &BotManager{
		bots: make(map[string]*Bot),
	}
}

func (m *BotManager) Register(bot *Bot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.bots[bot.Name()]; exists {
		return fmt.Errorf("bot %s already registered", bot.Name())
	}
	m.bots[bot.Name()] = bot
	return nil
}

// StartAll runs every bot and returns when all of them have stopped, with
// the first error any of them returned.
func (m *BotManager) StartAll(ctx context.Context) error {
	var g errgroup.Group
	for _, bot := range m.snapshot() {
		g.Go(func() error {
			if err := bot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (m *BotManager) StopAll() {
	for _, bot := range m.snapshot() {
		bot.Stop()
	}
}

// Statuses reports every bot, sorted by name.
func (m *BotManager) Statuses() []BotStatus {
	bots := m.snapshot()
	statuses := make([]BotStatus, len(bots))
	for i, bot := range bots {
		statuses[i] = bot.Status()
	}
	return statuses
}

func (m *BotManager) List() []string {
	bots := m.snapshot()
	names := make([]string, len(bots))
	for i, bot := range bots {
		names[i] = bot.Name()
	}
	return names
}

func (m *BotManager) snapshot() []*Bot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bots := make([]*Bot, 0, len(m.bots))
	for _, bot := range m.bots {
		bots = append(bots, bot)
	}
	sort.Slice(bots, func(i, j int) bool { return bots[i].Name() < bots[j].Name() })
	return bots
}
