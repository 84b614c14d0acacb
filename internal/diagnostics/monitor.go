package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"agentdesk/internal/notify"
	"agentdesk/pkg/logger"
)

// ErrMonitorRunning is returned by Start on a running monitor.
var ErrMonitorRunning = errors.New("diagnostics: monitor already running")

// Monitor probes the server on a cron schedule and reports reachability
// changes. A steady state is reported once, not on every tick.
type Monitor struct {
	prober   *Prober
	sink     notify.Sink
	log      zerolog.Logger
	schedule string
	cron     *cron.Cron

	mu      sync.Mutex
	running bool
	last    *Status
}

// NewMonitor creates a monitor. schedule accepts standard cron expressions and
// descriptors such as "@every 30s".
func NewMonitor(p *Prober, sink notify.Sink, schedule string, log *zerolog.Logger) (*Monitor, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid diagnostics schedule %q: %w", schedule, err)
	}
	if sink == nil {
		sink = notify.Discard
	}
	m := &Monitor{prober: p, sink: sink, schedule: schedule}
	if log != nil {
		m.log = *log
	} else {
		m.log = logger.Named("diagnostics")
	}

	cronLog := cron.PrintfLogger(&m.log)
	m.cron = cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	return m, nil
}

// Start runs a first probe right away and then follows the schedule.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrMonitorRunning
	}

	if _, err := m.cron.AddFunc(m.schedule, func() { m.Tick(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule probe: %w", err)
	}
	go m.Tick(ctx)
	m.cron.Start()
	m.running = true
	m.log.Info().Str("schedule", m.schedule).Msg("Diagnostics monitor started")
	return nil
}

// Stop halts the schedule. The returned context is done once a probe in
// flight has finished.
func (m *Monitor) Stop() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	m.running = false
	m.log.Info().Msg("Diagnostics monitor stopped")
	return m.cron.Stop()
}

// Last returns the most recent probe result.
func (m *Monitor) Last() (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Status{}, false
	}
	return *m.last, true
}

// Tick probes once and notifies when reachability differs from the previous
// probe. An unreachable server on the first probe is reported as well.
func (m *Monitor) Tick(ctx context.Context) Status {
	st := m.prober.Check(ctx)

	m.mu.Lock()
	prev := m.last
	m.last = &st
	m.mu.Unlock()

	changed := prev == nil || prev.Reachable != st.Reachable
	switch {
	case !changed:
	case !st.Reachable:
		m.log.Warn().Str("error", st.Error).Msg("Agent server unreachable")
		m.sink.Notify(notify.New(notify.KindError, notify.CodeServerUnreachable,
			"Agent server unreachable", st.Error))
	case prev != nil:
		m.log.Info().Str("version", st.Version).Msg("Agent server reachable again")
		m.sink.Notify(notify.New(notify.KindSuccess, notify.CodeServerReachable,
			"Agent server reachable", st.Version))
	}

	if st.Reachable && !st.Compatible && (changed || prev.Version != st.Version) {
		m.sink.Notify(notify.New(notify.KindWarning, notify.CodeServerOutdated,
			"Agent server version not supported",
			fmt.Sprintf("server %s does not satisfy %s", st.Version, st.Constraint)))
	}
	return st
}
