// Package diagnostics checks that the agent server is reachable and recent
// enough, once or on a schedule.
package diagnostics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"agentdesk/internal/transport"
)

// DefaultProbeTimeout bounds a single status probe.
const DefaultProbeTimeout = 5 * time.Second

// InfoSource is the status probe of the agent server.
type InfoSource interface {
	Info(ctx context.Context) (*transport.ServerInfo, error)
}

// Status is the result of one probe.
type Status struct {
	Reachable  bool          `json:"reachable"`
	Version    string        `json:"version,omitempty"`
	Constraint string        `json:"constraint,omitempty"`
	Compatible bool          `json:"compatible"`
	Latency    time.Duration `json:"latency"`
	Error      string        `json:"error,omitempty"`
	CheckedAt  time.Time     `json:"checked_at"`
}

// Prober runs status probes.
type Prober struct {
	src        InfoSource
	constraint *semver.Constraints
	raw        string
	timeout    time.Duration
}

// NewProber creates a prober. minVersion is either a bare version, meaning
// ">= minVersion", or a full constraint such as ">= 0.2, < 1". Empty disables
// the version check.
func NewProber(src InfoSource, minVersion string) (*Prober, error) {
	p := &Prober{src: src, timeout: DefaultProbeTimeout}

	raw := strings.TrimSpace(minVersion)
	if raw == "" {
		return p, nil
	}
	if _, err := semver.NewVersion(raw); err == nil {
		raw = ">= " + raw
	}
	c, err := semver.NewConstraint(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid min server version %q: %w", minVersion, err)
	}
	p.constraint = c
	p.raw = raw
	return p, nil
}

// Check probes the server once.
func (p *Prober) Check(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	info, err := p.src.Info(ctx)
	st := Status{
		Constraint: p.raw,
		Latency:    time.Since(start),
		CheckedAt:  start.UTC(),
	}
	if err != nil {
		st.Error = err.Error()
		return st
	}

	st.Reachable = true
	st.Version = info.Version
	st.Compatible = true
	if p.constraint == nil {
		return st
	}

	v, err := semver.NewVersion(info.Version)
	if err != nil {
		st.Compatible = false
		st.Error = fmt.Sprintf("server version %q is not a semantic version", info.Version)
		return st
	}
	st.Compatible = p.constraint.Check(v)
	return st
}
