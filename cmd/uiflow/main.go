// uiflow demo - a small TUI exercising series policies and status tracking.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/uiflow/series"
	"github.com/jeranaias/uiflow/state"
	"github.com/jeranaias/uiflow/status"
	"github.com/jeranaias/uiflow/track"
)

// Global program reference so the refresh observer (which runs on task
// goroutines) can wake the UI loop.
var (
	programRef *tea.Program
	programMu  sync.Mutex
)

// refreshMsg is sent to the UI whenever the store dispatched a refresh.
type refreshMsg struct{}

// =============================================================================
// STYLES
// =============================================================================

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	issueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	loadingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// =============================================================================
// MODEL
// =============================================================================

type model struct {
	cfg Config

	scope    *series.Scope
	store    *state.Store
	statuses *state.StatusMap[string]
	tracker  *track.Tracker[string]

	// One series per policy, so each key demonstrates one behavior.
	byPolicy map[series.Policy]series.Series

	spin      spinner.Model
	submitted int
	lastTask  *series.Handle
	preferred series.Policy
}

func newModel(cfg Config) *model {
	scope := series.NewScope(context.Background())
	store := state.NewStore()
	statuses := state.NewStatusMap[string](store)

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}

	m := &model{
		cfg:      cfg,
		scope:    scope,
		store:    store,
		statuses: statuses,
		tracker:  track.New(statuses),
		byPolicy: map[series.Policy]series.Series{
			series.PolicyDefault:         scope.Default(),
			series.PolicyQueue:           scope.New(series.PolicyQueue),
			series.PolicyCancelRunning:   scope.New(series.PolicyCancelRunning),
			series.PolicyCancelTentative: scope.New(series.PolicyCancelTentative),
		},
		spin: sp,
	}
	m.preferred, _ = cfg.SeriesPolicy()

	// Wake the UI on every coalesced change.
	store.AddRefreshObserver(func() {
		programMu.Lock()
		p := programRef
		programMu.Unlock()
		if p != nil {
			p.Send(refreshMsg{})
		}
	})
	return m
}

// =============================================================================
// TASK SUBMISSION
// =============================================================================

// submitTask hands a simulated workload to the series for the policy.
func (m *model) submitTask(policy series.Policy) {
	m.submitted++
	n := m.submitted
	key := fmt.Sprintf("%s#%d", policy, n)
	shouldFail := m.cfg.FailEvery > 0 && n%m.cfg.FailEvery == 0
	duration := m.cfg.TaskDuration()

	m.lastTask = m.byPolicy[policy].Submit(key, func(ctx context.Context) error {
		m.tracker.Run(ctx, key, func(ctx context.Context) error {
			return simulateWork(ctx, m.statuses, key, duration, shouldFail)
		})
		return nil
	})
}

// simulateWork sleeps in ticks, publishing progress, and fails on demand.
func simulateWork(ctx context.Context, statuses *state.StatusMap[string], key string, d time.Duration, fail bool) error {
	start := time.Now()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			elapsed := time.Since(start)
			if elapsed >= d {
				if fail {
					return track.Fail("simulated failure", 500)
				}
				return nil
			}
			statuses.Set(key, status.InProgressAt(elapsed.Seconds()/d.Seconds()))
		}
	}
}

// =============================================================================
// BUBBLE TEA PLUMBING
// =============================================================================

func (m *model) Init() tea.Cmd {
	return m.spin.Tick
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.scope.Cancel("quit")
			return m, tea.Quit
		case "enter", " ":
			m.submitTask(m.preferred)
		case "0":
			m.submitTask(series.PolicyDefault)
		case "1":
			m.submitTask(series.PolicyQueue)
		case "2":
			m.submitTask(series.PolicyCancelRunning)
		case "3":
			m.submitTask(series.PolicyCancelTentative)
		case "c":
			if m.lastTask != nil {
				m.lastTask.Cancel()
			}
		}
		return m, nil

	case refreshMsg:
		// State already changed; re-render happens on return.
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("uiflow demo"))
	b.WriteString("\n")
	b.WriteString(faintStyle.Render(fmt.Sprintf(
		"enter %s | 0 default | 1 queue | 2 cancelRunning | 3 cancelTentative | c cancel last | q quit",
		m.preferred)))
	b.WriteString("\n\n")

	snap := m.statuses.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		b.WriteString(m.renderStatus(k, snap[k]))
		b.WriteString("\n")
	}
	if len(keys) == 0 {
		b.WriteString(faintStyle.Render("no tasks yet"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	for _, policy := range []series.Policy{
		series.PolicyDefault,
		series.PolicyQueue,
		series.PolicyCancelRunning,
		series.PolicyCancelTentative,
	} {
		b.WriteString(faintStyle.Render(m.byPolicy[policy].String()))
		b.WriteString("\n")
	}
	return b.String()
}

// renderStatus renders one status line.
func (m *model) renderStatus(key string, s status.Status) string {
	label := keyStyle.Render(key)
	switch s.Kind() {
	case status.Loading:
		if p := s.Progress(); p != status.UnknownProgress {
			return fmt.Sprintf("%s %s %s", m.spin.View(), label,
				loadingStyle.Render(fmt.Sprintf("%3.0f%%", p*100)))
		}
		return fmt.Sprintf("%s %s %s", m.spin.View(), label, loadingStyle.Render("working"))
	case status.Success:
		return fmt.Sprintf("+ %s %s", label, successStyle.Render("done"))
	case status.Issue:
		return fmt.Sprintf("x %s %s", label,
			issueStyle.Render(fmt.Sprintf("%s (code %d)", s.Message(), s.Code())))
	default:
		return fmt.Sprintf("  %s %s", label, faintStyle.Render("not started"))
	}
}

// =============================================================================
// ENTRY POINT
// =============================================================================

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "uiflow: %v\n", err)
		os.Exit(1)
	}

	m := newModel(cfg)
	p := tea.NewProgram(m)

	programMu.Lock()
	programRef = p
	programMu.Unlock()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "uiflow: %v\n", err)
		os.Exit(1)
	}
}
