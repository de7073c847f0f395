package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/quest-engine/internal/storage"
	"github.com/jwebster45206/quest-engine/pkg/milestone"
	"github.com/jwebster45206/quest-engine/pkg/unlock"
)

const (
	refreshInterval = 2 * time.Second
	progressBarLen  = 24
)

// InspectorUI is the BubbleTea model that runs the session inspector.
// https://github.com/charmbracelet/bubbletea
type InspectorUI struct {
	store     storage.Storage
	sessionID uuid.UUID

	milestones []*milestone.Milestone
	conditions []*unlock.Condition
	events     []unlock.Event

	eventViewport viewport.Model
	ready         bool
	width         int
	height        int
	err           error

	// Flash message after a clipboard copy
	copied   bool
	copiedAt time.Time
}

type sessionSnapshotMsg struct {
	milestones []*milestone.Milestone
	conditions []*unlock.Condition
	events     []unlock.Event
	err        error
}

type refreshTickMsg struct{}

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	completedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	inProgressStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	barFillStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	barEmptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238"))

	eventStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)

func NewInspectorUI(store storage.Storage, sessionID uuid.UUID) InspectorUI {
	vp := viewport.New(60, 12)
	vp.MouseWheelEnabled = true

	return InspectorUI{
		store:         store,
		sessionID:     sessionID,
		eventViewport: vp,
	}
}

func (ui InspectorUI) Init() tea.Cmd {
	return tea.Batch(ui.loadSnapshot(), refreshTick())
}

func refreshTick() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return refreshTickMsg{}
	})
}

// loadSnapshot reads the session's milestones, conditions and unlock
// events in one command.
func (ui InspectorUI) loadSnapshot() tea.Cmd {
	store := ui.store
	sessionID := ui.sessionID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		milestones, err := store.ListMilestones(ctx, sessionID)
		if err != nil {
			return sessionSnapshotMsg{err: err}
		}
		sort.Slice(milestones, func(i, j int) bool {
			return milestones[i].Title < milestones[j].Title
		})

		conditions, err := store.ListUnlockConditions(ctx, sessionID)
		if err != nil {
			return sessionSnapshotMsg{err: err}
		}
		sort.Slice(conditions, func(i, j int) bool {
			return conditions[i].Priority > conditions[j].Priority
		})

		events, err := store.ListUnlockEvents(ctx, sessionID)
		if err != nil {
			return sessionSnapshotMsg{err: err}
		}

		return sessionSnapshotMsg{
			milestones: milestones,
			conditions: conditions,
			events:     events,
		}
	}
}

func (ui InspectorUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return ui, tea.Quit
		case "r":
			return ui, ui.loadSnapshot()
		case "c":
			if err := clipboard.WriteAll(ui.eventLogText()); err != nil {
				ui.err = err
			} else {
				ui.copied = true
				ui.copiedAt = time.Now()
			}
			return ui, nil
		}

	case tea.WindowSizeMsg:
		ui.width = msg.Width
		ui.height = msg.Height
		ui.eventViewport.Width = msg.Width - 6
		ui.eventViewport.Height = ui.eventPanelHeight()
		ui.eventViewport.SetContent(ui.renderEventLog())
		ui.ready = true

	case refreshTickMsg:
		return ui, tea.Batch(ui.loadSnapshot(), refreshTick())

	case sessionSnapshotMsg:
		if msg.err != nil {
			ui.err = msg.err
			return ui, nil
		}
		ui.err = nil
		ui.milestones = msg.milestones
		ui.conditions = msg.conditions
		ui.events = msg.events
		ui.eventViewport.SetContent(ui.renderEventLog())
	}

	var cmd tea.Cmd
	ui.eventViewport, cmd = ui.eventViewport.Update(msg)
	return ui, cmd
}

func (ui InspectorUI) View() string {
	if !ui.ready {
		return "Loading session..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Session %s", ui.sessionID)))
	b.WriteString("\n\n")

	if ui.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("error: %v", ui.err)))
		b.WriteString("\n\n")
	}

	b.WriteString(sectionStyle.Render("Milestones"))
	b.WriteString("\n")
	if len(ui.milestones) == 0 {
		b.WriteString(pendingStyle.Render("  (none)"))
		b.WriteString("\n")
	}
	for _, m := range ui.milestones {
		b.WriteString(ui.renderMilestone(m))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(sectionStyle.Render("Unlock Conditions"))
	b.WriteString("\n")
	if len(ui.conditions) == 0 {
		b.WriteString(pendingStyle.Render("  (none)"))
		b.WriteString("\n")
	}
	for _, c := range ui.conditions {
		b.WriteString(ui.renderCondition(c))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(sectionStyle.Render(fmt.Sprintf("Unlock Events (%d)", len(ui.events))))
	b.WriteString("\n")
	b.WriteString(panelStyle.Render(ui.eventViewport.View()))
	b.WriteString("\n")

	help := "q quit · r refresh · c copy event log · wheel scroll"
	if ui.copied && time.Since(ui.copiedAt) < 2*time.Second {
		help = "event log copied to clipboard"
	}
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

func (ui InspectorUI) renderMilestone(m *milestone.Milestone) string {
	bar := renderProgressBar(m.Progress)

	var status string
	switch m.Status {
	case milestone.StatusCompleted:
		status = completedStyle.Render("done")
	case milestone.StatusInProgress:
		status = inProgressStyle.Render("in progress")
	default:
		status = pendingStyle.Render("pending")
	}

	return fmt.Sprintf("  %s %5.1f%%  %-30s %s", bar, m.Progress*100, truncate(m.Title, 30), status)
}

func (ui InspectorUI) renderCondition(c *unlock.Condition) string {
	state := completedStyle.Render("fired")
	if c.IsActive {
		state = inProgressStyle.Render("armed")
	}
	return fmt.Sprintf("  [%d] %-30s %s (%s)", c.Priority, truncate(c.Name, 30), state, c.TriggerType)
}

func (ui InspectorUI) renderEventLog() string {
	if len(ui.events) == 0 {
		return pendingStyle.Render("No unlocks yet.")
	}

	width := ui.eventViewport.Width
	if width <= 0 {
		width = 60
	}

	var b strings.Builder
	for i, e := range ui.events {
		if i > 0 {
			b.WriteString("\n")
		}
		header := fmt.Sprintf("%s  %s", e.TriggeredAt.Local().Format("15:04:05"), strings.Join(e.UnlockedEntities, ", "))
		b.WriteString(eventStyle.Render(header))
		b.WriteString("\n")
		if e.NarrativeText != "" {
			b.WriteString(wordwrap.String(e.NarrativeText, width))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// eventLogText is the plain-text event log for clipboard export.
func (ui InspectorUI) eventLogText() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Unlock events for session %s\n", ui.sessionID))
	for _, e := range ui.events {
		b.WriteString(fmt.Sprintf("%s  condition=%s  entities=%s\n",
			e.TriggeredAt.Format(time.RFC3339),
			e.ConditionID,
			strings.Join(e.UnlockedEntities, ",")))
		if e.NarrativeText != "" {
			b.WriteString(e.NarrativeText)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (ui InspectorUI) eventPanelHeight() int {
	// Leave room for the milestone and condition sections
	h := ui.height - len(ui.milestones) - len(ui.conditions) - 12
	if h < 4 {
		h = 4
	}
	if h > 16 {
		h = 16
	}
	return h
}

func renderProgressBar(progress float64) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * progressBarLen)
	return barFillStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", progressBarLen-filled))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 1 {
		return s[:max]
	}
	return s[:max-1] + "…"
}
