// internal/tui/app.go
//
// This is the terminal dashboard for pipedeck. It uses bubbletea, which
// follows The Elm Architecture: the App model holds all state, Update reacts
// to messages, and View renders the current state to a string.
//
// The dashboard is strictly a consumer of the engine: it reads snapshots on a
// refresh cadence and issues control intents through the scheduler. It never
// mutates stage state directly.

package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jcallahan/pipedeck/internal/config"
	"github.com/jcallahan/pipedeck/internal/logbook"
	"github.com/jcallahan/pipedeck/internal/pipeline"
	"github.com/jcallahan/pipedeck/internal/scheduler"
)

// appState represents which "screen" we're on.
type appState int

const (
	stateMainMenu appState = iota // Main menu with "Pipeline Board", etc.
	stateBoard                    // Live pipeline board
	stateLog                      // Run logbook tail
)

const boardRefreshInterval = 200 * time.Millisecond

var (
	stageStyleProcessing = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	stageStyleCompleted  = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	stageStyleError      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	stageStyleQueued     = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	detailTextStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	barFillStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))
	barEmptyStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))
	headerStyle          = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")).MarginBottom(1)
	footerStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).MarginTop(1)
	panelStyle           = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
)

// App is the main application model.
type App struct {
	state      appState
	config     *config.Config
	controller *pipeline.Controller
	scheduler  *scheduler.Scheduler
	logbook    *logbook.Logbook

	mainMenu  list.Model
	statusMsg string
	snapshot  pipeline.Snapshot

	width  int
	height int
}

// menuItem implements list.Item for our menu entries.
type menuItem struct {
	title string
	desc  string
}

func (i menuItem) Title() string       { return i.title }
func (i menuItem) Description() string { return i.desc }
func (i menuItem) FilterValue() string { return i.title }

type boardRefreshMsg struct {
	snapshot pipeline.Snapshot
}

// NewApp creates the dashboard model around an already wired engine.
func NewApp(cfg *config.Config, controller *pipeline.Controller, sched *scheduler.Scheduler, lb *logbook.Logbook) *App {
	items := []list.Item{
		menuItem{title: "Pipeline Board", desc: "Watch turns progress stage by stage"},
		menuItem{title: "Run Log", desc: "Tail the session logbook"},
		menuItem{title: "Quit", desc: "Stop the run and exit"},
	}
	mainMenu := list.New(items, list.NewDefaultDelegate(), 0, 0)
	mainMenu.Title = "⬡ PIPEDECK"
	mainMenu.SetShowStatusBar(false)
	mainMenu.SetFilteringEnabled(false)

	return &App{
		state:      stateMainMenu,
		config:     cfg,
		controller: controller,
		scheduler:  sched,
		logbook:    lb,
		mainMenu:   mainMenu,
		snapshot:   controller.Snapshot(),
		statusMsg:  "Ready",
	}
}

// Init kicks off the first board refresh so the menu header shows live state.
func (a *App) Init() tea.Cmd {
	return a.scheduleBoardRefresh()
}

// Update handles a message and returns the new model plus any command.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.mainMenu.SetSize(max(20, msg.Width-6), max(10, msg.Height-10))
		return a, nil
	case boardRefreshMsg:
		a.snapshot = msg.snapshot
		return a, a.scheduleBoardRefresh()
	case tea.KeyMsg:
		return a.handleKey(msg)
	}
	if a.state == stateMainMenu {
		var cmd tea.Cmd
		a.mainMenu, cmd = a.mainMenu.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return a.quit()
	}
	switch a.state {
	case stateMainMenu:
		switch msg.String() {
		case "enter":
			return a.handleMainMenuSelection()
		case "q":
			return a.quit()
		}
		var cmd tea.Cmd
		a.mainMenu, cmd = a.mainMenu.Update(msg)
		return a, cmd
	case stateBoard:
		return a.handleBoardKey(msg)
	case stateLog:
		switch msg.String() {
		case "q", "esc":
			a.state = stateMainMenu
		}
		return a, nil
	}
	return a, nil
}

func (a *App) handleMainMenuSelection() (tea.Model, tea.Cmd) {
	selected, ok := a.mainMenu.SelectedItem().(menuItem)
	if !ok {
		return a, nil
	}
	switch selected.title {
	case "Pipeline Board":
		a.state = stateBoard
		a.statusMsg = "s start · space pause/resume · x stop · e error · r retry · k skip · esc back"
	case "Run Log":
		a.state = stateLog
		a.statusMsg = "esc back"
	case "Quit":
		return a.quit()
	}
	return a, nil
}

func (a *App) handleBoardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		a.state = stateMainMenu
		a.statusMsg = "Ready"
	case "s":
		a.control("start", a.scheduler.Start)
	case " ":
		if a.snapshot.RunState == pipeline.RunRunning {
			a.control("pause", a.scheduler.Pause)
		} else {
			a.control("resume", a.scheduler.Resume)
		}
	case "x":
		a.control("stop", a.scheduler.Stop)
	case "e":
		if active, ok := a.snapshot.ActiveStage(); ok {
			a.control("error "+active.ID, func() error { return a.controller.MarkStageError(active.ID) })
		}
	case "r":
		if id, ok := a.erroredStageID(); ok {
			a.control("retry "+id, func() error { return a.controller.RetryStage(id) })
		}
	case "k":
		if id, ok := a.erroredStageID(); ok {
			a.control("skip "+id, func() error { return a.controller.SkipStage(id) })
		}
	}
	return a, nil
}

func (a *App) control(label string, op func() error) {
	if err := op(); err != nil {
		a.statusMsg = fmt.Sprintf("%s: %v", label, err)
		return
	}
	a.statusMsg = fmt.Sprintf("Applied %s", label)
	a.snapshot = a.controller.Snapshot()
}

func (a *App) erroredStageID() (string, bool) {
	for _, stage := range a.snapshot.Stages {
		if stage.Status == pipeline.StageError {
			return stage.ID, true
		}
	}
	return "", false
}

func (a *App) quit() (tea.Model, tea.Cmd) {
	_ = a.scheduler.Stop()
	return a, tea.Quit
}

func (a *App) scheduleBoardRefresh() tea.Cmd {
	return tea.Tick(boardRefreshInterval, func(time.Time) tea.Msg {
		return boardRefreshMsg{snapshot: a.controller.Snapshot()}
	})
}

// View renders the current state to a string.
func (a *App) View() string {
	header := headerStyle.Render("⬡ PIPEDECK")
	var content string
	switch a.state {
	case stateMainMenu:
		content = a.mainMenu.View()
	case stateBoard:
		content = a.renderBoard()
	case stateLog:
		content = a.renderLog()
	}
	footer := footerStyle.Render(a.statusMsg)
	return strings.Join([]string{header, a.renderSummary(), panelStyle.Render(content), footer}, "\n")
}

func (a *App) renderSummary() string {
	snap := a.snapshot
	avg := "n/a"
	if snap.AverageProcessing > 0 {
		avg = snap.AverageProcessing.Round(10 * time.Millisecond).String()
	}
	line := fmt.Sprintf(
		"Turn %d · completed %d · queue %d · avg stage %s · %s",
		snap.CurrentTurn,
		snap.CompletedTurns,
		snap.QueueLength,
		avg,
		strings.ToUpper(string(snap.RunState)),
	)
	return detailTextStyle.Render(line)
}

func (a *App) renderBoard() string {
	snap := a.snapshot
	lines := make([]string, 0, len(snap.Stages))
	for i, stage := range snap.Stages {
		marker := "  "
		if i == snap.ActiveStageIndex {
			marker = "▶ "
		}
		label := stageLabelStyle(stage.Status).Render(fmt.Sprintf("%-18s", stage.Name))
		bar := renderProgressBar(24, stage.Progress)
		detail := fmt.Sprintf("%5.1f%%", stage.Progress)
		if stage.AssignedActor != "" {
			detail += " · " + stage.AssignedActor
		}
		if stage.Status == pipeline.StageCompleted && stage.Duration > 0 {
			detail += " · " + stage.Duration.Round(10*time.Millisecond).String()
		}
		if stage.Status == pipeline.StageError {
			detail += " · blocked"
		}
		lines = append(lines, fmt.Sprintf("%s%s %s %s", marker, label, bar, detailTextStyle.Render(detail)))
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderLog() string {
	lines := a.logbook.Tail(max(10, a.height-10))
	if len(lines) == 0 {
		return "Log is empty."
	}
	return strings.Join(lines, "\n")
}

func stageLabelStyle(status pipeline.StageStatus) lipgloss.Style {
	switch status {
	case pipeline.StageProcessing:
		return stageStyleProcessing
	case pipeline.StageCompleted:
		return stageStyleCompleted
	case pipeline.StageError:
		return stageStyleError
	default:
		return stageStyleQueued
	}
}

func renderProgressBar(width int, progress float64) string {
	if width < 4 {
		width = 4
	}
	filled := int(progress / 100 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return barFillStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", width-filled))
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
