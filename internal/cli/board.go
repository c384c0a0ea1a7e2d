package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/taskdeck/internal/storage"
	"github.com/valter-silva-au/taskdeck/pkg/models"
)

// Board panel indices.
const (
	panelBoard = iota
	panelProcesses
	panelAlerts
	boardPanelCount
)

type boardModel struct {
	activePanel int
	width       int
	height      int

	// Data.
	columns   map[models.Status][]taskCard
	processes []processRow
	alerts    []alertRow

	// State.
	loading bool
	err     error
}

type taskCard struct {
	id       string
	name     string
	priority int
}

type processRow struct {
	id        string
	status    string
	heartbeat string
}

type alertRow struct {
	severity string
	message  string
}

// boardLoadedMsg carries loaded data back to the model.
type boardLoadedMsg struct {
	columns   map[models.Status][]taskCard
	processes []processRow
	alerts    []alertRow
	err       error
}

// Style definitions.
var (
	boardTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	boardPanelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	boardActivePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(1, 2)

	boardHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("62")).
				MarginBottom(1)

	colTodo       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	colAnalysing  = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	colAnalysed   = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
	colInProgress = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	colDone       = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	colParked     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	boardSeverityHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	boardSeverityMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	boardSeverityLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	boardHelpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newBoardModel() boardModel {
	return boardModel{
		activePanel: panelBoard,
		loading:     true,
		columns:     make(map[models.Status][]taskCard),
	}
}

func (m boardModel) Init() tea.Cmd {
	return loadBoardData
}

func (m boardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activePanel = (m.activePanel + 1) % boardPanelCount
			return m, nil
		case "shift+tab":
			m.activePanel = (m.activePanel - 1 + boardPanelCount) % boardPanelCount
			return m, nil
		case "r":
			m.loading = true
			return m, loadBoardData
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case boardLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.columns = msg.columns
		m.processes = msg.processes
		m.alerts = msg.alerts
		m.err = nil
		return m, nil
	}

	return m, nil
}

func (m boardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := boardTitleStyle.Render(" taskdeck board ")
	help := boardHelpStyle.Render("tab: switch panel | r: refresh | q: quit")

	if m.loading {
		return fmt.Sprintf("%s\n\n  Loading data...\n\n%s", title, help)
	}

	if m.err != nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, help)
	}

	boardPanel := m.renderBoardPanel()
	processPanel := m.renderProcessPanel()
	alertsPanel := m.renderAlertsPanel()

	// Available width for panels after accounting for margins.
	availableWidth := m.width - 2

	var body string
	if availableWidth > 120 {
		boardWidth := availableWidth / 2
		sideWidth := availableWidth / 4
		boardPanel = m.applyPanelStyle(panelBoard, boardPanel, boardWidth-4)
		processPanel = m.applyPanelStyle(panelProcesses, processPanel, sideWidth-4)
		alertsPanel = m.applyPanelStyle(panelAlerts, alertsPanel, sideWidth-4)
		body = lipgloss.JoinHorizontal(lipgloss.Top, boardPanel, processPanel, alertsPanel)
	} else {
		panelWidth := availableWidth - 4
		if panelWidth < 20 {
			panelWidth = 20
		}
		boardPanel = m.applyPanelStyle(panelBoard, boardPanel, panelWidth)
		processPanel = m.applyPanelStyle(panelProcesses, processPanel, panelWidth)
		alertsPanel = m.applyPanelStyle(panelAlerts, alertsPanel, panelWidth)
		body = lipgloss.JoinVertical(lipgloss.Left, boardPanel, processPanel, alertsPanel)
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, body, help)
}

func (m boardModel) applyPanelStyle(panel int, content string, width int) string {
	style := boardPanelStyle
	if m.activePanel == panel {
		style = boardActivePanelStyle
	}
	return style.Width(width).Render(content)
}

func (m boardModel) renderBoardPanel() string {
	var b strings.Builder
	b.WriteString(boardHeaderStyle.Render("Tasks"))
	b.WriteString("\n")

	total := 0
	for _, status := range models.Statuses {
		cards := m.columns[status]
		if len(cards) == 0 {
			continue
		}
		total += len(cards)
		b.WriteString(styleForColumn(status).Render(fmt.Sprintf("  %s (%d)", status, len(cards))))
		b.WriteString("\n")
		for _, c := range cards {
			b.WriteString(fmt.Sprintf("    %3d  %s  %s\n", c.priority, c.id, c.name))
		}
	}

	if total == 0 {
		b.WriteString("  Board is empty.")
		return b.String()
	}

	b.WriteString(fmt.Sprintf("\n  Total: %d", total))
	return b.String()
}

func (m boardModel) renderProcessPanel() string {
	var b strings.Builder
	b.WriteString(boardHeaderStyle.Render("Processes"))
	b.WriteString("\n")

	if len(m.processes) == 0 {
		b.WriteString("  No known processes.")
		return b.String()
	}

	for _, p := range m.processes {
		b.WriteString(fmt.Sprintf("  %s  %s  %s\n", p.id, p.status, p.heartbeat))
	}

	return b.String()
}

func (m boardModel) renderAlertsPanel() string {
	var b strings.Builder
	b.WriteString(boardHeaderStyle.Render("Alerts"))
	b.WriteString("\n")

	if len(m.alerts) == 0 {
		b.WriteString("  No active alerts.")
		return b.String()
	}

	for _, a := range m.alerts {
		sev := styleForBoardSeverity(a.severity).Render(fmt.Sprintf("[%s]", strings.ToUpper(a.severity)))
		b.WriteString(fmt.Sprintf("  %s %s\n", sev, a.message))
	}

	b.WriteString(fmt.Sprintf("\n  Total: %d alert(s)", len(m.alerts)))
	return b.String()
}

func styleForColumn(status models.Status) lipgloss.Style {
	switch status {
	case models.StatusTodo:
		return colTodo
	case models.StatusAnalysing:
		return colAnalysing
	case models.StatusAnalysed:
		return colAnalysed
	case models.StatusInProgress:
		return colInProgress
	case models.StatusDone:
		return colDone
	default:
		return colParked
	}
}

func styleForBoardSeverity(severity string) lipgloss.Style {
	switch strings.ToLower(severity) {
	case "high":
		return boardSeverityHigh
	case "medium":
		return boardSeverityMedium
	case "low":
		return boardSeverityLow
	default:
		return lipgloss.NewStyle()
	}
}

func loadBoardData() tea.Msg {
	result := boardLoadedMsg{
		columns: make(map[models.Status][]taskCard),
	}

	if Tasks != nil {
		tasks, err := Tasks.List(storage.TaskFilter{})
		if err != nil {
			result.err = fmt.Errorf("loading tasks: %w", err)
			return result
		}
		for _, t := range tasks {
			result.columns[t.Status] = append(result.columns[t.Status], taskCard{
				id:       shortID(t.ID),
				name:     t.Name,
				priority: t.Priority,
			})
		}
	}

	if Steering != nil {
		records, err := Steering.Processes()
		if err != nil {
			result.err = fmt.Errorf("loading processes: %w", err)
			return result
		}
		for _, r := range records {
			row := processRow{id: r.ID, status: r.Status}
			if !r.LastHeartbeat.IsZero() {
				row.heartbeat = r.LastHeartbeat.Format("15:04:05")
				if time.Since(r.LastHeartbeat) > 10*time.Minute {
					row.status = "stale"
				}
			}
			result.processes = append(result.processes, row)
		}
	}

	if AlertEngine != nil {
		alerts, err := AlertEngine.Evaluate()
		if err != nil {
			result.err = fmt.Errorf("loading alerts: %w", err)
			return result
		}

		// High severity first.
		sort.Slice(alerts, func(i, j int) bool {
			return boardSeverityRank(string(alerts[i].Severity)) < boardSeverityRank(string(alerts[j].Severity))
		})

		for _, a := range alerts {
			result.alerts = append(result.alerts, alertRow{
				severity: string(a.Severity),
				message:  a.Message,
			})
		}
	}

	return result
}

func boardSeverityRank(s string) int {
	switch s {
	case "high":
		return 0
	case "medium":
		return 1
	case "low":
		return 2
	default:
		return 3
	}
}

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Interactive TUI board of tasks, processes, and alerts",
	Long: `Launch an interactive terminal board showing tasks grouped by status
column, known agent processes with their heartbeat freshness, and active
alerts.

Navigate between panels with Tab, refresh with r, quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Tasks == nil {
			return fmt.Errorf("task service not initialized")
		}
		p := tea.NewProgram(newBoardModel(), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(boardCmd)
}
