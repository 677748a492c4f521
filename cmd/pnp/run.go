package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/pickplace/internal/log"
	"github.com/gwillem/pickplace/pkg/pnp"
	"github.com/gwillem/pickplace/pkg/robot"
)

type RunCommand struct {
	Hz        int    `long:"hz" default:"50" description:"Control loop frequency"`
	Telemetry string `long:"telemetry" description:"Serve telemetry on this address, e.g. :8080"`
}

const (
	headerHeight = 2    // title + blank line
	legendHeight = 2    // legend row + blank
	tableHeight  = 7    // joint table
	footerHeight = 7    // log box height
	maxLogs      = 5    // number of log messages to show
	borderSize   = 2    // chart border
	errorRange   = 0.25 // chart y range, joint units
)

// Joint colors - distinct colors for each controlled joint
var jointColors = map[robot.JointName]string{
	robot.Elevator: "196", // red
	robot.Elbow:    "226", // yellow
	robot.Wrist:    "51",  // cyan
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	atGoalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	movingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
)

type runModel struct {
	runner   *pnp.Runner
	keyboard *pnp.Keyboard
	chart    *streamlinechart.Model
	width    int      // terminal width
	height   int      // terminal height
	logs     []string // last N log messages
	last     pnp.State
	quitting bool
}

func (m *runModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the runner
type stateMsg pnp.State
type logMsg string

func waitForState(r *pnp.Runner) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-r.States())
	}
}

func waitForLog(r *pnp.Runner) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-r.Logs())
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *runModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 12 // default size before we know terminal size
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-legendHeight-tableHeight-footerHeight-borderSize, 6)
	return width, height
}

func newRunModel(r *pnp.Runner, kb *pnp.Keyboard) runModel {
	chart := streamlinechart.New(80, 12,
		streamlinechart.WithYRange(-errorRange, errorRange),
	)
	for _, name := range robot.ControlledJoints() {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(jointColors[name]))
		chart.SetDataSetStyles(string(name), runes.ThinLineStyle, style)
	}

	return runModel{
		runner:   r,
		keyboard: kb,
		chart:    &chart,
	}
}

func (m runModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.runner),
		waitForLog(m.runner),
	)
}

func (m runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chart.Resize(m.chartSize())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		default:
			m.keyboard.Press(msg.String())
		}

	case stateMsg:
		m.last = pnp.State(msg)
		out := m.last.Output
		for _, name := range robot.ControlledJoints() {
			m.chart.PushDataSet(string(name), out.Joint(name).PositionError)
		}
		m.chart.DrawAll()
		return m, waitForState(m.runner)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.runner)
	}

	return m, nil
}

func (m runModel) jointTable() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	out := m.last.Output
	joints := robot.ControlledJoints()
	rows := make([][]string, 0, len(joints)+1)
	for _, name := range joints {
		j := out.Joint(name)
		rows = append(rows, []string{
			string(name),
			fmt.Sprintf("%.3f", j.Target),
			fmt.Sprintf("%.3f", j.Goal),
			fmt.Sprintf("%.3f", j.Setpoint),
			fmt.Sprintf("%+.4f", j.PositionError),
			fmt.Sprintf("%+.3f", j.VelocityError),
			fmt.Sprintf("%+.2f", j.Command),
		})
	}
	rows = append(rows, []string{
		string(robot.Intake),
		fmt.Sprintf("%.3f", out.Intake),
		"", "", "", "",
		fmt.Sprintf("%+.2f", out.Intake),
	})

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(statusStyle).
		Headers("Joint", "Target", "Goal", "Setpoint", "Pos err", "Vel err", "Volts").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 0 && row >= 0 && row < len(joints) {
				if out.Joint(joints[row]).AtGoal {
					return atGoalStyle
				}
				return movingStyle
			}
			return cellStyle
		}).
		Render()
}

func (m runModel) View() string {
	if m.quitting {
		return "Operator control stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("Pick-and-place operator control"))
	sb.WriteString(fmt.Sprintf(" - %d Hz", m.runner.Hz()))
	sb.WriteString(statusStyle.Render(fmt.Sprintf("  tick %d  read/write errors %d/%d",
		m.last.Output.Tick, m.runner.ReadErrors(), m.runner.WriteErrors())))
	sb.WriteString("\n\n")

	// Chart of position errors
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")
	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	sb.WriteString(m.jointTable())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20)).
		Foreground(lipgloss.Color("9")) // bright red

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("←/→ move elevator, 0-9 intake, space stop, q quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend() string {
	var items []string
	for _, name := range robot.ControlledJoints() {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(jointColors[name])).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+string(name))
	}
	return strings.Join(items, "  ")
}

func (c *RunCommand) Execute(args []string) error {
	// Joint tuning is per tick, so it follows the loop rate.
	consts := robot.DefaultConstants().WithPeriod(pnp.Period(c.Hz))
	arm, err := openArm(consts)
	if err != nil {
		return err
	}
	defer arm.Close()

	sink, stopTelemetry, err := telemetrySink(c.Telemetry)
	if err != nil {
		return err
	}
	defer stopTelemetry()

	kb := pnp.NewKeyboard()
	sub := robot.NewSubsystem(arm)
	orch := pnp.NewOperatorControl(sub, kb, sink, consts)
	runner := pnp.NewRunner(arm, c.Hz)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- runner.Run(ctx, orch)
	}()

	p := tea.NewProgram(newRunModel(runner, kb), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return fmt.Errorf("run TUI: %w", err)
	}

	// Wait for the runner to command zero before the bus closes.
	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("operator control stopped", "run", orch.RunID())
	return nil
}
