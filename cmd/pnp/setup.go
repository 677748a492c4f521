package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"

	"github.com/gwillem/pickplace/internal/log"
	"github.com/gwillem/pickplace/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// minRange is the raw span below which a joint's recorded range is flagged.
const minRange = 500

type SetupCommand struct {
	Port string `long:"port" description:"Serial port (skip scanning)"`
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("Pick-and-place Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println()

	port := c.Port
	if port == "" {
		var err error
		if port, err = scanForMechanism(); err != nil {
			return err
		}
	}

	config := &robot.Config{Port: port}

	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Calibrating joints ━━━"))
	fmt.Println()
	cal, err := calibrate(port)
	if err != nil {
		return err
	}
	config.Calibration = cal

	if err := config.Save(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	log.Info("configuration saved", "file", robot.DefaultConfigFile, "port", port)

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", robot.DefaultConfigFile)
	fmt.Println()
	fmt.Println("Start operator control with: " + headerStyle.Render("pnp run"))
	return nil
}

func openBus(port string) (*feetech.Bus, error) {
	return feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
}

// isMechanism reports whether a scan found exactly the servo IDs of the
// pick-and-place joints.
func isMechanism(servos []feetech.FoundServo) bool {
	joints := robot.AllJoints()
	if len(servos) != len(joints) {
		return false
	}

	ids := make(map[int]bool)
	for _, s := range servos {
		ids[s.ID] = true
	}
	for i := 1; i <= len(joints); i++ {
		if !ids[i] {
			return false
		}
	}
	return true
}

func findPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}

	var found []string
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}

		bus, err := openBus(port)
		if err != nil {
			log.Debug("skip port", "port", port, "error", err)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		servos, err := bus.Scan(ctx, 1, len(robot.AllJoints()))
		cancel()
		bus.Close()

		if err != nil {
			log.Debug("scan failed", "port", port, "error", err)
			continue
		}
		if isMechanism(servos) {
			fmt.Printf("  Found mechanism on %s\n", port)
			found = append(found, port)
		}
	}
	return found, nil
}

func scanForMechanism() (string, error) {
	fmt.Println("Scanning serial ports...")
	fmt.Println()

	ports, err := findPorts()
	if err != nil {
		return "", err
	}
	switch len(ports) {
	case 0:
		fmt.Println("Make sure the servo bus is connected and powered on.")
		return "", errors.New("no servo bus with IDs 1-4 found")
	case 1:
		return ports[0], nil
	}

	options := make([]huh.Option[string], 0, len(ports))
	for _, p := range ports {
		options = append(options, huh.NewOption(p, p))
	}

	var port string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which port drives the mechanism?").
				Options(options...).
				Value(&port),
		),
	)
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("select port: %w", err)
	}
	return port, nil
}

// calibrate records the raw range of every joint while the user moves the
// mechanism by hand.
func calibrate(port string) (robot.Calibration, error) {
	bus, err := openBus(port)
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}
	defer bus.Close()

	joints := robot.AllJoints()

	scanCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	servos, err := bus.Scan(scanCtx, 1, len(joints))
	cancel()
	if err != nil {
		return nil, fmt.Errorf("scan servos: %w", err)
	}
	if !isMechanism(servos) {
		return nil, fmt.Errorf("expected %d servos with IDs 1-%d on %s", len(joints), len(joints), port)
	}

	ctx := context.Background()
	servoMap := make(map[robot.JointName]*feetech.Servo, len(joints))
	for _, s := range servos {
		servoMap[joints[s.ID-1]] = feetech.NewServo(bus, s.ID, s.Model)
	}
	// Disable all servos so the user can move the joints freely
	for _, servo := range servoMap {
		servo.Disable(ctx)
	}

	fmt.Println(subHeaderStyle.Render("Record range of motion"))
	fmt.Println("Move the elevator, elbow and wrist to both ends of travel.")
	fmt.Println("Open and close the intake fully.")
	fmt.Println()

	curPositions := make(map[robot.JointName]int)
	minPositions := make(map[robot.JointName]int)
	maxPositions := make(map[robot.JointName]int)
	for _, name := range joints {
		pos, err := servoMap[name].Position(ctx)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		curPositions[name] = pos
		minPositions[name] = pos
		maxPositions[name] = pos
	}

	model := newCalibrationModel(joints, servoMap, curPositions, minPositions, maxPositions)
	finalModel, err := tea.NewProgram(model).Run()
	if err != nil {
		return nil, fmt.Errorf("run calibration: %w", err)
	}
	cm := finalModel.(calibrationModel)

	cal := make(robot.Calibration, len(joints))
	for i, name := range joints {
		cal[name] = robot.MotorCalibration{
			ID:       i + 1,
			RangeMin: cm.minPositions[name],
			RangeMax: cm.maxPositions[name],
		}
		if cm.maxPositions[name]-cm.minPositions[name] < minRange {
			log.Warn("small calibrated range", "joint", name,
				"min", cm.minPositions[name], "max", cm.maxPositions[name])
		}
	}
	return cal, nil
}

// Calibration TUI model
type calibrationModel struct {
	joints       []robot.JointName
	servoMap     map[robot.JointName]*feetech.Servo
	curPositions map[robot.JointName]int
	minPositions map[robot.JointName]int
	maxPositions map[robot.JointName]int
	quitting     bool
}

type tickMsg time.Time

func newCalibrationModel(
	joints []robot.JointName,
	servoMap map[robot.JointName]*feetech.Servo,
	curPositions, minPositions, maxPositions map[robot.JointName]int,
) calibrationModel {
	return calibrationModel{
		joints:       joints,
		servoMap:     servoMap,
		curPositions: curPositions,
		minPositions: minPositions,
		maxPositions: maxPositions,
	}
}

func pollTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m calibrationModel) Init() tea.Cmd {
	return pollTick()
}

func (m calibrationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		ctx := context.Background()
		for _, name := range m.joints {
			pos, err := m.servoMap[name].Position(ctx)
			if err != nil {
				continue
			}
			m.curPositions[name] = pos
			m.minPositions[name] = min(m.minPositions[name], pos)
			m.maxPositions[name] = max(m.maxPositions[name], pos)
		}
		return m, pollTick()
	}

	return m, nil
}

func (m calibrationModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder

	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableJointStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableCurrentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	tableRangeGoodStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableRangeLowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	rows := make([][]string, 0, len(m.joints))
	ranges := make([]int, 0, len(m.joints))
	for _, name := range m.joints {
		rangeSize := m.maxPositions[name] - m.minPositions[name]
		ranges = append(ranges, rangeSize)
		rows = append(rows, []string{
			string(name),
			fmt.Sprintf("%d", m.curPositions[name]),
			fmt.Sprintf("%d", m.minPositions[name]),
			fmt.Sprintf("%d", m.maxPositions[name]),
			fmt.Sprintf("%d", rangeSize),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Joint", "Current", "Min", "Max", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableJointStyle
			case 1:
				return tableCurrentStyle
			case 4:
				if row >= 0 && row < len(ranges) && ranges[row] > minRange {
					return tableRangeGoodStyle
				}
				return tableRangeLowStyle
			default:
				return tableCellStyle
			}
		})

	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	sb.WriteString(dimStyle.Render("Press Enter when done"))

	return sb.String()
}
