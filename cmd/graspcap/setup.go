package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"

	"github.com/gwillem/graspcap/pkg/config"
	"github.com/gwillem/graspcap/pkg/gesture"
	"github.com/gwillem/graspcap/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	rule           = dimStyle.Render(strings.Repeat("━", 30))
)

type SetupCommand struct {
	SkipCalibration bool `long:"skip-calibration" description:"Only assign ports, keep existing calibration"`
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("graspcap setup"))
	fmt.Println(rule)
	fmt.Println()

	cfg := config.Default()
	if config.Exists(opts.Config) {
		loaded, err := config.LoadFrom(opts.Config)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	ports, err := assignHands()
	if err != nil {
		return err
	}
	arms := [2]*robot.ArmConfig{&cfg.Left, &cfg.Right}
	for _, h := range gesture.Hands() {
		arms[h].Port = ports[h]
	}

	for _, h := range gesture.Hands() {
		if c.SkipCalibration && arms[h].IsCalibrated() {
			continue
		}
		fmt.Println()
		fmt.Println(subHeaderStyle.Render(fmt.Sprintf("━━━ %s hand ━━━", h)))
		fmt.Println()
		if err := calibrateHand(arms[h], h); err != nil {
			return err
		}
		// keep the first hand if the second one is aborted
		if err := cfg.SaveTo(opts.Config); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
	}
	if err := cfg.SaveTo(opts.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println()
	fmt.Println(rule)
	fmt.Println(successStyle.Render("Both hands ready."))
	fmt.Printf("Configuration saved to %s\n\n", opts.Config)
	fmt.Println("Capture with: " + headerStyle.Render("graspcap capture"))
	return nil
}

// probe is a serial port that answered with a full set of SO-101 servos.
type probe struct {
	port   string
	bus    *feetech.Bus
	servos []feetech.FoundServo
}

// assignHands finds two leader arms and asks which hand each one is.
func assignHands() (ports [2]string, err error) {
	fmt.Println("Looking for leader arms...")
	fmt.Println()

	probes := scanPorts()
	if len(probes) < 2 {
		for _, p := range probes {
			p.bus.Close()
		}
		return ports, fmt.Errorf("found %d SO-101 arm(s), need two leader arms connected and powered on", len(probes))
	}
	fmt.Printf("Found %d arms. Each gripper will wiggle in turn.\n\n", len(probes))

	assigned := [2]bool{}
	for _, p := range probes {
		if assigned[gesture.Left] && assigned[gesture.Right] {
			p.bus.Close()
			continue
		}
		h, ok := identifyHand(p, assigned)
		if !ok {
			continue
		}
		ports[h] = p.port
		assigned[h] = true
	}

	fmt.Println()
	for _, h := range gesture.Hands() {
		if !assigned[h] {
			return ports, fmt.Errorf("no arm assigned to the %s hand", h)
		}
	}
	fmt.Println(successStyle.Render("Hands assigned:"))
	for _, h := range gesture.Hands() {
		fmt.Printf("  %-6s %s\n", h.String()+":", ports[h])
	}
	return ports, nil
}

func scanPorts() []probe {
	names, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return nil
	}

	var probes []probe
	for _, name := range names {
		// Skip Bluetooth ports on macOS
		if strings.Contains(name, "Bluetooth") {
			continue
		}
		p, err := probePort(name)
		if err != nil {
			continue
		}
		fmt.Printf("  SO-101 arm on %s\n", name)
		probes = append(probes, p)
	}
	return probes
}

func probePort(port string) (probe, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return probe{}, err
	}

	motors := len(robot.AllMotors())
	servos, err := bus.Scan(ctx, 1, motors)
	if err != nil {
		bus.Close()
		return probe{}, err
	}
	if !hasAllMotors(servos) {
		bus.Close()
		return probe{}, fmt.Errorf("not an SO-101 arm (expected %d servos with IDs 1-%d)", motors, motors)
	}
	return probe{port: port, bus: bus, servos: servos}, nil
}

func hasAllMotors(servos []feetech.FoundServo) bool {
	motors := len(robot.AllMotors())
	if len(servos) != motors {
		return false
	}
	seen := make(map[int]bool, motors)
	for _, s := range servos {
		if s.ID < 1 || s.ID > motors || seen[s.ID] {
			return false
		}
		seen[s.ID] = true
	}
	return true
}

// identifyHand wiggles the gripper, the part the operator holds, and asks
// which hand it belongs to.
func identifyHand(p probe, assigned [2]bool) (gesture.Hand, bool) {
	defer p.bus.Close()

	gripperID := len(robot.AllMotors())
	for _, s := range p.servos {
		if s.ID == gripperID {
			if err := wiggle(feetech.NewServo(p.bus, s.ID, s.Model)); err != nil {
				fmt.Printf("  Could not wiggle %s: %v\n", p.port, err)
			}
			break
		}
	}

	var options []huh.Option[int]
	for _, h := range gesture.Hands() {
		if !assigned[h] {
			options = append(options, huh.NewOption(h.String()+" hand", int(h)))
		}
	}
	options = append(options, huh.NewOption("Skip this arm", -1))

	choice := -1
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title(fmt.Sprintf("Which hand is the arm on %s?", p.port)).
				Description("The arm whose gripper just moved").
				Options(options...).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	if choice < 0 {
		return 0, false
	}
	return gesture.Hand(choice), true
}

func wiggle(servo *feetech.Servo) error {
	ctx := context.Background()
	home, err := servo.Position(ctx)
	if err != nil {
		return fmt.Errorf("read position: %w", err)
	}
	if err := servo.Enable(ctx); err != nil {
		return fmt.Errorf("enable: %w", err)
	}
	defer servo.Disable(ctx)

	const moveMs = 500
	for _, offset := range []int{30, -30, 0} {
		servo.SetPositionWithTime(ctx, home+offset, moveMs)
		time.Sleep((moveMs + 100) * time.Millisecond)
	}
	return nil
}

func calibrateHand(arm *robot.ArmConfig, h gesture.Hand) error {
	fmt.Printf("Calibrating the %s hand on %s\n\n", h, arm.Port)

	p, err := probePort(arm.Port)
	if err != nil {
		return fmt.Errorf("connect to %s hand: %w", h, err)
	}
	defer p.bus.Close()

	ctx := context.Background()
	servos := make([]*feetech.Servo, len(robot.AllMotors()))
	for _, s := range p.servos {
		servos[s.ID-1] = feetech.NewServo(p.bus, s.ID, s.Model)
		// torque off so the operator can move the arm freely
		servos[s.ID-1].Disable(ctx)
	}

	fmt.Println(subHeaderStyle.Render("Range of motion"))
	fmt.Println("Sweep every joint to both ends. Close the gripper fully for a pinch,")
	fmt.Println("roll the wrist all the way both ways for point and fist.")
	fmt.Println()

	final, err := tea.NewProgram(newRangeModel(servos, arm.Hand)).Run()
	if err != nil {
		return fmt.Errorf("run calibration: %w", err)
	}
	m := final.(rangeModel)

	cal := m.calibration()
	if err := cal.Validate(); err != nil {
		return fmt.Errorf("%s hand: %w", h, err)
	}
	arm.Calibration = cal
	fmt.Printf("\n%s hand calibrated.\n", h)
	return nil
}

// jointRange tracks one joint during the range-of-motion sweep.
type jointRange struct {
	cur, lo, hi int
	seen        bool
}

func (r *jointRange) observe(pos int) {
	if !r.seen {
		r.lo, r.hi, r.seen = pos, pos, true
	}
	r.cur = pos
	r.lo = min(r.lo, pos)
	r.hi = max(r.hi, pos)
}

// rangeModel shows live joint ranges and the gesture the provisional
// calibration would report.
type rangeModel struct {
	servos []*feetech.Servo
	hand   robot.HandConfig
	joints []jointRange
	done   bool
}

type sweepTickMsg time.Time

func newRangeModel(servos []*feetech.Servo, hand robot.HandConfig) rangeModel {
	return rangeModel{
		servos: servos,
		hand:   hand,
		joints: make([]jointRange, len(servos)),
	}
}

func sweepTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return sweepTickMsg(t)
	})
}

func (m rangeModel) Init() tea.Cmd {
	return sweepTick()
}

func (m rangeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			m.done = true
			return m, tea.Quit
		}

	case sweepTickMsg:
		ctx := context.Background()
		for i, servo := range m.servos {
			if servo == nil {
				continue
			}
			if pos, err := servo.Position(ctx); err == nil {
				m.joints[i].observe(pos)
			}
		}
		return m, sweepTick()
	}
	return m, nil
}

func (m rangeModel) calibration() robot.Calibration {
	lo := make(map[robot.MotorName]int)
	hi := make(map[robot.MotorName]int)
	for i, name := range robot.AllMotors() {
		lo[name], hi[name] = m.joints[i].lo, m.joints[i].hi
	}
	return robot.FromRanges(lo, hi)
}

// preview is the gesture the current readings map to, or "" until every
// joint has moved.
func (m rangeModel) preview() string {
	cal := m.calibration()
	if cal.Validate() != nil {
		return ""
	}
	norm := make(map[robot.MotorName]float64, len(cal))
	for i, name := range robot.AllMotors() {
		norm[name] = cal[name].Normalize(m.joints[i].cur)
	}
	return robot.GestureOf(norm, m.hand).String()
}

// motorRole says what each joint drives during capture.
var motorRole = map[robot.MotorName]string{
	robot.ShoulderPan:  "hand heading",
	robot.ShoulderLift: "hand reach",
	robot.ElbowFlex:    "hand height",
	robot.WristRoll:    "point / fist",
	robot.Gripper:      "pinch",
}

// minUsefulRange is the raw span below which a joint is shown as unswept.
const minUsefulRange = 500

func (m rangeModel) View() string {
	if m.done {
		return ""
	}

	header := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	name := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	current := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	good := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	low := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	motors := robot.AllMotors()
	rows := make([][]string, len(motors))
	for i, motor := range motors {
		j := m.joints[i]
		rows[i] = []string{
			string(motor),
			motorRole[motor],
			fmt.Sprintf("%d", j.cur),
			fmt.Sprintf("%d", j.lo),
			fmt.Sprintf("%d", j.hi),
			fmt.Sprintf("%d", j.hi-j.lo),
		}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Motor", "Drives", "Current", "Min", "Max", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return header
			case col == 0:
				return name
			case col == 2:
				return current
			case col == 5 && row >= 0 && row < len(m.joints):
				if m.joints[row].hi-m.joints[row].lo > minUsefulRange {
					return good
				}
				return low
			}
			return cell
		})

	var sb strings.Builder
	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	if g := m.preview(); g != "" {
		sb.WriteString("Gesture now: " + successStyle.Render(g) + "\n\n")
	}
	sb.WriteString(dimStyle.Render("Press Enter when done"))
	return sb.String()
}
