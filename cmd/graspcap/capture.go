package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/graspcap/pkg/catalog"
	"github.com/gwillem/graspcap/pkg/gesture"
	"github.com/gwillem/graspcap/pkg/grasp"
	"github.com/gwillem/graspcap/pkg/record"
	"github.com/gwillem/graspcap/pkg/robot"
	"github.com/gwillem/graspcap/pkg/session"
)

type CaptureCommand struct {
	Hz     int  `long:"hz" description:"Loop frequency (overrides config)"`
	NoArms bool `long:"no-arms" description:"Run without leader arms; keys only"`
}

const (
	headerHeight = 3 // title + status + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Series plotted in the chart. Held counts are scaled so a full hold
// reaches the top.
var series = []struct {
	name  string
	color string
}{
	{"left grip", "196"},
	{"right grip", "51"},
	{"left held", "208"},
	{"right held", "46"},
	{"sphere held", "201"},
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	recStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

type captureModel struct {
	sess     *session.Session
	chart    *streamlinechart.Model
	width    int
	height   int
	logs     []string
	state    session.State
	quitting bool
}

func (m *captureModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the session
type stateMsg session.State
type logMsg string

func waitForState(sess *session.Session) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-sess.States())
	}
}

func waitForLog(sess *session.Session) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-sess.Logs())
	}
}

func (m *captureModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = max(40, m.width-borderSize-2)
	height = max(10, m.height-headerHeight-legendHeight-footerHeight-borderSize)
	return width, height
}

func (m *captureModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialCaptureModel(sess *session.Session) captureModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-100, 100),
	)
	for _, s := range series {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(s.color))
		chart.SetDataSetStyles(s.name, runes.ThinLineStyle, style)
	}
	return captureModel{sess: sess, chart: &chart}
}

func (m captureModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.sess),
		waitForLog(m.sess),
	)
}

// keyCommands maps keys to session commands.
var keyCommands = map[string]session.Command{
	"s":     session.CmdStart,
	"c":     session.CmdClear,
	"enter": session.CmdSave,
	" ":     session.CmdSave,
	"right": session.CmdNext,
	"n":     session.CmdNext,
	"left":  session.CmdPrev,
	"p":     session.CmdPrev,
	"g":     session.CmdSphere,
}

func (m captureModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		key := msg.String()
		switch key {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
		if cmd, ok := keyCommands[key]; ok {
			m.sess.Send(cmd)
		}

	case stateMsg:
		st := session.State(msg)
		m.state = st
		held := float64(100) / grasp.DefaultMaxPinned
		m.chart.PushDataSet("left grip", st.Hands[gesture.Left].Grip)
		m.chart.PushDataSet("right grip", st.Hands[gesture.Right].Grip)
		m.chart.PushDataSet("left held", float64(st.Held[grasp.SlotLeft])*held)
		m.chart.PushDataSet("right held", float64(st.Held[grasp.SlotRight])*held)
		m.chart.PushDataSet("sphere held", float64(st.Held[grasp.SlotSphere])*held)
		m.chart.DrawAll()
		return m, waitForState(m.sess)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.sess)
	}

	return m, nil
}

func (m captureModel) status() string {
	st := m.state
	var parts []string
	if st.Recording {
		parts = append(parts, recStyle.Render("● REC"))
	} else {
		parts = append(parts, statusStyle.Render("○ idle"))
	}
	parts = append(parts,
		fmt.Sprintf("object %s (%d/%d)", st.Object, st.ObjectIndex+1, st.Objects),
		fmt.Sprintf("frames %d", st.Frames),
		fmt.Sprintf("held L%d R%d S%d", st.Held[grasp.SlotLeft], st.Held[grasp.SlotRight], st.Held[grasp.SlotSphere]),
		fmt.Sprintf("saved %d", st.Saved),
	)
	if st.Full {
		parts = append(parts, recStyle.Render("save now"))
	}
	return strings.Join(parts, "  ")
}

func (m captureModel) View() string {
	if m.quitting {
		return "Capture stopped.\n"
	}

	var sb strings.Builder

	sb.WriteString(titleStyle.Render("graspcap"))
	sb.WriteString(fmt.Sprintf(" - %d Hz", m.sess.Hz()))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n")
	sb.WriteString(m.status())
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")
	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(20, m.width-4)).
		Foreground(lipgloss.Color("9"))

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("s start  c clear  enter save  ←/→ object  g sphere  q quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend() string {
	var items []string
	for _, s := range series {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(s.color)).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+s.name)
	}
	return strings.Join(items, "  ")
}

// idleHands stands in for the arms with --no-arms: both hands rest at
// their bases with no gesture.
type idleHands struct {
	bases [2]robot.HandConfig
}

func (h idleHands) Track(_ context.Context, hand gesture.Hand) (robot.HandPose, error) {
	return robot.HandPose{Position: h.bases[hand].Base}, nil
}

func (c *CaptureCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Hz > 0 {
		cfg.Hz = c.Hz
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := os.MkdirAll(filepath.Dir(cfg.Recording.Catalog), 0o755); err != nil {
		return fmt.Errorf("create catalog dir: %w", err)
	}
	cat, err := catalog.Open(cfg.Recording.Catalog)
	if err != nil {
		return err
	}
	defer cat.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sopts := session.Options{
		Config: cfg,
		Writer: record.NewWriter(cat, logger.Named("writer")),
		Logger: logger.Named("session"),
	}
	if c.NoArms {
		sopts.Tracker = idleHands{bases: [2]robot.HandConfig{cfg.Left.Hand, cfg.Right.Hand}}
	} else {
		if !cfg.Left.IsCalibrated() || !cfg.Right.IsCalibrated() {
			return fmt.Errorf("arms not calibrated (run 'graspcap setup' first)")
		}
		hands, err := robot.OpenHands(ctx, cfg.Left, cfg.Right, logger.Named("robot"))
		if err != nil {
			return err
		}
		defer hands.Close()
		sopts.Tracker = hands
		sopts.Haptics = hands
	}

	sess, err := session.New(sopts)
	if err != nil {
		return err
	}
	logger.Info("capture ready", zap.String("object", sess.Object()), zap.Int("hz", cfg.Hz))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sess.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	p := tea.NewProgram(initialCaptureModel(sess), tea.WithAltScreen())
	_, runErr := p.Run()
	cancel()
	if err := g.Wait(); err != nil {
		return fmt.Errorf("capture loop: %w", err)
	}
	if runErr != nil {
		return fmt.Errorf("run ui: %w", runErr)
	}
	return nil
}
