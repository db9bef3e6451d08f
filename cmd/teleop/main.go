// Command teleop drives a teleop.Session in keyboard mode against a real
// serial port, translating bubbletea key events into session.KeyEvent
// calls. Grounded on the pack's gwillem/lerobot-go setup.go tea.KeyMsg
// dispatch pattern. The engine itself has no terminal dependency.
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/so100-go/armctl/port"
	"github.com/so100-go/armctl/robot"
	"github.com/so100-go/armctl/store"
	"github.com/so100-go/armctl/teleop"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// keyNames maps bubbletea's key strings to the profile's canonical key
// codes (spec.md §4.4 bindings).
var keyNames = map[string]string{
	"left":  "ArrowLeft",
	"right": "ArrowRight",
	"up":    "ArrowUp",
	"down":  "ArrowDown",
	"w":     "W",
	"s":     "S",
	"a":     "A",
	"d":     "D",
	"q":     "Q",
	"e":     "E",
	"o":     "O",
	"c":     "C",
	"esc":   "Esc",
}

func main() {
	devicePath := flag.String("port", "", "serial device path")
	variant := flag.String("variant", "follower", "leader or follower")
	calFile := flag.String("calibration-file", "calibration.json", "path to the calibration store")
	deviceSerial := flag.String("device", "", "device serial whose calibration to load")
	flag.Parse()

	if *devicePath == "" {
		fmt.Fprintln(os.Stderr, "usage: teleop -port <path> [-device <serial>] [-calibration-file path]")
		os.Exit(2)
	}

	p, err := port.OpenSerial(*devicePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open port:", err)
		os.Exit(1)
	}
	defer p.Close()

	profile := robot.NewProfile(robot.Variant(*variant))
	handle := robot.NewHandle(p, profile, nil)

	var cal robot.CalibrationRecord
	if *deviceSerial != "" {
		s := store.NewFileStore(*calFile, profile)
		if loaded, ok, err := s.Load(*deviceSerial); err == nil && ok {
			cal = loaded
		}
	}

	m := &model{}
	prog := tea.NewProgram(m)

	session := teleop.New(handle, teleop.Config{
		Calibration: cal,
		Controller:  teleop.Keyboard,
		OnState: func(st teleop.TeleopState) {
			prog.Send(stateMsg(st))
		},
	})
	session.Start()
	defer session.Disconnect()
	m.session = session

	if _, err := prog.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "tui:", err)
		os.Exit(1)
	}
}

type stateMsg teleop.TeleopState

type model struct {
	session *teleop.Session
	state   teleop.TeleopState
}

func (m *model) Init() tea.Cmd { return nil }

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateMsg:
		m.state = teleop.TeleopState(msg)
		if !m.state.Active {
			return m, tea.Quit
		}
		return m, nil
	case tea.KeyMsg:
		key := msg.String()
		if key == "ctrl+c" {
			return m, tea.Quit
		}
		if code, ok := keyNames[key]; ok {
			m.session.KeyEvent(code, true)
		}
		return m, nil
	}
	return m, nil
}

func (m *model) View() string {
	out := headerStyle.Render("SO-100 Teleoperation") + "\n" +
		dimStyle.Render("arrows: pan/lift  w/s: elbow  a/d: wrist flex  q/e: wrist roll  o/c: gripper  esc: stop") + "\n\n"
	for _, mc := range m.state.Motors {
		out += fmt.Sprintf("%-16s %4d  [%d, %d]\n", mc.Name, mc.CurrentPosition, mc.MinPosition, mc.MaxPosition)
	}
	return out
}
