// Command calibrate drives calibration.Calibrate end-to-end against a real
// serial port, rendering live per-joint ranges with a bubbletea TUI.
// Grounded on the pack's gwillem/lerobot-go cmd/lerobot/setup.go
// calibrationModel (tea.Program driving a live-updating range table).
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/so100-go/armctl/calibration"
	"github.com/so100-go/armctl/port"
	"github.com/so100-go/armctl/robot"
	"github.com/so100-go/armctl/store"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func main() {
	devicePath := flag.String("port", "", "serial device path, e.g. /dev/ttyUSB0")
	variant := flag.String("variant", "follower", "leader or follower")
	calFile := flag.String("calibration-file", "calibration.json", "path to the calibration store")
	deviceSerial := flag.String("device", "", "device serial to save this calibration under")
	flag.Parse()

	if *devicePath == "" || *deviceSerial == "" {
		fmt.Fprintln(os.Stderr, "usage: calibrate -port <path> -device <serial> [-variant leader|follower] [-calibration-file path]")
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

	m := newModel()
	prog := tea.NewProgram(m)

	process := calibration.Calibrate(handle, calibration.Callbacks{
		OnLive: func(live calibration.LiveData) {
			prog.Send(liveMsg(live))
		},
		OnProgress: func(s string) {
			prog.Send(progressMsg(s))
		},
	})
	m.process = process

	if _, err := prog.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "tui:", err)
		os.Exit(1)
	}

	rec, err := process.Result()
	if err != nil {
		fmt.Fprintln(os.Stderr, "calibration failed:", err)
		os.Exit(1)
	}

	s := store.NewFileStore(filepath.Join(filepath.Dir(*calFile), filepath.Base(*calFile)), profile)
	if err := s.Save(*deviceSerial, rec, m.sampleCount); err != nil {
		fmt.Fprintln(os.Stderr, "save calibration:", err)
		os.Exit(1)
	}

	fmt.Println(headerStyle.Render("Calibration saved."))
}

type liveMsg calibration.LiveData
type progressMsg string

type model struct {
	process     *calibration.Process
	live        calibration.LiveData
	progress    string
	sampleCount uint32
}

func newModel() *model { return &model{} }

func (m *model) Init() tea.Cmd { return nil }

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case liveMsg:
		m.live = calibration.LiveData(msg)
		m.sampleCount++
		return m, nil
	case progressMsg:
		m.progress = string(msg)
		if m.progress == "done" {
			return m, tea.Quit
		}
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", " ":
			if m.process != nil {
				m.process.Stop()
			}
			return m, nil
		case "ctrl+c", "q":
			if m.process != nil {
				m.process.Stop()
			}
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *model) View() string {
	t := table.New().Headers("Joint", "Current", "Min", "Max", "Range")
	for _, name := range robot.MotorNames {
		r := m.live[name]
		t.Row(string(name), fmt.Sprint(r.Current), fmt.Sprint(r.Min), fmt.Sprint(r.Max), fmt.Sprint(r.Range))
	}
	return headerStyle.Render("SO-100 Calibration") + "\n" +
		dimStyle.Render("move every joint through its full range, then press Enter") + "\n\n" +
		t.Render() + "\n\n" +
		dimStyle.Render(m.progress) + "\n"
}
