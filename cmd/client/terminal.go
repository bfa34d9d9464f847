package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"hockeysdk-go/internal/shared"
	"hockeysdk-go/pkg/hockey"
)

var stdin = bufio.NewReader(os.Stdin)

// terminalUI renders update prompts on a terminal.
type terminalUI struct {
	name string
	in   *bufio.Reader
	out  io.Writer
	yes  bool

	mu       sync.Mutex
	accept   bool
	releases shared.Releases
}

func newTerminalUI(name string, in *bufio.Reader, out io.Writer, yes bool) *terminalUI {
	return &terminalUI{name: name, in: in, out: out, yes: yes}
}

type noopDialog struct{}

func (noopDialog) Dismiss() {}

func (t *terminalUI) AppName() string      { return t.name }
func (t *terminalUI) IsFinishing() bool    { return false }
func (t *terminalUI) Toast(message string) { fmt.Fprintln(t.out, message) }
func (t *terminalUI) Finish()              {}

func (t *terminalUI) ShowUpdateDialog(p hockey.Prompt) hockey.Dialog {
	fmt.Fprintf(t.out, "%s\n%s\n", p.Title, p.Message)
	printReleases(t.out, p.Releases)

	answer := "y"
	if !t.yes {
		fmt.Fprintf(t.out, "%s or %s? [y/N] ", p.AcceptLabel, p.DeclineLabel)
		line, _ := t.in.ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(line))
	}
	if answer == "y" || answer == "yes" {
		p.Accept()
	} else {
		p.Decline()
	}
	return noopDialog{}
}

func (t *terminalUI) OpenUpdateScreen(s hockey.UpdateScreen) {
	if s.Mandatory {
		fmt.Fprintln(t.out, "This update is mandatory.")
	}
	printReleases(t.out, s.Releases)
	fmt.Fprintf(t.out, "Download: %s\n", s.DownloadURL)

	t.mu.Lock()
	t.accept = true
	t.releases = s.Releases
	t.mu.Unlock()
}

func (t *terminalUI) ShowExpiryScreen(message string) {
	fmt.Fprintln(t.out, message)
}

func (t *terminalUI) accepted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.accept
}

func (t *terminalUI) latest() shared.ReleaseDescriptor {
	t.mu.Lock()
	defer t.mu.Unlock()
	latest, _ := t.releases.Latest()
	return latest
}

func printReleases(out io.Writer, releases shared.Releases) {
	for _, r := range releases {
		fmt.Fprintf(out, "  %s (%d) %s\n", r.ShortVersion, r.Version, r.Title)
		if r.Notes != "" {
			fmt.Fprintf(out, "    %s\n", r.Notes)
		}
	}
}

func askSendCrashes(count int) hockey.CrashDecision {
	fmt.Printf("%d crash report(s) found. Send them? [y/N/a(lways)] ", count)
	line, _ := stdin.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return hockey.Send
	case "a", "always":
		return hockey.AlwaysSend
	default:
		return hockey.DontSend
	}
}
