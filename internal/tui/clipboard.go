package tui

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// clipboardFadeMsg clears the "Copied" notice after a short delay.
type clipboardFadeMsg struct{}

const clipboardFadeDelay = 2 * time.Second

// copyToClipboard writes text to the system clipboard via the OSC 52
// terminal escape sequence. Writes directly to /dev/tty to bypass
// bubbletea's managed output; OSC 52 has no screen effect so it is safe
// alongside the renderer.
//
// Uses BEL as the OSC terminator because the single byte survives layered
// terminal environments (SSH, tmux, screen) where ST's two-byte escape can
// be misinterpreted. Under tmux the sequence is additionally sent via DCS
// passthrough; duplicate clipboard sets are harmless.
func copyToClipboard(text string) tea.Cmd {
	return tea.Batch(
		func() tea.Msg {
			tty, err := os.OpenFile("/dev/tty", os.O_WRONLY, 0)
			if err != nil {
				return nil
			}
			defer tty.Close()

			encoded := base64.StdEncoding.EncodeToString([]byte(text))
			osc52 := fmt.Sprintf("\x1b]52;c;%s\x07", encoded)

			inTmux := os.Getenv("TMUX") != "" ||
				strings.HasPrefix(os.Getenv("TERM"), "tmux") ||
				strings.HasPrefix(os.Getenv("TERM"), "screen")
			if inTmux {
				fmt.Fprintf(tty, "\x1bPtmux;\x1b%s\x1b\\", osc52)
			}

			_, _ = tty.WriteString(osc52)
			return nil
		},
		tea.Tick(clipboardFadeDelay, func(time.Time) tea.Msg {
			return clipboardFadeMsg{}
		}),
	)
}
