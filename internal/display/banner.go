package display

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/backmassage/ephysbatch/internal/term"
)

const bannerArt = `       _         _         _         _       _
  ___ | |_ _  _ | |__  ___| |__  __ _| |_ ___| |_
 / -_)| ' \ || || '_ \(_-<| '_ \/ _' |  _/ _|| ' \
 \___||_||_\_, ||_.__//__/|_.__/\__,_|\__\__||_||_|
   |_|     |__/`

var bannerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("13"))

var subtitleStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("8"))

// PrintBanner prints the ASCII art banner and version line to w. Styling is
// applied only when terminal colors are enabled.
func PrintBanner(w io.Writer, version string) {
	art, sub := bannerArt, "electrophysiology feature batch v"+version
	if term.Enabled() {
		art, sub = bannerStyle.Render(art), subtitleStyle.Render(sub)
	}
	fmt.Fprintln(w, art)
	fmt.Fprintln(w, sub)
	fmt.Fprintln(w)
}
