package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the citylink banner to w.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{`       _ _        _ _       _    `, "#34d399"},
		{`   ___(_) |_ _  _| (_)_ __ | | __`, "#2dd4bf"},
		{`  / __| | __| || | | | '_ \| |/ /`, "#22d3ee"},
		{` | (__| | |_ \_, | | | | | |   < `, "#38bdf8"},
		{`  \___|_|\__|__/ |_|_|_| |_|_|\_\`, "#60a5fa"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
