// Command vp8-dash shows the streams of a running vp8-inspector in the
// terminal.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8080", "Base URL of the inspector HTTP API")
	flag.Parse()

	client := &http.Client{Timeout: 2 * time.Second}
	p := tea.NewProgram(newModel(*addr, client), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Dashboard error: %v\n", err)
		os.Exit(1)
	}
}
