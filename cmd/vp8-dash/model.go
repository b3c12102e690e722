package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zsiec/vp8inspector/internal/ingestion/registry"
)

const pollInterval = time.Second

type streamList struct {
	Streams []*registry.Stream `json:"streams"`
	Count   int                `json:"count"`
}

type (
	tickMsg    time.Time
	streamsMsg []*registry.Stream
	errMsg     struct{ err error }
)

type model struct {
	client  *http.Client
	baseURL string

	streams   []*registry.Stream
	err       error
	updatedAt time.Time
	width     int
	quitting  bool
}

func newModel(baseURL string, client *http.Client) *model {
	return &model{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (m *model) Init() tea.Cmd {
	return fetchStreams(m.client, m.baseURL)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetchStreams(m.client, m.baseURL)
		}

	case tickMsg:
		return m, fetchStreams(m.client, m.baseURL)

	case streamsMsg:
		m.streams = msg
		m.err = nil
		m.updatedAt = time.Now()
		return m, tickEvery(pollInterval)

	case errMsg:
		m.err = msg.err
		return m, tickEvery(pollInterval)
	}

	return m, nil
}

var columns = []struct {
	title string
	width int
}{
	{"STREAM", 18}, {"SSRC", 10}, {"RESOLUTION", 11}, {"FRAMES", 8}, {"KEY", 6},
	{"CORRUPT", 8}, {"UNSUPP", 7}, {"LOST", 7}, {"STATUS", 10},
}

func (m *model) View() string {
	if m.quitting {
		return "Shutting down dashboard...\n"
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("VP8 Inspector"))
	b.WriteString("\n")

	status := infoStyle.Render(fmt.Sprintf("%d streams", len(m.streams)))
	if !m.updatedAt.IsZero() {
		status += mutedStyle.Render("  updated " + m.updatedAt.Format("15:04:05"))
	}
	if m.err != nil {
		status += "  " + errorStyle.Render(m.err.Error())
	}
	b.WriteString(status)
	b.WriteString("\n")

	b.WriteString(tableStyle.Render(m.renderTable()))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("q quit • r refresh"))
	b.WriteString("\n")
	return b.String()
}

func (m *model) renderTable() string {
	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = cell(columnStyle, c.title, c.width)
	}
	rows := []string{lipgloss.JoinHorizontal(lipgloss.Top, header...)}

	if len(m.streams) == 0 {
		rows = append(rows, mutedStyle.Render("waiting for streams"))
	}

	for _, s := range m.streams {
		res := s.Resolution
		if res == "" {
			res = "-"
		}
		values := []string{
			cell(lipgloss.NewStyle(), s.ID, columns[0].width),
			cell(mutedStyle, fmt.Sprintf("%08x", s.SSRC), columns[1].width),
			cell(lipgloss.NewStyle(), res, columns[2].width),
			cell(lipgloss.NewStyle(), formatNumber(s.FramesInspected), columns[3].width),
			cell(lipgloss.NewStyle(), formatNumber(s.Keyframes), columns[4].width),
			cell(countStyle(s.CorruptFrames), formatNumber(s.CorruptFrames), columns[5].width),
			cell(countStyle(s.UnsupportedFrames), formatNumber(s.UnsupportedFrames), columns[6].width),
			cell(countStyle(s.PacketsLost), formatNumber(s.PacketsLost), columns[7].width),
			cell(lipgloss.NewStyle(), statusBadge(string(s.Status)), columns[8].width),
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, values...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// cell renders s padded to width. Plain text longer than the column is
// truncated; pre-styled text is sized by the caller.
func cell(style lipgloss.Style, s string, width int) string {
	if r := []rune(s); len(r) > width-1 && !strings.Contains(s, "\x1b") {
		s = string(r[:width-2]) + "…"
	}
	return style.Width(width).Render(s)
}

func formatNumber(n int64) string {
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1e9)
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1e6)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1e3)
	}
	return fmt.Sprintf("%d", n)
}

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchStreams(client *http.Client, baseURL string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), pollInterval)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/v1/streams", nil)
		if err != nil {
			return errMsg{err}
		}
		resp, err := client.Do(req)
		if err != nil {
			return errMsg{err}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return errMsg{fmt.Errorf("unexpected status %s", resp.Status)}
		}

		var list streamList
		if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
			return errMsg{fmt.Errorf("failed to decode streams: %w", err)}
		}
		return streamsMsg(list.Streams)
	}
}
