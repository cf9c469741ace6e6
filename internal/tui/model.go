// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pljakobs/distroget/pkg/catalog"
	"github.com/pljakobs/distroget/pkg/distroget"
)

// searchTimeout clears the type-ahead buffer after a pause, like the
// curses menus the browser replaces.
const searchTimeout = 900 * time.Millisecond

// sidePaneWidth is the downloads pane; it appears once transfers exist
// and the window is wide enough for both panes.
const sidePaneWidth = 44

type mode int

const (
	modeBrowse mode = iota
	modeDest
)

type engineEventMsg struct{ ev distroget.ProgressEvent }

type tickMsg time.Time

type searchTimeoutMsg struct{ gen int }

type destReadyMsg struct {
	mgr  *distroget.Manager
	dest distroget.Destination
	err  error
}

type stoppedMsg struct{}

// row is one browser line: an image entry (url set) or a subsection.
type row struct {
	label   string
	url     string
	section *catalog.Node
}

type model struct {
	ctx  context.Context
	opts Options
	feed *engineFeed

	width  int
	height int

	// browser position
	path   []string
	cursor int
	stack  []int

	// selection; order preserves the sequence images were marked in
	selected map[string]struct{}
	order    []string

	// type-ahead search
	searching bool
	searchBuf string
	searchGen int

	// destination prompt
	mode       mode
	destInput  textinput.Model
	destErr    string
	connecting bool

	// engine
	mgr           *distroget.Manager
	dest          distroget.Destination
	snap          distroget.Snapshot
	bar           progress.Model
	speed         *speedometer
	tickScheduled bool

	status   string
	quitting bool
	err      error
}

func newModel(ctx context.Context, opts Options, feed *engineFeed) model {
	ti := textinput.New()
	ti.Placeholder = "/path/to/dir or user@host:/path"
	ti.CharLimit = 256
	ti.Width = 48
	ti.ShowSuggestions = true
	if len(opts.History) > 0 {
		ti.SetSuggestions(opts.History)
	}

	bar := progress.New(progress.WithDefaultGradient())

	return model{
		ctx:       ctx,
		opts:      opts,
		feed:      feed,
		selected:  make(map[string]struct{}),
		destInput: ti,
		bar:       bar,
		speed:     &speedometer{},
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case engineEventMsg:
		m.refreshSnapshot()
		return m, m.maybeTick()

	case tickMsg:
		m.tickScheduled = false
		m.refreshSnapshot()
		return m, m.maybeTick()

	case searchTimeoutMsg:
		if msg.gen == m.searchGen {
			m.searching = false
			m.searchBuf = ""
		}
		return m, nil

	case destReadyMsg:
		m.connecting = false
		if msg.err != nil {
			m.destErr = msg.err.Error()
			return m, nil
		}
		m.mgr = msg.mgr
		m.dest = msg.dest
		m.mode = modeBrowse
		m.destInput.Blur()
		if m.opts.OnDestination != nil {
			m.opts.OnDestination(msg.dest.String())
		}
		m.queueSelected()
		m.refreshSnapshot()
		m.status = "downloading to " + msg.dest.String()
		return m, m.maybeTick()

	case stoppedMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		if m.quitting {
			return m, nil
		}
		if m.mode == modeDest {
			return m.updateDest(msg)
		}
		if m.searching {
			return m.updateSearch(msg)
		}
		return m.handleBrowseKey(msg.String())
	}

	if m.mode == modeDest {
		var cmd tea.Cmd
		m.destInput, cmd = m.destInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

// refreshSnapshot pulls engine state; events and ticks both land here
// so the view never polls the manager itself.
func (m *model) refreshSnapshot() {
	if m.mgr == nil {
		return
	}
	m.snap = m.mgr.Status()
	m.speed.observe(activeBytes(m.snap))
}

// maybeTick arms the redraw ticker, only while transfers are pending
// and never more than once at a time.
func (m *model) maybeTick() tea.Cmd {
	if m.tickScheduled || m.mgr == nil || !m.snap.Pending() {
		return nil
	}
	m.tickScheduled = true
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// rows lists the current section: its entries in document order, then
// its subsections sorted by title.
func (m model) rows() []row {
	n := m.node()
	if n == nil {
		return nil
	}
	out := make([]row, 0, len(n.Entries)+len(n.Children))
	for _, e := range n.Entries {
		out = append(out, row{label: e.Name, url: e.URL})
	}
	for _, child := range n.SortedChildren() {
		out = append(out, row{label: child.Title, section: child})
	}
	return out
}

func (m model) node() *catalog.Node {
	return m.opts.Catalog.Find(m.path...)
}

func (m model) handleBrowseKey(key string) (tea.Model, tea.Cmd) {
	m.status = ""
	rows := m.rows()

	switch key {
	case "q", "ctrl+c":
		return m.shutdown()

	case "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down":
		if m.cursor < len(rows)-1 {
			m.cursor++
		}
	case "pgup":
		m.cursor -= m.pageSize()
		if m.cursor < 0 {
			m.cursor = 0
		}
	case "pgdown":
		m.cursor += m.pageSize()
		if m.cursor > len(rows)-1 {
			m.cursor = len(rows) - 1
		}
	case "home":
		m.cursor = 0
	case "end":
		m.cursor = len(rows) - 1

	case "enter", "right":
		if m.cursor >= len(rows) {
			break
		}
		if r := rows[m.cursor]; r.section != nil {
			m.stack = append(m.stack, m.cursor)
			m.path = append(append([]string(nil), m.path...), r.section.Title)
			m.cursor = 0
		} else {
			m.toggleURL(r.url)
		}

	case "left", "esc":
		if len(m.path) == 0 {
			break
		}
		m.path = m.path[:len(m.path)-1]
		m.cursor = 0
		if n := len(m.stack); n > 0 {
			m.cursor = m.stack[n-1]
			m.stack = m.stack[:n-1]
		}

	case " ":
		if m.cursor >= len(rows) {
			break
		}
		if r := rows[m.cursor]; r.section != nil {
			m.toggleSection(r.section)
		} else {
			m.toggleURL(r.url)
		}

	case "a":
		if n := m.node(); n != nil {
			m.toggleSection(n)
		}

	case "d":
		return m.openDestPrompt()

	case "/":
		m.searching = true
		m.searchBuf = ""
	}
	return m, nil
}

func (m model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.searching = false
		m.searchBuf = ""
		return m, nil
	case "backspace":
		if r := []rune(m.searchBuf); len(r) > 0 {
			m.searchBuf = string(r[:len(r)-1])
		}
		m.jumpToPrefix()
		m.searchGen++
		return m, m.searchTimer()
	}
	if msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace {
		m.searchBuf += msg.String()
		m.jumpToPrefix()
		m.searchGen++
		return m, m.searchTimer()
	}
	// any other key leaves search capture and acts normally
	m.searching = false
	m.searchBuf = ""
	return m.handleBrowseKey(msg.String())
}

func (m *model) jumpToPrefix() {
	if m.searchBuf == "" {
		return
	}
	q := strings.ToLower(m.searchBuf)
	for i, r := range m.rows() {
		if strings.HasPrefix(strings.ToLower(r.label), q) {
			m.cursor = i
			return
		}
	}
}

func (m model) searchTimer() tea.Cmd {
	gen := m.searchGen
	return tea.Tick(searchTimeout, func(time.Time) tea.Msg { return searchTimeoutMsg{gen: gen} })
}

func (m *model) toggleURL(url string) {
	if _, ok := m.selected[url]; ok {
		if m.mgr != nil {
			m.status = "already queued"
			return
		}
		m.unselect(url)
		return
	}
	m.selectURL(url)
}

// toggleSection marks every image under sec, or unmarks them all when
// every one is already marked.
func (m *model) toggleSection(sec *catalog.Node) {
	urls := sec.URLs()
	if len(urls) == 0 {
		return
	}
	all := true
	for _, u := range urls {
		if _, ok := m.selected[u]; !ok {
			all = false
			break
		}
	}
	if all {
		if m.mgr != nil {
			m.status = "already queued"
			return
		}
		for _, u := range urls {
			m.unselect(u)
		}
		return
	}
	for _, u := range urls {
		if _, ok := m.selected[u]; !ok {
			m.selectURL(u)
		}
	}
}

func (m *model) selectURL(url string) {
	m.selected[url] = struct{}{}
	m.order = append(m.order, url)
	if m.mgr != nil {
		m.mgr.Add(url)
	}
}

func (m *model) unselect(url string) {
	delete(m.selected, url)
	for i, u := range m.order {
		if u == url {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// queueSelected hands everything marked so far to the freshly created
// manager, in the order it was marked.
func (m *model) queueSelected() {
	if m.mgr == nil || len(m.order) == 0 {
		return
	}
	m.mgr.Add(m.order...)
}

func (m model) openDestPrompt() (tea.Model, tea.Cmd) {
	if m.mgr != nil {
		m.status = "already downloading to " + m.dest.String()
		return m, nil
	}
	m.mode = modeDest
	m.destErr = ""
	if m.destInput.Value() == "" {
		m.destInput.SetValue(m.opts.InitialDest)
	}
	m.destInput.CursorEnd()
	return m, m.destInput.Focus()
}

func (m model) updateDest(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m.shutdown()
	case "esc":
		if m.connecting {
			return m, nil
		}
		m.mode = modeBrowse
		m.destErr = ""
		m.destInput.Blur()
		return m, nil
	case "enter":
		if m.connecting {
			return m, nil
		}
		raw := strings.TrimSpace(m.destInput.Value())
		if raw == "" {
			m.destErr = "destination required"
			return m, nil
		}
		m.connecting = true
		m.destErr = ""
		return m, m.connectCmd(raw)
	}
	var cmd tea.Cmd
	m.destInput, cmd = m.destInput.Update(msg)
	return m, cmd
}

// connectCmd validates the destination and brings the engine up off
// the update loop: remote destinations get their ssh preflight (key
// check plus mkdir) before anything is queued. Failures land back in
// the prompt.
func (m model) connectCmd(raw string) tea.Cmd {
	ctx := m.ctx
	settings := m.opts.Settings
	emit := m.feed.emit
	return func() tea.Msg {
		dest := distroget.ParseDestination(expandPath(raw))
		var fwd distroget.Forwarder
		if dest.IsRemote() {
			scp := distroget.NewScpForwarder(dest.Host, dest.Path)
			if err := scp.Preflight(ctx); err != nil {
				return destReadyMsg{err: err}
			}
			fwd = scp
		}
		mgr, err := distroget.New(dest, settings, emit)
		if err != nil {
			return destReadyMsg{err: err}
		}
		if fwd != nil {
			mgr.UseForwarder(fwd)
		}
		if err := mgr.Start(ctx); err != nil {
			return destReadyMsg{err: err}
		}
		return destReadyMsg{mgr: mgr, dest: dest}
	}
}

func (m model) shutdown() (tea.Model, tea.Cmd) {
	if m.quitting {
		return m, nil
	}
	m.quitting = true
	if m.mgr == nil {
		return m, tea.Quit
	}
	mgr := m.mgr
	return m, func() tea.Msg {
		mgr.Stop(time.Second)
		return stoppedMsg{}
	}
}

func (m model) pageSize() int {
	if m.height > 8 {
		return m.height - 6
	}
	return 5
}

func (m model) View() string {
	if m.width == 0 {
		return "loading catalog..."
	}

	header := m.headerView()
	footer := m.footerView()
	bodyH := m.height - lipgloss.Height(header) - lipgloss.Height(footer) - 1
	if bodyH < 3 {
		bodyH = 3
	}

	rightW := 0
	if m.mgr != nil && m.width >= 2*sidePaneWidth {
		rightW = sidePaneWidth
	}
	body := m.browserView(m.width-rightW, bodyH)
	if rightW > 0 {
		body = lipgloss.JoinHorizontal(lipgloss.Top, body, m.downloadsView(rightW, bodyH))
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m model) headerView() string {
	crumb := "catalog"
	if len(m.path) > 0 {
		crumb = strings.Join(m.path, " / ")
	}
	return titleStyle.Render(" distroget ") + " " + crumbStyle.Render(crumb)
}

func (m model) browserView(w, h int) string {
	rows := m.rows()
	lines := make([]string, 0, h)
	if len(rows) == 0 {
		lines = append(lines, dimStyle.Render("  (empty section)"))
	}

	start := 0
	if m.cursor >= h {
		start = m.cursor - h + 1
	}
	end := start + h
	if end > len(rows) {
		end = len(rows)
	}

	clip := lipgloss.NewStyle().MaxWidth(w - 1)
	for i := start; i < end; i++ {
		r := rows[i]
		prefix := "  "
		if i == m.cursor {
			prefix = cursorStyle.Render("▸ ")
		}
		var line string
		if r.section != nil {
			line = prefix + m.sectionMarker(r.section) + " " + r.label + "/"
			if sel, total := m.sectionCount(r.section); sel > 0 {
				line += " " + dimStyle.Render(fmt.Sprintf("%d/%d", sel, total))
			}
		} else {
			line = prefix + m.entryMarker(r.url) + " " + r.label
		}
		lines = append(lines, clip.Render(line))
	}
	return lipgloss.NewStyle().Width(w).Height(h).Render(strings.Join(lines, "\n"))
}

func (m model) entryMarker(url string) string {
	if _, ok := m.selected[url]; ok {
		return selStyle.Render("[x]")
	}
	return "[ ]"
}

func (m model) sectionCount(sec *catalog.Node) (sel, total int) {
	urls := sec.URLs()
	for _, u := range urls {
		if _, ok := m.selected[u]; ok {
			sel++
		}
	}
	return sel, len(urls)
}

func (m model) sectionMarker(sec *catalog.Node) string {
	sel, total := m.sectionCount(sec)
	switch {
	case total > 0 && sel == total:
		return selStyle.Render("[x]")
	case sel > 0:
		return partialStyle.Render("[o]")
	default:
		return "[ ]"
	}
}

func (m model) footerView() string {
	if m.quitting {
		return dimStyle.Render(" stopping transfers...")
	}
	if m.mode == modeDest {
		out := " " + m.destInput.View()
		switch {
		case m.connecting:
			out += "\n " + dimStyle.Render("checking destination...")
		case m.destErr != "":
			out += "\n " + errStyle.Render(m.destErr)
		default:
			out += "\n " + dimStyle.Render("enter confirm · tab complete · esc cancel")
		}
		return out
	}

	var left string
	switch {
	case m.searching:
		left = "/" + m.searchBuf + "▏"
	case m.status != "":
		left = m.status
	case len(m.selected) > 0 && m.mgr == nil:
		left = fmt.Sprintf("%d marked, press d to download", len(m.selected))
	}
	hints := dimStyle.Render("enter open · space mark · a mark all · / search · d destination · q quit")
	if left != "" {
		return " " + left + "\n " + hints
	}
	return " " + hints
}

// expandPath resolves a leading ~ to the home directory; remote
// destinations never start with ~ so they pass through untouched.
func expandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
