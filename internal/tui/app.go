package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rarora2025/pollit/internal/browser"
	"github.com/rarora2025/pollit/internal/category"
	"github.com/rarora2025/pollit/internal/config"
	"github.com/rarora2025/pollit/internal/feed"
	"github.com/rarora2025/pollit/internal/image"
	"github.com/rarora2025/pollit/internal/poll"
	"github.com/rarora2025/pollit/internal/schedule"
	"github.com/rarora2025/pollit/internal/update"
)

type mode int

const (
	modeFeed mode = iota
	modeCategory
	modeSearch
	modeHelp
)

type App struct {
	cfg     *config.Config
	ctrl    *feed.Controller
	loader  *image.Loader
	version string

	width  int
	height int
	mode   mode

	// Sub-components
	searchInput textinput.Model
	spinner     spinner.Model
	catBar      categoryBar

	// Mirrored controller state, updated from events only
	state   feed.State
	lastErr error
	label   string
	cursor  feed.Cursor
	current feed.Article
	hasCard bool
	imgRef  string
	imgNote string

	pollC       poll.Content
	pollDerived bool
	pollPending bool
	tallies     map[int][3]int

	updateVersion string
	err           error
}

// RunOpts holds all parameters for launching the TUI.
type RunOpts struct {
	Cfg        *config.Config
	Controller *feed.Controller
	Loader     *image.Loader
	Version    string
}

func NewApp(opts RunOpts) *App {
	ti := textinput.New()
	ti.Placeholder = "Search the news..."
	ti.Prompt = searchPromptStyle.Render("/ ")
	ti.CharLimit = 100

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = spinnerStyle

	return &App{
		cfg:         opts.Cfg,
		ctrl:        opts.Controller,
		loader:      opts.Loader,
		version:     opts.Version,
		searchInput: ti,
		spinner:     sp,
		catBar:      newCategoryBar(opts.Cfg.Category()),
		label:       opts.Cfg.Category(),
		state:       feed.StateIdle,
		tallies:     make(map[int][3]int),
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.startCmd(),
		a.waitForEvent(),
		a.spinner.Tick,
		a.checkUpdateCmd(),
	)
}

func (a *App) startCmd() tea.Cmd {
	c := a.ctrl
	return func() tea.Msg {
		c.Start(context.Background())
		return nil
	}
}

// waitForEvent blocks on the controller's event stream and feeds one
// event back into the bubbletea loop; the handler re-issues it.
func (a *App) waitForEvent() tea.Cmd {
	events := a.ctrl.Events()
	return func() tea.Msg {
		return eventMsg{ev: <-events}
	}
}

func (a *App) checkUpdateCmd() tea.Cmd {
	if a.version == "" || a.version == "dev" {
		return nil
	}
	version := a.version
	return func() tea.Msg {
		res := update.Check(context.Background(), version)
		if res == nil {
			return nil
		}
		return updateAvailableMsg{version: res.LatestVersion}
	}
}

func (a *App) fetchCmd(query string) tea.Cmd {
	c := a.ctrl
	return func() tea.Msg {
		c.Fetch(context.Background(), query)
		return nil
	}
}

func (a *App) retryCmd() tea.Cmd {
	c := a.ctrl
	return func() tea.Msg {
		c.Retry(context.Background())
		return nil
	}
}

func (a *App) loadImageCmd(index int, ref string) tea.Cmd {
	if a.loader == nil {
		return nil
	}
	loader := a.loader
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		data, contentType := loader.Fetch(ctx, ref)
		return imageInfoMsg{index: index, size: len(data), contentType: contentType}
	}
}

func openBrowserCmd(url string) tea.Cmd {
	return func() tea.Msg {
		if err := browser.Open(url); err != nil {
			return errMsg{err: err}
		}
		return nil
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case tea.KeyMsg:
		// Clear sticky error on any keypress
		a.err = nil
		return a, a.handleKey(msg)

	case eventMsg:
		cmd := a.handleEvent(msg.ev)
		return a, tea.Batch(a.waitForEvent(), cmd)

	case imageInfoMsg:
		if msg.index == a.cursor.Index {
			a.imgNote = imageNote(a.imgRef, msg.size, msg.contentType)
		}
		return a, nil

	case updateAvailableMsg:
		a.updateVersion = msg.version
		return a, nil

	case errMsg:
		a.err = msg.err
		return a, nil

	case spinner.TickMsg:
		if a.state == feed.StateLoading {
			var cmd tea.Cmd
			a.spinner, cmd = a.spinner.Update(msg)
			return a, cmd
		}
		return a, nil
	}

	return a, nil
}

func (a *App) handleEvent(ev feed.Event) tea.Cmd {
	switch ev := ev.(type) {
	case feed.StateChanged:
		a.state = ev.State
		a.lastErr = ev.Err
		if ev.State == feed.StateLoading {
			a.hasCard = false
			return a.spinner.Tick
		}

	case feed.BatchLoaded:
		a.state = feed.StateReady
		a.cursor = ev.Cursor
		a.tallies = make(map[int][3]int)

	case feed.CursorMoved:
		a.state = feed.StateReady
		a.cursor = ev.Cursor
		a.current = ev.Article
		a.hasCard = true
		a.imgRef = ev.ImageRef
		a.imgNote = ""
		a.pollPending = true
		return a.loadImageCmd(ev.Cursor.Index, ev.ImageRef)

	case feed.PollReady:
		if ev.Cursor.Index == a.cursor.Index {
			a.pollC = ev.Content
			a.pollDerived = ev.Derived
			a.pollPending = false
		}

	case feed.VoteCast:
		a.tallies[ev.Cursor.Index] = ev.Tally
	}
	return nil
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	if msg.String() == "ctrl+c" {
		return tea.Quit
	}

	switch a.mode {
	case modeSearch:
		return a.handleSearchKey(msg)
	case modeCategory:
		return a.handleCategoryKey(msg)
	case modeHelp:
		if s := msg.String(); s == "?" || s == "esc" || s == "q" {
			a.mode = modeFeed
		}
		return nil
	}

	// Feed mode
	switch msg.String() {
	case "q":
		return tea.Quit
	case "n", "right", "l", " ":
		a.ctrl.Next()
		return nil
	case "p", "left", "h":
		a.ctrl.Prev()
		return nil
	case "g":
		a.ctrl.JumpTo(0)
		return nil
	case "G":
		a.ctrl.JumpTo(a.cursor.Total - 1)
		return nil
	case "1", "2", "3":
		a.ctrl.Vote(int(msg.String()[0] - '1'))
		return nil
	case "o", "enter":
		if a.hasCard {
			return openBrowserCmd(a.current.URL)
		}
		return nil
	case "c":
		a.mode = modeCategory
		a.catBar.pickMode = true
		return nil
	case "/":
		a.mode = modeSearch
		a.searchInput.Focus()
		return textinput.Blink
	case "r":
		if a.state == feed.StateFailed {
			return a.retryCmd()
		}
		return a.fetchCmd("")
	case "?":
		a.mode = modeHelp
		return nil
	}

	return nil
}

func (a *App) handleSearchKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		a.mode = modeFeed
		a.searchInput.SetValue("")
		a.searchInput.Blur()
		return nil
	case "enter":
		query := strings.TrimSpace(a.searchInput.Value())
		a.mode = modeFeed
		a.searchInput.SetValue("")
		a.searchInput.Blur()
		if query == "" {
			return nil
		}
		a.label = fmt.Sprintf("%q", query)
		a.catBar.setActive("")
		return a.fetchCmd(query)
	}

	var cmd tea.Cmd
	a.searchInput, cmd = a.searchInput.Update(msg)
	return cmd
}

func (a *App) handleCategoryKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc", "c":
		a.mode = modeFeed
		a.catBar.pickMode = false
		return nil
	case "left", "h":
		a.catBar.moveLeft()
		return nil
	case "right", "l":
		a.catBar.moveRight()
		return nil
	case " ", "enter":
		return a.pickCategory(a.catBar.current())
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		idx := int(msg.String()[0] - '1')
		if idx < len(a.catBar.names) {
			return a.pickCategory(a.catBar.names[idx])
		}
		return nil
	}
	return nil
}

func (a *App) pickCategory(name string) tea.Cmd {
	a.catBar.setActive(name)
	a.catBar.pickMode = false
	a.mode = modeFeed
	a.label = name
	return a.fetchCmd(category.Query(name))
}

func (a *App) View() string {
	if a.width == 0 {
		return lipgloss.NewStyle().Foreground(colorAccent).Render("  pollit")
	}

	headerLeft := headerStyle.Render("pollit")
	headerRight := headerDateStyle.Render(time.Now().Format("Jan 2"))
	headerGap := a.width - lipgloss.Width(headerLeft) - lipgloss.Width(headerRight)
	if headerGap < 0 {
		headerGap = 0
	}
	header := headerLeft + fmt.Sprintf("%*s", headerGap, "") + headerRight

	bar := a.catBar.render(a.width)
	if a.mode == modeSearch {
		bar = a.searchInput.View()
	}

	contentHeight := a.height - 3
	if contentHeight < 3 {
		contentHeight = 3
	}

	var content string
	switch {
	case a.mode == modeHelp:
		content = a.renderHelp(contentHeight)
	case a.state == feed.StateFailed:
		content = renderErrorView(a.lastErr, a.width, contentHeight)
	case a.hasCard && a.state == feed.StateReady:
		content = renderCard(cardData{
			article:     a.current,
			cursor:      a.cursor,
			imgNote:     a.imgNote,
			poll:        a.pollC,
			pollDerived: a.pollDerived,
			pollPending: a.pollPending,
			tally:       a.tallies[a.cursor.Index],
		}, a.width, contentHeight)
	default:
		status := a.spinner.View() + " fetching fresh headlines..."
		note := ""
		if a.updateVersion != "" {
			note = "Update available: v" + a.updateVersion
		}
		content = renderSplash(a.width, contentHeight, status, note)
	}
	content = fitHeight(content, contentHeight)

	status := renderStatusBar(
		a.cursor,
		a.label,
		schedule.NextReset(time.Now().UTC()),
		a.width,
		a.mode,
		a.state == feed.StateLoading,
	)
	if a.err != nil {
		status = lipgloss.NewStyle().Foreground(colorAccent).Render(" " + a.err.Error())
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, bar, content, status)
}

// fitHeight pads or trims content to exactly h lines.
func fitHeight(content string, h int) string {
	lines := strings.Split(content, "\n")
	for len(lines) < h {
		lines = append(lines, "")
	}
	if len(lines) > h {
		lines = lines[:h]
	}
	return strings.Join(lines, "\n")
}

func imageNote(ref string, size int, contentType string) string {
	if ref == image.FallbackRef {
		return "no image"
	}
	if contentType == image.PlaceholderContentType {
		return "image unavailable"
	}
	return fmt.Sprintf("image · %s %s", formatSize(size), strings.TrimPrefix(contentType, "image/"))
}

func formatSize(b int) string {
	if b >= 1<<10 {
		return fmt.Sprintf("%d KB", b/(1<<10))
	}
	return fmt.Sprintf("%d B", b)
}

func (a *App) renderHelp(height int) string {
	title := lipgloss.NewStyle().Foreground(colorAccent).Bold(true).Render("pollit")
	dim := helpDimStyle

	help := title + dim.Render(" — Keyboard Shortcuts") + "\n\n" +
		dim.Render("Feed") + "\n" +
		"  n/→/space     Next article\n" +
		"  p/←           Previous article\n" +
		"  g / G         First / last article\n" +
		"  o, enter      Open article in browser\n\n" +
		dim.Render("Polls") + "\n" +
		"  1-3           Vote on the current poll\n\n" +
		dim.Render("Feed control") + "\n" +
		"  c             Pick a topic\n" +
		"  /             Search the news\n" +
		"  r             Refresh (retry after an error)\n\n" +
		dim.Render("General") + "\n" +
		"  ?             Toggle this help\n" +
		"  q, ctrl+c     Quit"

	if a.updateVersion != "" {
		help += "\n\n" + lipgloss.NewStyle().Foreground(colorAccent).Render("Update available: v"+a.updateVersion) +
			"\n" + dim.Render(update.ReleasePage)
	}

	card := helpCardStyle.Render(help)

	return lipgloss.Place(a.width, height, lipgloss.Center, lipgloss.Center, card)
}

// Run starts the TUI application.
func Run(opts RunOpts) error {
	app := NewApp(opts)
	p := tea.NewProgram(app, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
