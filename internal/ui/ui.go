package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/libsync/internal/models"
	"github.com/desertthunder/libsync/internal/services"
	"github.com/desertthunder/libsync/internal/tasks"
)

const logLines = 6

// ViewState represents the current view in the TUI.
type ViewState int

const (
	CollectionListView ViewState = iota
	ConfirmView
	SyncView
	ResultView
)

// Syncer syncs a single collection. [tasks.SyncEngine] implements it.
type Syncer interface {
	SyncCollection(ctx context.Context, kind models.CollectionKind, sourceID string, progress chan<- tasks.ProgressUpdate) (*tasks.SyncResult, error)
}

// SyncFunc runs a sync and reports progress on the given channel.
type SyncFunc func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.RunResult, error)

// Model represents the TUI application state.
type Model struct {
	ctx    context.Context
	view   ViewState
	source services.SourceReader
	syncer Syncer
	run    SyncFunc
	dryRun bool

	width  int
	height int

	collections list.Model
	listReady   bool
	selected    *collectionItem

	spinner      spinner.Model
	bar          progress.Model
	progressChan chan tasks.ProgressUpdate
	done         chan Msg
	update       tasks.ProgressUpdate
	log          []string

	result *tasks.RunResult
	err    error
	help   help.Model
	keys   keyMap
}

// NewModel creates a TUI that lists the source library, syncs the selected collection and shows the result.
func NewModel(ctx context.Context, source services.SourceReader, syncer Syncer, dryRun bool) *Model {
	m := newModel(ctx)
	m.view = CollectionListView
	m.source = source
	m.syncer = syncer
	m.dryRun = dryRun
	return m
}

// NewRunModel creates a TUI that starts run immediately and only shows its progress and result.
func NewRunModel(ctx context.Context, run SyncFunc) *Model {
	m := newModel(ctx)
	m.view = SyncView
	m.run = run
	return m
}

func newModel(ctx context.Context) *Model {
	return &Model{
		ctx:     ctx,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.ok)),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Result returns the finished run, once the sync view has completed.
func (m *Model) Result() (*tasks.RunResult, error) {
	return m.result, m.err
}

// Init fetches the source playlists, or starts the run straight away.
func (m *Model) Init() tea.Cmd {
	if m.run != nil {
		return m.startSync(m.run)
	}
	return m.fetchPlaylists()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.listReady {
			m.collections.SetSize(msg.Width-4, msg.Height-8)
		}
		m.bar.Width = min(max(msg.Width-8, 10), 60)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case CollectionListView:
			return m.handleListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case SyncView:
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		if m.view != SyncView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	if m.view == CollectionListView && m.listReady {
		var cmd tea.Cmd
		m.collections, cmd = m.collections.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgPlaylistsFetched:
		data := msg.data.(playlistsFetched)
		if data.err != nil {
			m.err = data.err
			return m, tea.Quit
		}
		m.collections = list.New(collectionItems(data.playlists), list.NewDefaultDelegate(), max(m.width-4, 0), max(m.height-8, 0))
		m.collections.Title = "Source Library"
		m.listReady = true
		return m, nil

	case MsgProgressUpdate:
		m.update = msg.data.(tasks.ProgressUpdate)
		if m.update.Message != "" {
			m.log = append(m.log, m.update.Message)
			if len(m.log) > logLines {
				m.log = m.log[len(m.log)-logLines:]
			}
		}
		return m, m.waitForProgress()

	case MsgSyncComplete:
		data := msg.data.(syncComplete)
		m.result, m.err = data.result, data.err
		m.progressChan, m.done = nil, nil
		m.view = ResultView
		return m, nil
	}
	return m, nil
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !m.listReady {
		if key.Matches(msg, m.keys.quit) {
			return m, tea.Quit
		}
		return m, nil
	}
	if m.collections.FilterState() != list.Filtering {
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.enter):
			if item, ok := m.collections.SelectedItem().(collectionItem); ok {
				m.selected = &item
				m.view = ConfirmView
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.collections, cmd = m.collections.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.quit):
		m.view = CollectionListView
		m.selected = nil
		return m, nil
	case key.Matches(msg, m.keys.yes):
		m.view = SyncView
		return m, m.startSync(m.syncSelected(*m.selected))
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart) && m.syncer != nil:
		m.view = CollectionListView
		m.selected = nil
		m.result, m.err = nil, nil
		m.log = nil
		m.update = tasks.ProgressUpdate{}
		return m, nil
	}
	return m, nil
}

// syncSelected adapts a single collection sync to a [SyncFunc].
func (m *Model) syncSelected(item collectionItem) SyncFunc {
	return func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.RunResult, error) {
		res, err := m.syncer.SyncCollection(ctx, item.kind, item.playlist.ID, progress)
		if err != nil {
			return nil, err
		}
		return &tasks.RunResult{Results: []*tasks.SyncResult{res}, Summary: res.Summary}, nil
	}
}

func (m *Model) fetchPlaylists() tea.Cmd {
	return func() tea.Msg {
		playlists, err := m.source.OwnedPlaylists(m.ctx)
		return playlistsFetchedMsg(playlists, err)
	}
}

// startSync runs fn in the background. Progress is relayed until the channel closes, then the result follows.
func (m *Model) startSync(fn SyncFunc) tea.Cmd {
	progressChan := make(chan tasks.ProgressUpdate, 64)
	done := make(chan Msg, 1)
	m.progressChan, m.done = progressChan, done
	m.log = nil

	go func() {
		result, err := fn(m.ctx, progressChan)
		close(progressChan)
		done <- syncCompleteMsg(result, err)
	}()

	return tea.Batch(m.spinner.Tick, m.waitForProgress())
}

func (m *Model) waitForProgress() tea.Cmd {
	progressChan, done := m.progressChan, m.done
	return func() tea.Msg {
		if progressChan == nil {
			return nil
		}
		update, ok := <-progressChan
		if !ok {
			return <-done
		}
		return progressUpdateMsg(update)
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view != ResultView {
		return Error(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case CollectionListView:
		return m.renderList()
	case ConfirmView:
		return m.renderConfirm()
	case SyncView:
		return m.renderSync()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) renderList() string {
	if !m.listReady {
		return fmt.Sprintf("%s Loading library...", m.spinner.View())
	}
	helpView := m.help.ShortHelpView(m.keys.helpFor(CollectionListView, true))
	return fmt.Sprintf("%s\n\n%s", m.collections.View(), helpView)
}

func (m *Model) renderConfirm() string {
	verb := "Sync"
	if m.dryRun {
		verb = "Dry run"
	}
	title := Title(fmt.Sprintf("%s '%s' to YouTube Music?", verb, m.selected.Title()))
	info := fmt.Sprintf("\nCollection: %s\n%s\n", m.selected.kind, m.selected.Description())

	helpView := m.help.ShortHelpView(m.keys.helpFor(ConfirmView, true))
	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}

func (m *Model) renderSync() string {
	var b strings.Builder
	b.WriteString(Title("Syncing"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), phaseLabel(m.update)))

	if m.update.Total > 0 {
		pct := float64(m.update.Step) / float64(m.update.Total)
		b.WriteString("\n" + m.bar.ViewAs(min(pct, 1)) + "\n")
	}

	if len(m.log) > 0 {
		b.WriteString("\n")
		for _, line := range m.log {
			b.WriteString(Muted(line) + "\n")
		}
	}
	return b.String()
}

func (m *Model) renderResult() string {
	if m.err != nil {
		return Error(fmt.Sprintf("Sync failed: %v\n\n", m.err)) + m.resultHelp()
	}
	return RenderSummary(m.result) + "\n" + m.resultHelp()
}

func (m *Model) resultHelp() string {
	return m.help.ShortHelpView(m.keys.helpFor(ResultView, m.syncer != nil))
}

func phaseLabel(u tasks.ProgressUpdate) string {
	switch u.Phase {
	case tasks.FetchSource:
		return "Fetching source collection..."
	case tasks.ResolveTarget:
		return "Resolving target playlist..."
	case tasks.FetchTarget:
		return "Fetching target collection..."
	case tasks.MatchEntities:
		return fmt.Sprintf("Matching (%d/%d)", u.Step, u.Total)
	case tasks.PlanChanges:
		return "Planning changes..."
	case tasks.ApplyChanges:
		return "Applying changes..."
	case tasks.Done:
		return "Finishing..."
	default:
		return "Processing..."
	}
}
