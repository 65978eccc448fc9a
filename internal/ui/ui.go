package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/ridesync/internal/models"
	"github.com/desertthunder/ridesync/internal/tasks"
)

const historyLimit = 100

// ViewState represents the current view in the TUI.
type ViewState int

const (
	RunListView ViewState = iota
	RunDetailView
	LedgerView
	ConfirmView
	SyncView
	ResultView
)

// RunSource lists sync history.
type RunSource interface {
	List(ctx context.Context, limit int) ([]*models.SyncRun, error)
}

// RecordSource lists ledger records.
type RecordSource interface {
	List(ctx context.Context, limit int) ([]models.SyncRecord, error)
}

// Syncer runs the pipeline.
type Syncer interface {
	RunSync(ctx context.Context, opts tasks.SyncOptions, progress chan<- tasks.ProgressUpdate) (*tasks.SyncResult, error)
}

// Deps are the model's collaborators. Syncer may be nil, which disables the sync key.
type Deps struct {
	Runs    RunSource
	Ledger  RecordSource
	Syncer  Syncer
	Options tasks.SyncOptions
	// OnFinish is called with every finished sync, e.g. to record it in the history.
	OnFinish func(*tasks.SyncResult, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	deps         Deps
	view         ViewState
	width        int
	height       int
	runList      list.Model
	ledgerList   list.Model
	selected     *models.SyncRun
	progressChan chan tasks.ProgressUpdate
	done         chan syncComplete
	progress     tasks.ProgressUpdate
	result       *tasks.SyncResult
	syncErr      error
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, deps Deps) *Model {
	return &Model{
		ctx:        ctx,
		deps:       deps,
		view:       RunListView,
		runList:    newList("Sync runs"),
		ledgerList: newList("Migrated activities"),
		help:       help.New(),
		keys:       newKeyMap(),
	}
}

func newList(title string) list.Model {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	return l
}

// Init loads the run history.
func (m *Model) Init() tea.Cmd {
	return m.fetchRuns()
}

// ViewState returns the current view.
func (m *Model) ViewState() ViewState { return m.view }

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.runList.SetSize(msg.Width-4, msg.Height-8)
		m.ledgerList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case RunListView:
			return m.handleRunListKeys(msg)
		case RunDetailView, LedgerView:
			return m.handleBackKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case SyncView:
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgRunsFetched:
		data := msg.data.(runsFetched)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		items := make([]list.Item, len(data.runs))
		for i, r := range data.runs {
			items[i] = runItem{run: r}
		}
		return m, m.runList.SetItems(items)

	case MsgLedgerFetched:
		data := msg.data.(ledgerFetched)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		items := make([]list.Item, len(data.records))
		for i, r := range data.records {
			items[i] = recordItem{record: r}
		}
		m.view = LedgerView
		return m, m.ledgerList.SetItems(items)

	case MsgProgressUpdate:
		m.progress = msg.data.(tasks.ProgressUpdate)
		return m, m.waitForProgress()

	case MsgSyncComplete:
		data := msg.data.(syncComplete)
		m.result = data.result
		m.syncErr = data.err
		m.progressChan = nil
		m.done = nil
		m.view = ResultView
		if m.deps.OnFinish != nil {
			m.deps.OnFinish(data.result, data.err)
		}
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case RunListView:
		return m.renderRunList()
	case RunDetailView:
		return m.renderRunDetail()
	case LedgerView:
		return m.renderLedger()
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

func (m *Model) handleRunListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.runList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.runList, cmd = m.runList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.runList.SelectedItem().(runItem); ok {
			m.selected = item.run
			m.view = RunDetailView
		}
		return m, nil
	case key.Matches(msg, m.keys.ledger):
		return m, m.fetchLedger()
	case key.Matches(msg, m.keys.refresh):
		return m, m.fetchRuns()
	case key.Matches(msg, m.keys.sync):
		if m.deps.Syncer != nil {
			m.view = ConfirmView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.runList, cmd = m.runList.Update(msg)
	return m, cmd
}

func (m *Model) handleBackKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = RunListView
		m.selected = nil
		return m, nil
	}
	if m.view == LedgerView {
		var cmd tea.Cmd
		m.ledgerList, cmd = m.ledgerList.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		m.view = SyncView
		return m, m.startSync()
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.quit):
		m.view = RunListView
		return m, nil
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.refresh):
		m.view = RunListView
		m.result = nil
		m.syncErr = nil
		return m, m.fetchRuns()
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case RunListView:
		m.runList, cmd = m.runList.Update(msg)
	case LedgerView:
		m.ledgerList, cmd = m.ledgerList.Update(msg)
	}
	return m, cmd
}

func (m *Model) fetchRuns() tea.Cmd {
	return func() tea.Msg {
		if m.deps.Runs == nil {
			return runsFetchedMsg(nil, nil)
		}
		runs, err := m.deps.Runs.List(m.ctx, historyLimit)
		return runsFetchedMsg(runs, err)
	}
}

func (m *Model) fetchLedger() tea.Cmd {
	return func() tea.Msg {
		if m.deps.Ledger == nil {
			return ledgerFetchedMsg(nil, nil)
		}
		records, err := m.deps.Ledger.List(m.ctx, 0)
		return ledgerFetchedMsg(records, err)
	}
}

// startSync runs the engine in the background and relays its progress.
func (m *Model) startSync() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 50)
	m.done = make(chan syncComplete, 1)
	progress, done := m.progressChan, m.done

	go func() {
		result, err := m.deps.Syncer.RunSync(m.ctx, m.deps.Options, progress)
		done <- syncComplete{result, err}
		close(progress)
	}()

	return m.waitForProgress()
}

// waitForProgress yields the next progress update, or the final result once the channel closes.
func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.done
	if progress == nil {
		return nil
	}
	return func() tea.Msg {
		update, ok := <-progress
		if !ok {
			final := <-done
			return syncCompleteMsg(final.result, final.err)
		}
		return progressUpdateMsg(update)
	}
}
