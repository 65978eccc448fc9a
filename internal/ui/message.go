package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/ridesync/internal/models"
	"github.com/desertthunder/ridesync/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgRunsFetched MsgKind = iota
	MsgLedgerFetched
	MsgProgressUpdate
	MsgSyncComplete
)

type runsFetched struct {
	runs []*models.SyncRun
	err  error
}

type ledgerFetched struct {
	records []models.SyncRecord
	err     error
}

type syncComplete struct {
	result *tasks.SyncResult
	err    error
}

// runsFetchedMsg is the constructor for [MsgRunsFetched]
func runsFetchedMsg(runs []*models.SyncRun, err error) Msg {
	return Msg{kind: MsgRunsFetched, data: runsFetched{runs, err}}
}

// ledgerFetchedMsg is the constructor for [MsgLedgerFetched]
func ledgerFetchedMsg(records []models.SyncRecord, err error) Msg {
	return Msg{kind: MsgLedgerFetched, data: ledgerFetched{records, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// syncCompleteMsg is the constructor for [MsgSyncComplete]
func syncCompleteMsg(result *tasks.SyncResult, err error) Msg {
	return Msg{kind: MsgSyncComplete, data: syncComplete{result, err}}
}
