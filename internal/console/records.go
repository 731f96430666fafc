package console

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"predict-console/internal/backend"
)

// RecordConsole drives the record selection page.
type RecordConsole struct {
	api    Backend
	logger *slog.Logger

	mu    sync.Mutex
	state State
	gen   uint64
}

// NewRecordConsole creates a controller in its page-load state. The trigger
// stays disabled until LoadRecords succeeds.
func NewRecordConsole(api Backend, logger *slog.Logger) *RecordConsole {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordConsole{api: api, logger: logger}
}

// Reset discards the session state, as a page reload does.
func (c *RecordConsole) Reset() {
	c.mu.Lock()
	c.state = State{}
	c.gen++
	c.mu.Unlock()
}

// View returns the current rendering.
func (c *RecordConsole) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ComputeView(c.state)
}

// LoadRecords fetches the record identifiers and rebuilds the dropdown.
// It runs once per page load.
func (c *RecordConsole) LoadRecords(ctx context.Context) error {
	c.mu.Lock()
	c.state.ErrorVisible = false
	c.state.ErrorText = ""
	c.state.PredictEnabled = false
	gen := c.gen
	c.mu.Unlock()

	list, err := c.api.Records(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return ErrSuperseded
	}
	if err != nil {
		c.state.showError(fmt.Sprintf(MsgLoadRecordsFmt, err.Error()))
		c.state.PredictEnabled = false
		return err
	}

	c.state.setRecords(list.RecordIDs)
	if len(list.RecordIDs) == 0 {
		c.state.showError(MsgNoRecords)
		c.state.PredictEnabled = false
		return nil
	}
	c.state.PredictEnabled = true
	c.logger.Debug("loaded record ids", "count", len(list.RecordIDs))
	return nil
}

// Predict requests a prediction for recordID, the value currently selected
// in the dropdown. An empty value is a validation error.
func (c *RecordConsole) Predict(ctx context.Context, recordID string) error {
	c.mu.Lock()
	if !c.state.PredictEnabled {
		c.mu.Unlock()
		return ErrTriggerDisabled
	}
	c.state.Selected = recordID
	c.state.beginAttempt()

	if recordID == "" {
		c.state.showError(MsgNoRecord)
		c.state.PredictEnabled = true
		c.mu.Unlock()
		return &backend.Error{Kind: backend.KindValidation, Message: MsgNoRecord}
	}
	gen := c.gen
	c.mu.Unlock()

	res, err := c.api.PredictRecord(ctx, recordID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		c.logger.Debug("dropping prediction for a reloaded page", "record_id", recordID)
		return ErrSuperseded
	}
	c.state.PredictEnabled = true
	if err != nil {
		c.state.showError(err.Error())
		return err
	}
	c.state.showResult(res.Prediction)
	return nil
}
