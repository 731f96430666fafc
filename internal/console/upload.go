package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"predict-console/internal/backend"
)

// ErrTriggerDisabled is returned when predict is invoked while the trigger
// is disabled (a request is already in flight, or records failed to load).
var ErrTriggerDisabled = errors.New("predict trigger is disabled")

// ErrSuperseded is returned by a request that was still in flight when the
// page was reloaded. Its outcome is dropped.
var ErrSuperseded = errors.New("page reloaded while the request was in flight")

// Backend is the subset of the prediction API the controllers call.
type Backend interface {
	PredictFile(ctx context.Context, up backend.Upload) (backend.PredictionResult, error)
	PredictRecord(ctx context.Context, recordID string) (backend.PredictionResult, error)
	Health(ctx context.Context) (backend.HealthStatus, error)
	Records(ctx context.Context) (backend.RecordList, error)
}

// RewriteError maps raw backend error text to what the upload page shows.
func RewriteError(msg string) string {
	if strings.Contains(msg, modelUnavailableMarker) {
		return MsgModelUnavailable
	}
	return msg
}

// UploadConsole drives the file upload page.
type UploadConsole struct {
	api    Backend
	logger *slog.Logger

	mu    sync.Mutex
	state State
	// gen counts page loads. A request only renders into the page it began on.
	gen uint64
}

// NewUploadConsole creates a controller in its page-load state.
func NewUploadConsole(api Backend, logger *slog.Logger) *UploadConsole {
	if logger == nil {
		logger = slog.Default()
	}
	c := &UploadConsole{api: api, logger: logger}
	c.state = initialUploadState()
	return c
}

func initialUploadState() State {
	return State{PredictEnabled: true}
}

// Reset discards the session state, as a page reload does.
func (c *UploadConsole) Reset() {
	c.mu.Lock()
	c.state = initialUploadState()
	c.gen++
	c.mu.Unlock()
}

// View returns the current rendering.
func (c *UploadConsole) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ComputeView(c.state)
}

// Predict uploads file and renders the prediction or the error.
//
// file == nil means nothing was selected. The trigger is disabled for the
// whole attempt and re-enabled on every path, unless the page was reloaded
// meanwhile, in which case the outcome is dropped and ErrSuperseded returned.
func (c *UploadConsole) Predict(ctx context.Context, file *backend.Upload) error {
	c.mu.Lock()
	if !c.state.PredictEnabled {
		c.mu.Unlock()
		return ErrTriggerDisabled
	}
	c.state.beginAttempt()

	if file == nil {
		c.showError(MsgNoFile)
		c.state.PredictEnabled = true
		c.mu.Unlock()
		return &backend.Error{Kind: backend.KindValidation, Message: MsgNoFile}
	}
	gen := c.gen
	c.mu.Unlock()

	c.logger.Debug("uploading file for prediction",
		"file", file.Filename,
		"size", humanize.Bytes(uint64(len(file.Content))))

	res, err := c.api.PredictFile(ctx, *file)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		c.logger.Debug("dropping prediction for a reloaded page", "file", file.Filename)
		return ErrSuperseded
	}
	c.state.PredictEnabled = true
	if err != nil {
		c.showError(err.Error())
		return err
	}
	c.state.showResult(res.Prediction)
	return nil
}

// CheckModel asks the backend whether a model is loaded and shows the answer
// in the status panel. Failures are written into the same panel.
func (c *UploadConsole) CheckModel(ctx context.Context) error {
	c.mu.Lock()
	c.state.beginStatus()
	gen := c.gen
	c.mu.Unlock()

	status, err := c.api.Health(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return ErrSuperseded
	}
	if err != nil {
		c.state.showStatus(MsgHealthFailed)
		return err
	}
	if status.ModelLoaded {
		c.state.showStatus(fmt.Sprintf(MsgModelLoadedFmt, status.ModelFile))
	} else {
		c.state.showStatus(MsgModelNotLoaded)
	}
	return nil
}

// showError applies the upload page's message rewrite. Callers hold mu.
func (c *UploadConsole) showError(msg string) {
	c.state.showError(RewriteError(msg))
}
