package proxy

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/dustin/go-humanize"

	"predict-console/internal/backend"
	"predict-console/internal/config"
	"predict-console/internal/console"
	"predict-console/internal/supervisor"
)

// SessionCookie names the cookie that keys a browser's console session.
const SessionCookie = "predict_console_session"

// multipart parts beyond this are spooled to disk by net/http.
const maxMultipartMemory = 8 << 20

// Pages serves the server-rendered UI: the upload page at / and the record
// selection page at /records.
type Pages struct {
	cfg      config.Config
	sessions *console.Sessions
	tmpl     *template.Template
	metrics  *supervisor.Metrics
	logger   *slog.Logger
}

// NewPages parses the page templates from assets.
func NewPages(cfg config.Config, sessions *console.Sessions, assets fs.FS, metrics *supervisor.Metrics, logger *slog.Logger) (*Pages, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tmpl, err := template.ParseFS(assets, "*.html")
	if err != nil {
		return nil, fmt.Errorf("parse page templates: %w", err)
	}
	return &Pages{
		cfg:      cfg,
		sessions: sessions,
		tmpl:     tmpl,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// pageData is what the templates render.
type pageData struct {
	Title      string
	Active     config.Variant
	NavUpload  bool
	NavRecords bool
	MaxUpload  string

	ShowResult bool
	ShowError  bool
	ShowStatus bool
	Prediction string
	Error      string
	Status     string

	PredictEnabled bool
	Options        []console.Option
	Selected       string
}

func (p *Pages) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upload := p.cfg.HasVariant(config.VariantUpload)
	records := p.cfg.HasVariant(config.VariantRecords)

	switch {
	case r.URL.Path == "/" && upload:
		p.onlyMethod(w, r, http.MethodGet, p.handleUploadPage)
	case r.URL.Path == "/predict" && upload:
		p.onlyMethod(w, r, http.MethodPost, p.handleUploadPredict)
	case r.URL.Path == "/check-model" && upload:
		p.onlyMethod(w, r, http.MethodPost, p.handleCheckModel)
	case r.URL.Path == "/records" && records:
		p.onlyMethod(w, r, http.MethodGet, p.handleRecordsPage)
	case r.URL.Path == "/records/predict" && records:
		p.onlyMethod(w, r, http.MethodPost, p.handleRecordPredict)
	case r.URL.Path == "/" && records:
		http.Redirect(w, r, "/records", http.StatusFound)
	default:
		http.NotFound(w, r)
	}
}

func (p *Pages) onlyMethod(w http.ResponseWriter, r *http.Request, method string, fn http.HandlerFunc) {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	fn(w, r)
}

// session returns the caller's session, issuing a cookie for new ones.
func (p *Pages) session(w http.ResponseWriter, r *http.Request) *console.Session {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}
	sess, created := p.sessions.Get(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	p.metrics.UpdateSessions(p.sessions.Len())
	return sess
}

// A page load starts a fresh page session.
func (p *Pages) handleUploadPage(w http.ResponseWriter, r *http.Request) {
	sess := p.session(w, r)
	sess.Upload.Reset()
	p.render(w, http.StatusOK, "index.html", p.uploadData(sess.Upload.View()))
}

func (p *Pages) handleUploadPredict(w http.ResponseWriter, r *http.Request) {
	sess := p.session(w, r)

	if r.ContentLength > p.cfg.UploadMaxBytes {
		p.tooLarge(w)
		return
	}
	up, err := p.readUpload(w, r)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			p.tooLarge(w)
			return
		}
		http.Error(w, "malformed upload", http.StatusBadRequest)
		return
	}

	err = sess.Upload.Predict(r.Context(), up)
	p.record(config.VariantUpload, "predict", err)
	p.render(w, statusFor(err), "index.html", p.uploadData(sess.Upload.View()))
}

func (p *Pages) tooLarge(w http.ResponseWriter) {
	http.Error(w, "upload exceeds "+humanize.IBytes(uint64(p.cfg.UploadMaxBytes)), http.StatusRequestEntityTooLarge)
}

// readUpload returns nil, nil when the form carries no file.
func (p *Pages) readUpload(w http.ResponseWriter, r *http.Request) (*backend.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, p.cfg.UploadMaxBytes)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return nil, err
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile(backend.FileField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		return nil, err
	}
	return &backend.Upload{Filename: hdr.Filename, Content: buf.Bytes()}, nil
}

func (p *Pages) handleCheckModel(w http.ResponseWriter, r *http.Request) {
	sess := p.session(w, r)
	err := sess.Upload.CheckModel(r.Context())
	p.record(config.VariantUpload, "check_model", err)
	p.render(w, http.StatusOK, "index.html", p.uploadData(sess.Upload.View()))
}

// handleRecordsPage resets the session and runs the record loader once.
func (p *Pages) handleRecordsPage(w http.ResponseWriter, r *http.Request) {
	sess := p.session(w, r)
	sess.Records.Reset()
	err := sess.Records.LoadRecords(r.Context())
	p.record(config.VariantRecords, "load_records", err)
	p.render(w, http.StatusOK, "records.html", p.recordsData(sess.Records.View()))
}

func (p *Pages) handleRecordPredict(w http.ResponseWriter, r *http.Request) {
	sess := p.session(w, r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return
	}

	err := sess.Records.Predict(r.Context(), r.PostFormValue("record_id"))
	p.record(config.VariantRecords, "predict", err)
	p.render(w, statusFor(err), "records.html", p.recordsData(sess.Records.View()))
}

func (p *Pages) render(w http.ResponseWriter, status int, name string, data pageData) {
	var buf bytes.Buffer
	if err := p.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		p.logger.Error("failed to render page", "page", name, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (p *Pages) baseData(active config.Variant, v console.View) pageData {
	return pageData{
		Active:         active,
		NavUpload:      p.cfg.HasVariant(config.VariantUpload),
		NavRecords:     p.cfg.HasVariant(config.VariantRecords),
		ShowResult:     v.Visible(console.PanelResult),
		ShowError:      v.Visible(console.PanelError),
		ShowStatus:     v.Visible(console.PanelStatus),
		Prediction:     v.Text(console.PanelResult),
		Error:          v.Text(console.PanelError),
		Status:         v.Text(console.PanelStatus),
		PredictEnabled: v.PredictEnabled,
		Options:        v.Options,
		Selected:       v.Selected,
	}
}

func (p *Pages) uploadData(v console.View) pageData {
	d := p.baseData(config.VariantUpload, v)
	d.Title = "Upload a file"
	d.MaxUpload = humanize.IBytes(uint64(p.cfg.UploadMaxBytes))
	return d
}

func (p *Pages) recordsData(v console.View) pageData {
	d := p.baseData(config.VariantRecords, v)
	d.Title = "Select a record"
	return d
}

func (p *Pages) record(variant config.Variant, action string, err error) {
	outcome := actionOutcome(err)
	p.metrics.RecordAction(string(variant), action, outcome)
	if err != nil && outcome != "validation" && outcome != "ignored" {
		p.logger.Info("console action failed", "variant", variant, "action", action, "outcome", outcome, "err", err)
	}
}

func actionOutcome(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, console.ErrTriggerDisabled) || errors.Is(err, console.ErrSuperseded) {
		return "ignored"
	}
	var be *backend.Error
	if errors.As(err, &be) {
		return string(be.Kind)
	}
	return "error"
}

// statusFor picks the page status. Backend failures still render the page
// with the error panel, so they stay 200.
func statusFor(err error) int {
	if errors.Is(err, console.ErrTriggerDisabled) {
		return http.StatusConflict
	}
	return http.StatusOK
}
