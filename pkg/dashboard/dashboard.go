// Package dashboard provides an embedded web dashboard for monitoring a
// stake pool.
//
// The dashboard provides:
// - Pool overview with the exchange rate, balances and fee schedule
// - Validator list with active and transient stake
// - Recent journal entries
// - Oracle endpoint health, when the oracle reports it
//
// Templates and static assets are compiled into the binary.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/fortiblox/x1-stakepool/internal/types"
	"github.com/fortiblox/x1-stakepool/pkg/oracle"
	"github.com/fortiblox/x1-stakepool/pkg/stakepool"
)

// Config holds dashboard configuration options.
type Config struct {
	// Enabled starts the dashboard alongside the daemon.
	Enabled bool `yaml:"enabled"`

	// BindAddress is the address to bind the HTTP server to.
	// Default: "127.0.0.1"
	BindAddress string `yaml:"bind_address"`

	// Port is the port to listen on.
	// Default: 8080
	Port int `yaml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum time to wait for the next request.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// JournalPageSize is the number of receipts shown per journal page.
	JournalPageSize int `yaml:"journal_page_size"`
}

// DefaultConfig returns the default dashboard configuration.
func DefaultConfig() Config {
	return Config{
		BindAddress:     "127.0.0.1",
		Port:            8080,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		JournalPageSize: 25,
	}
}

// PoolSource returns the current committed pool.
type PoolSource interface {
	Pool() *stakepool.Pool
}

// JournalSource returns committed receipts, newest first.
type JournalSource interface {
	Journal(limit int) ([]stakepool.Receipt, error)
}

// EndpointSource reports oracle endpoint health.
type EndpointSource interface {
	Endpoints() []oracle.EndpointInfo
}

// Dashboard is the web dashboard server.
type Dashboard struct {
	config    Config
	server    *http.Server
	pool      PoolSource
	journal   JournalSource
	endpoints EndpointSource

	// Cached templates
	templates *template.Template

	// State
	mu        sync.RWMutex
	running   bool
	startTime time.Time
}

// New creates a new dashboard server. journal and endpoints may be nil.
func New(config Config, pool PoolSource, journal JournalSource, endpoints EndpointSource) (*Dashboard, error) {
	if pool == nil {
		return nil, errors.New("pool source is required")
	}
	defaults := DefaultConfig()
	if config.BindAddress == "" {
		config.BindAddress = defaults.BindAddress
	}
	if config.Port == 0 {
		config.Port = defaults.Port
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = defaults.IdleTimeout
	}
	if config.JournalPageSize <= 0 {
		config.JournalPageSize = defaults.JournalPageSize
	}

	d := &Dashboard{
		config:    config,
		pool:      pool,
		journal:   journal,
		endpoints: endpoints,
		startTime: time.Now(),
	}

	tmpl, err := d.parseTemplates()
	if err != nil {
		return nil, errors.Wrap(err, "parse templates")
	}
	d.templates = tmpl
	return d, nil
}

// parseTemplates parses all embedded templates.
func (d *Dashboard) parseTemplates() (*template.Template, error) {
	funcMap := template.FuncMap{
		"formatDuration": formatDuration,
		"formatNumber":   formatNumber,
		"formatSOL":      formatSOL,
		"formatTime":     formatTime,
		"truncateHash":   truncateHash,
		"add":            func(a, b int) int { return a + b },
		"sub":            func(a, b int) int { return a - b },
	}

	tmpl := template.New("").Funcs(funcMap)
	if _, err := tmpl.New("layout").Parse(layoutTemplate); err != nil {
		return nil, errors.Wrap(err, "parse layout")
	}

	templates := map[string]string{
		"home":       homeTemplate,
		"validators": validatorsTemplate,
		"journal":    journalTemplate,
	}
	for name, content := range templates {
		if _, err := tmpl.New(name).Parse(content); err != nil {
			return nil, errors.Wrapf(err, "parse %s template", name)
		}
	}
	return tmpl, nil
}

// Handler returns the dashboard's routes.
func (d *Dashboard) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/static/", d.handleStatic)

	mux.HandleFunc("/", d.handleHome)
	mux.HandleFunc("/validators", d.handleValidators)
	mux.HandleFunc("/journal", d.handleJournal)

	mux.HandleFunc("/api/status", d.handleAPIStatus)
	mux.HandleFunc("/api/validators", d.handleAPIValidators)
	mux.HandleFunc("/api/validators/", d.handleAPIValidator)
	mux.HandleFunc("/api/journal", d.handleAPIJournal)
	mux.HandleFunc("/api/endpoints", d.handleAPIEndpoints)
	return mux
}

// Start starts the dashboard HTTP server and blocks until it stops.
func (d *Dashboard) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return errors.New("dashboard already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.server = &http.Server{
		Addr:         d.Address(),
		Handler:      d.Handler(),
		ReadTimeout:  d.config.ReadTimeout,
		WriteTimeout: d.config.WriteTimeout,
		IdleTimeout:  d.config.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	server := d.server
	d.mu.Unlock()

	go func() {
		<-ctx.Done()
		d.Stop()
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the dashboard server.
func (d *Dashboard) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	server := d.server
	d.mu.Unlock()

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	}
	return nil
}

// Address returns the address the dashboard listens on.
func (d *Dashboard) Address() string {
	return net.JoinHostPort(d.config.BindAddress, strconv.Itoa(d.config.Port))
}

func (d *Dashboard) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	d.renderPage(w, "home", d.getStatusData())
}

func (d *Dashboard) handleValidators(w http.ResponseWriter, r *http.Request) {
	pool := d.pool.Pool()
	data := map[string]interface{}{
		"Validators":      pool.Validators,
		"LastUpdateEpoch": pool.LastUpdateEpoch,
		"MaxValidators":   pool.Limits.MaxValidators,
		"Preferred": map[string]string{
			"Deposit":  optionalString(pool.PreferredDepositValidator),
			"Withdraw": optionalString(pool.PreferredWithdrawValidator),
		},
	}
	d.renderPage(w, "validators", data)
}

func (d *Dashboard) handleJournal(w http.ResponseWriter, r *http.Request) {
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			page = parsed
		}
	}

	data := map[string]interface{}{
		"Page":    page,
		"HasNext": false,
	}
	if d.journal == nil {
		data["Unavailable"] = true
		d.renderPage(w, "journal", data)
		return
	}
	receipts, hasNext, err := d.journalPage(page)
	if err != nil {
		http.Error(w, fmt.Sprintf("Journal error: %v", err), http.StatusInternalServerError)
		return
	}
	data["Receipts"] = receipts
	data["HasNext"] = hasNext
	d.renderPage(w, "journal", data)
}

// handleStatic serves embedded static assets.
func (d *Dashboard) handleStatic(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/static/")

	content, contentType, ok := getStaticAsset(name)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write([]byte(content))
}

// journalPage returns one page of receipts, newest first, and whether an
// older page exists.
func (d *Dashboard) journalPage(page int) ([]stakepool.Receipt, bool, error) {
	per := d.config.JournalPageSize
	all, err := d.journal.Journal(page*per + 1)
	if err != nil {
		return nil, false, err
	}
	start := (page - 1) * per
	if start >= len(all) {
		return nil, false, nil
	}
	end := start + per
	hasNext := len(all) > end
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], hasNext, nil
}

// getStatusData returns the data behind the overview page.
func (d *Dashboard) getStatusData() map[string]interface{} {
	pool := d.pool.Pool()
	data := make(map[string]interface{})

	data["Address"] = pool.Address.String()
	data["Version"] = pool.Version
	data["LastUpdateEpoch"] = pool.LastUpdateEpoch
	data["ExchangeRate"] = pool.ExchangeRate()
	data["TotalStakeLamports"] = pool.TotalStakeLamports
	data["TotalPoolTokens"] = pool.TotalPoolTokens
	data["ReserveLamports"] = pool.Reserve.Lamports
	data["ValidatorStakeLamports"] = pool.ValidatorStakeLamports()
	data["ValidatorCount"] = len(pool.Validators)
	data["Digest"] = pool.Digest().String()
	data["Uptime"] = d.uptime()

	var transient uint64
	for _, v := range pool.Validators {
		transient += v.TransientStakeLamports
	}
	data["TransientLamports"] = transient

	fees := make([]feeRow, 0, len(stakepool.FeeKinds()))
	for _, kind := range stakepool.FeeKinds() {
		entry := pool.Fees.Entry(kind)
		row := feeRow{Kind: kind.String(), Current: entry.Current.String()}
		if entry.Pending != nil {
			row.Pending = entry.Pending.String()
			row.EffectiveEpoch = entry.EffectiveEpoch
		}
		fees = append(fees, row)
	}
	data["Fees"] = fees

	if d.endpoints != nil {
		data["Endpoints"] = d.endpoints.Endpoints()
	}
	return data
}

type feeRow struct {
	Kind           string
	Current        string
	Pending        string
	EffectiveEpoch uint64
}

// renderPage renders a page template inside the layout.
func (d *Dashboard) renderPage(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	var contentBuf strings.Builder
	if err := d.templates.ExecuteTemplate(&contentBuf, name, data); err != nil {
		http.Error(w, fmt.Sprintf("Template error: %v", err), http.StatusInternalServerError)
		return
	}

	pageData := map[string]interface{}{
		"PageName": name,
		"Content":  template.HTML(contentBuf.String()),
	}
	if err := d.templates.ExecuteTemplate(w, "layout", pageData); err != nil {
		http.Error(w, fmt.Sprintf("Template error: %v", err), http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// Template helper functions

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

func formatNumber(n interface{}) string {
	switch v := n.(type) {
	case int:
		return formatInt(uint64(v))
	case uint64:
		return formatInt(v)
	case float64:
		return fmt.Sprintf("%.6f", v)
	default:
		return fmt.Sprintf("%v", n)
	}
}

// formatInt groups digits in thousands.
func formatInt(n uint64) string {
	s := strconv.FormatUint(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// formatSOL renders lamports as SOL with four decimals.
func formatSOL(lamports uint64) string {
	return fmt.Sprintf("%s.%04d", formatInt(lamports/1e9), lamports%1e9/1e5)
}

func formatTime(unix int64) string {
	if unix == 0 {
		return "N/A"
	}
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04:05 UTC")
}

func truncateHash(s string, n int) string {
	if len(s) <= n*2+3 {
		return s
	}
	return s[:n] + "..." + s[len(s)-n:]
}

func optionalString(p *types.Pubkey) string {
	if p == nil {
		return ""
	}
	return p.String()
}
