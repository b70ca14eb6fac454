package ai

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/reconcile-cli/internal/cost"
	"github.com/sells-group/reconcile-cli/internal/model"
)

// ErrUnknownProvider is returned by roster edits that name no configured provider.
var ErrUnknownProvider = eris.New("ai: unknown provider")

// Recommendation thresholds.
const (
	lowSuccessRate   = 70.0
	slowResponseMs   = 10000.0
	cheaperByFactor  = 10.0
	defaultMaxTokens = 1500
)

// DefaultProviders is the roster used when configuration lists none.
func DefaultProviders() []model.ProviderConfig {
	return []model.ProviderConfig{
		{
			Name: KindGLM, Kind: KindGLM, Enabled: true, Priority: 1,
			CostPerKTokens: 0.0014, Model: "glm-4.5", BaseURL: GLMBaseURL,
			Temperature: 0.1, MaxTokens: defaultMaxTokens,
		},
		{
			Name: KindOpenAI, Kind: KindOpenAI, Enabled: true, Priority: 2,
			CostPerKTokens: 0.0004, Model: "gpt-4o-mini",
			Temperature: 0.1, MaxTokens: defaultMaxTokens,
		},
	}
}

// ConfigPatch is a partial update of a provider's tunables.
type ConfigPatch struct {
	Priority       *int     `json:"priority,omitempty"`
	CostPerKTokens *float64 `json:"cost_per_k_tokens,omitempty"`
	Model          *string  `json:"model,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	MaxTokens      *int     `json:"max_tokens,omitempty"`
}

// Outcome is one attempt's contribution to a provider's rolling stats.
type Outcome struct {
	Success bool
	CostUSD float64
	Tokens  int
	Latency time.Duration
	Reason  model.FallbackReason
}

// Comparison summarizes one provider for side-by-side reporting.
type Comparison struct {
	Name        string               `json:"name"`
	Enabled     bool                 `json:"enabled"`
	Status      model.ProviderStatus `json:"status"`
	Priority    int                  `json:"priority"`
	Requests    int                  `json:"requests"`
	SuccessRate float64              `json:"success_rate"`
	AvgCostUSD  float64              `json:"avg_cost_usd"`
	AvgTimeMs   float64              `json:"avg_time_ms"`
}

type baseline struct {
	enabled  bool
	priority int
	status   model.ProviderStatus
}

// Roster is the runtime provider table shared by the extractor and the
// operator surface. It is safe for concurrent use.
type Roster struct {
	mu        sync.RWMutex
	providers map[string]*model.ProviderConfig
	calc      *cost.Calculator

	emergency string
	saved     map[string]baseline
}

// NewRoster builds a roster from configured providers. Statuses start ONLINE.
func NewRoster(providers []model.ProviderConfig, calc *cost.Calculator) (*Roster, error) {
	if calc == nil {
		calc = cost.NewCalculator(cost.DefaultRates())
	}
	r := &Roster{calc: calc}
	if err := r.load(providers); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Roster) load(providers []model.ProviderConfig) error {
	m := make(map[string]*model.ProviderConfig, len(providers))
	for _, p := range providers {
		if p.Name == "" {
			return eris.New("ai: provider without name")
		}
		if _, dup := m[p.Name]; dup {
			return eris.Errorf("ai: duplicate provider %q", p.Name)
		}
		if p.Kind == "" {
			p.Kind = p.Name
		}
		if p.MaxTokens <= 0 {
			p.MaxTokens = defaultMaxTokens
		}
		if p.Status == "" {
			p.Status = model.ProviderOnline
		}
		m[p.Name] = &p
	}
	r.providers = m
	return nil
}

// Snapshot returns copies of every provider ordered by priority, then name.
func (r *Roster) Snapshot() []model.ProviderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.ProviderConfig, 0, len(r.providers))
	for _, p := range r.providers {
		cp := *p
		cp.Stats.FailureReasons = copyReasons(p.Stats.FailureReasons)
		out = append(out, cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Enabled returns the enabled providers in attempt order. Status is ignored.
func (r *Roster) Enabled() []model.ProviderConfig {
	all := r.Snapshot()
	out := all[:0]
	for _, p := range all {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// Get returns a copy of the named provider.
func (r *Roster) Get(name string) (model.ProviderConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return model.ProviderConfig{}, false
	}
	cp := *p
	cp.Stats.FailureReasons = copyReasons(p.Stats.FailureReasons)
	return cp, true
}

// Toggle flips the enabled flag and returns the new value.
func (r *Roster) Toggle(name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.lookup(name)
	if err != nil {
		return false, err
	}
	p.Enabled = !p.Enabled
	return p.Enabled, nil
}

// SetStatus records operational status. It never affects attempt order.
func (r *Roster) SetStatus(name string, status model.ProviderStatus) error {
	switch status {
	case model.ProviderOnline, model.ProviderOffline, model.ProviderError:
	default:
		return eris.Errorf("ai: invalid status %q", status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.lookup(name)
	if err != nil {
		return err
	}
	p.Status = status
	return nil
}

// UpdateConfig applies a partial update. A model change goes through the catalog.
func (r *Roster) UpdateConfig(name string, patch ConfigPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.lookup(name)
	if err != nil {
		return err
	}
	if patch.Model != nil {
		if err := r.applyModel(p, *patch.Model); err != nil {
			return err
		}
	}
	if patch.Priority != nil {
		p.Priority = *patch.Priority
	}
	if patch.CostPerKTokens != nil {
		p.CostPerKTokens = *patch.CostPerKTokens
	}
	if patch.Temperature != nil {
		if *patch.Temperature < 0 || *patch.Temperature > 2 {
			return eris.Errorf("ai: temperature %.2f out of range", *patch.Temperature)
		}
		p.Temperature = *patch.Temperature
	}
	if patch.MaxTokens != nil {
		if *patch.MaxTokens <= 0 {
			return eris.New("ai: max_tokens must be positive")
		}
		p.MaxTokens = *patch.MaxTokens
	}
	return nil
}

// SetModel switches the provider's model and its per-1k cost.
func (r *Roster) SetModel(name, modelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.lookup(name)
	if err != nil {
		return err
	}
	return r.applyModel(p, modelID)
}

func (r *Roster) applyModel(p *model.ProviderConfig, modelID string) error {
	rate, ok := r.calc.Rate(modelID)
	if !ok || rate.Provider != p.Kind {
		return eris.Errorf("ai: model %q is not available for %s", modelID, p.Name)
	}
	p.Model = modelID
	p.CostPerKTokens = rate.PerKTokens()
	return nil
}

// Models lists the catalog models a provider may switch to.
func (r *Roster) Models(name string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return r.calc.Models(p.Kind), nil
}

// SwapPriorities exchanges the priorities of two providers.
func (r *Roster) SwapPriorities(a, b string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pa, err := r.lookup(a)
	if err != nil {
		return err
	}
	pb, err := r.lookup(b)
	if err != nil {
		return err
	}
	pa.Priority, pb.Priority = pb.Priority, pa.Priority
	return nil
}

// EnableEmergencyMode routes everything to primary: every other provider is
// disabled and marked OFFLINE, primary is enabled at priority 1.
func (r *Roster) EnableEmergencyMode(primary string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	target, err := r.lookup(primary)
	if err != nil {
		return err
	}
	if r.saved == nil {
		r.saved = make(map[string]baseline, len(r.providers))
		for name, p := range r.providers {
			r.saved[name] = baseline{enabled: p.Enabled, priority: p.Priority, status: p.Status}
		}
	}
	for name, p := range r.providers {
		if name == primary {
			continue
		}
		p.Enabled = false
		p.Status = model.ProviderOffline
	}
	target.Enabled = true
	target.Status = model.ProviderOnline
	target.Priority = 1
	r.emergency = primary
	return nil
}

// DisableEmergencyMode restores the enablement and priorities saved when
// emergency mode was entered. It is a no-op outside emergency mode.
func (r *Roster) DisableEmergencyMode() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, b := range r.saved {
		p, ok := r.providers[name]
		if !ok {
			continue
		}
		p.Enabled = b.enabled
		p.Priority = b.priority
		p.Status = model.ProviderOnline
	}
	r.saved = nil
	r.emergency = ""
}

// Emergency returns the primary provider when emergency mode is active.
func (r *Roster) Emergency() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.emergency, r.emergency != ""
}

// RecordOutcome folds one attempt into the provider's rolling stats.
func (r *Roster) RecordOutcome(name string, o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[name]
	if !ok {
		return
	}
	s := &p.Stats
	s.TotalRequests++
	s.TotalCost += o.CostUSD
	s.TotalTokens += o.Tokens
	n := float64(s.TotalRequests)
	s.AvgResponseTimeMs = (s.AvgResponseTimeMs*(n-1) + float64(o.Latency.Milliseconds())) / n
	if o.Success {
		s.Successes++
	} else if o.Reason != model.FallbackNone {
		if s.FailureReasons == nil {
			s.FailureReasons = make(map[model.FallbackReason]int)
		}
		s.FailureReasons[o.Reason]++
	}
	s.SuccessRate = float64(s.Successes) / n * 100
}

// Metrics compares providers side by side, in attempt order.
func (r *Roster) Metrics() []Comparison {
	snap := r.Snapshot()
	out := make([]Comparison, 0, len(snap))
	for _, p := range snap {
		c := Comparison{
			Name:        p.Name,
			Enabled:     p.Enabled,
			Status:      p.Status,
			Priority:    p.Priority,
			Requests:    p.Stats.TotalRequests,
			SuccessRate: p.Stats.SuccessRate,
			AvgTimeMs:   p.Stats.AvgResponseTimeMs,
		}
		if p.Stats.TotalRequests > 0 {
			c.AvgCostUSD = p.Stats.TotalCost / float64(p.Stats.TotalRequests)
		}
		out = append(out, c)
	}
	return out
}

// Recommendations flags providers that look misconfigured, slow, or much
// cheaper than a peer. Providers without traffic are not judged.
func (r *Roster) Recommendations() []string {
	var used []model.ProviderConfig
	for _, p := range r.Snapshot() {
		if p.Stats.TotalRequests > 0 {
			used = append(used, p)
		}
	}

	var out []string
	for _, p := range used {
		if p.Stats.SuccessRate < lowSuccessRate {
			out = append(out, fmt.Sprintf("%s: success rate %.1f%% is below %.0f%%, review its configuration", p.Name, p.Stats.SuccessRate, lowSuccessRate))
		}
		if p.Stats.AvgResponseTimeMs > slowResponseMs {
			out = append(out, fmt.Sprintf("%s: average response time %.0fms exceeds %.0fms, consider another model", p.Name, p.Stats.AvgResponseTimeMs, slowResponseMs))
		}
	}
	for _, a := range used {
		for _, b := range used {
			if a.Name == b.Name || b.Stats.TotalCost == 0 {
				continue
			}
			if a.Stats.TotalCost < b.Stats.TotalCost/cheaperByFactor {
				out = append(out, fmt.Sprintf("%s costs under a tenth of %s, consider giving it priority", a.Name, b.Name))
			}
		}
	}
	return out
}

type rosterFile struct {
	Providers []model.ProviderConfig `yaml:"providers"`
	Emergency *emergencyFile         `yaml:"emergency,omitempty"`
}

// emergencyFile carries emergency mode across processes so a later
// DisableEmergencyMode can still restore the baseline.
type emergencyFile struct {
	Primary  string                  `yaml:"primary"`
	Baseline map[string]baselineFile `yaml:"baseline"`
}

type baselineFile struct {
	Enabled  bool `yaml:"enabled"`
	Priority int  `yaml:"priority"`
}

// Export writes the roster configuration (without stats) as YAML.
func (r *Roster) Export(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	f := rosterFile{Providers: r.Snapshot()}
	r.mu.RLock()
	if r.emergency != "" {
		f.Emergency = &emergencyFile{Primary: r.emergency, Baseline: make(map[string]baselineFile, len(r.saved))}
		for name, b := range r.saved {
			f.Emergency.Baseline[name] = baselineFile{Enabled: b.enabled, Priority: b.priority}
		}
	}
	r.mu.RUnlock()
	if err := enc.Encode(f); err != nil {
		return eris.Wrap(err, "ai: encode roster")
	}
	return eris.Wrap(enc.Close(), "ai: flush roster")
}

// Import replaces the roster configuration from YAML. Stats and statuses of
// providers that survive the import are kept.
func (r *Roster) Import(rd io.Reader) error {
	var f rosterFile
	if err := yaml.NewDecoder(rd).Decode(&f); err != nil {
		return eris.Wrap(err, "ai: decode roster")
	}
	if len(f.Providers) == 0 {
		return eris.New("ai: roster file lists no providers")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.providers
	if err := r.load(f.Providers); err != nil {
		return err
	}
	for name, p := range r.providers {
		if old, ok := prev[name]; ok {
			p.Stats = old.Stats
			p.Status = old.Status
		}
	}
	r.saved = nil
	r.emergency = ""
	if e := f.Emergency; e != nil && e.Primary != "" {
		if _, ok := r.providers[e.Primary]; ok {
			r.emergency = e.Primary
			r.saved = make(map[string]baseline, len(e.Baseline))
			for name, b := range e.Baseline {
				r.saved[name] = baseline{enabled: b.Enabled, priority: b.Priority, status: model.ProviderOnline}
			}
		}
	}
	return nil
}

// lookup must be called with r.mu held.
func (r *Roster) lookup(name string) (*model.ProviderConfig, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownProvider, "%q", name)
	}
	return p, nil
}

func copyReasons(m map[model.FallbackReason]int) map[model.FallbackReason]int {
	if m == nil {
		return nil
	}
	out := make(map[model.FallbackReason]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
