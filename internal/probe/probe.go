// Package probe detects the host capabilities the compute module depends on:
// a vector instruction-set extension and shared-memory threading.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/cpuid/v2"
	"go.uber.org/zap"

	"github.com/san-kum/fluidhost/internal/fault"
	"github.com/san-kum/fluidhost/internal/logging"
)

const (
	HeaderCOEP = "Cross-Origin-Embedder-Policy"
	HeaderCOOP = "Cross-Origin-Opener-Policy"

	RequireCorp = "require-corp"
	SameOrigin  = "same-origin"
)

// Profile is the result of a probe. It never changes once computed.
type Profile struct {
	ExtendedSIMD          bool   `json:"extended_simd"`
	SharedMemoryThreading bool   `json:"shared_memory_threading"`
	Detail                Detail `json:"detail"`
}

// Detail records what the decision was based on.
type Detail struct {
	Arch          string   `json:"arch"`
	CPU           string   `json:"cpu,omitempty"`
	LogicalCores  int      `json:"logical_cores"`
	SIMDFeature   string   `json:"simd_feature,omitempty"`
	Features      []string `json:"features,omitempty"`
	EngineThreads bool     `json:"engine_threads"`
	Origin        string   `json:"origin,omitempty"`
	COEP          string   `json:"coep,omitempty"`
	COOP          string   `json:"coop,omitempty"`
	Isolated      bool     `json:"isolated"`
	IsolationNote string   `json:"isolation_note,omitempty"`
}

// Require returns a CapabilityUnsupported fault when the profile cannot run
// the requested path. Single-threaded paths only need the SIMD extension.
func (p Profile) Require(multithreaded bool) error {
	if !p.ExtendedSIMD {
		if p.Detail.SIMDFeature != "" {
			return fault.Newf(fault.CapabilityUnsupported, "probe", "%s not supported by %s", p.Detail.SIMDFeature, p.Detail.CPU)
		}
		return fault.Newf(fault.CapabilityUnsupported, "probe", "no vector extension on %s", p.Detail.Arch)
	}
	if multithreaded && !p.SharedMemoryThreading {
		return fault.Newf(fault.CapabilityUnsupported, "probe", "%s", p.threadingReason())
	}
	return nil
}

func (p Profile) threadingReason() string {
	switch {
	case !p.Detail.EngineThreads:
		return "engine does not support shared-memory threads"
	case p.Detail.IsolationNote != "":
		return "delivery context is not cross-origin isolated: " + p.Detail.IsolationNote
	default:
		return "delivery context is not cross-origin isolated"
	}
}

type Option func(*Prober)

// WithOrigin makes isolation depend on the headers served by origin.
func WithOrigin(origin string) Option {
	return func(p *Prober) { p.origin = origin }
}

func WithHTTPClient(c *http.Client) Option {
	return func(p *Prober) { p.client = c }
}

func WithEngineThreads(ok bool) Option {
	return func(p *Prober) { p.engineThreads = ok }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Prober) { p.log = l }
}

// WithSIMD overrides CPU feature detection.
func WithSIMD(ok bool) Option {
	return func(p *Prober) { p.simd = &ok }
}

// Prober computes a Profile once and returns the same value afterwards.
type Prober struct {
	origin        string
	client        *http.Client
	engineThreads bool
	simd          *bool
	log           *zap.Logger

	once    sync.Once
	profile Profile
}

func New(opts ...Option) *Prober {
	p := &Prober{
		engineThreads: true,
		client:        &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = logging.Or(p.log).Named("probe")
	return p
}

// Probe never fails; anything it cannot establish reports false.
func (p *Prober) Probe(ctx context.Context) Profile {
	p.once.Do(func() {
		p.profile = p.compute(ctx)
		p.log.Info("capabilities probed",
			zap.Bool("extended_simd", p.profile.ExtendedSIMD),
			zap.Bool("shared_memory_threading", p.profile.SharedMemoryThreading),
			zap.String("cpu", p.profile.Detail.CPU),
			zap.String("origin", p.profile.Detail.Origin),
		)
	})
	return p.profile
}

func (p *Prober) compute(ctx context.Context) Profile {
	d := Detail{
		Arch:          runtime.GOARCH,
		CPU:           cpuid.CPU.BrandName,
		LogicalCores:  cpuid.CPU.LogicalCores,
		Features:      cpuid.CPU.FeatureSet(),
		EngineThreads: p.engineThreads,
		Origin:        p.origin,
	}

	var simd bool
	simd, d.SIMDFeature = detectSIMD()
	if p.simd != nil {
		simd = *p.simd
	}

	if p.origin == "" {
		d.Isolated = true
	} else {
		d.COEP, d.COOP, d.IsolationNote = p.fetchHeaders(ctx)
		d.Isolated = d.IsolationNote == "" && Isolated(d.COEP, d.COOP)
		if !d.Isolated && d.IsolationNote == "" {
			d.IsolationNote = fmt.Sprintf("%s=%q %s=%q", HeaderCOEP, d.COEP, HeaderCOOP, d.COOP)
		}
	}

	return Profile{
		ExtendedSIMD:          simd,
		SharedMemoryThreading: p.engineThreads && d.Isolated,
		Detail:                d,
	}
}

// detectSIMD checks for the baseline vector extension of the engines'
// compiled code on this architecture.
func detectSIMD() (bool, string) {
	switch runtime.GOARCH {
	case "amd64", "386":
		return cpuid.CPU.Supports(cpuid.SSE4), "SSE4.1"
	case "arm64":
		return cpuid.CPU.Supports(cpuid.ASIMD), "ASIMD"
	}
	return false, ""
}

// Isolated reports whether the header values establish cross-origin
// isolation.
func Isolated(coep, coop string) bool {
	return directive(coep) == RequireCorp && directive(coop) == SameOrigin
}

// directive strips parameters such as report-to from a policy value.
func directive(v string) string {
	if i := strings.IndexByte(v, ';'); i >= 0 {
		v = v[:i]
	}
	return strings.ToLower(strings.TrimSpace(v))
}

func (p *Prober) fetchHeaders(ctx context.Context) (coep, coop, note string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.origin, nil)
	if err != nil {
		return "", "", err.Error()
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", "", err.Error()
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode >= 400 {
		note = "origin returned " + resp.Status
	}
	return resp.Header.Get(HeaderCOEP), resp.Header.Get(HeaderCOOP), note
}
