// Package libvirt discovers and samples virtual machines of a libvirt
// hypervisor over its RPC protocol.
package libvirt

import (
	"context"
	"net/url"
	"sort"
	"sync"
	"time"

	golibvirt "github.com/digitalocean/go-libvirt"

	"github.com/xtxerr/hostwatch/config"
	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/logging"
	"github.com/xtxerr/hostwatch/internal/provider"
	"github.com/xtxerr/hostwatch/internal/storage/types"
)

var log = logging.Component("libvirt")

// Config holds libvirt source configuration.
type Config struct {
	// URI is the hypervisor connection URI, e.g. qemu:///system.
	URI string `yaml:"uri"`
}

// hypervisor returns domain statistics records. An empty name selects
// every domain.
type hypervisor interface {
	DomainStats(name string) ([]golibvirt.DomainStatsRecord, error)
	Close() error
}

type cpuMark struct {
	cpuNs uint64
	at    time.Time
}

// Source is a provider.Source over the domains of one hypervisor.
type Source struct {
	uri  string
	dial func(uri *url.URL) (hypervisor, error)
	now  func() time.Time

	connMu sync.Mutex
	conn   hypervisor

	mu   sync.Mutex
	prev map[string]cpuMark
}

// New creates a libvirt source. The connection is opened on first use.
func New(cfg Config) *Source {
	uri := cfg.URI
	if uri == "" {
		uri = config.DefaultLibvirtURI
	}
	return &Source{
		uri:  uri,
		dial: dialRPC,
		now:  time.Now,
		prev: make(map[string]cpuMark),
	}
}

// Name implements provider.Source.
func (s *Source) Name() string { return "libvirt" }

// ListTargets reports every defined domain with its run state.
func (s *Source) ListTargets(ctx context.Context) ([]provider.Target, error) {
	records, err := s.stats("")
	if err != nil {
		return nil, errors.Discovery("libvirt", err)
	}

	out := make([]provider.Target, 0, len(records))
	for _, rec := range records {
		f := decodeParams(rec.Params)
		out = append(out, provider.Target{ID: rec.Dom.Name, State: domainState(f.uints[golibvirt.DomainStatsStateState])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Sample reads the statistics of one domain. CPU usage is derived from
// the cpu.time delta since the previous sample of the same domain.
func (s *Source) Sample(ctx context.Context, target string) (*types.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Collection(target, err)
	}

	records, err := s.stats(target)
	if err != nil {
		return nil, errors.Collection(target, errors.Wrapf(errors.ErrConnectionFailed, "domain stats: %v", err))
	}
	if len(records) == 0 {
		return nil, errors.Collection(target, errors.NewNotFound("domain", target))
	}

	now := s.now().UTC()
	f := decodeParams(records[0].Params)

	out := &types.Sample{Target: target, Timestamp: now}
	out.CPU.UsagePercent = s.cpuPercent(target, f.uints[golibvirt.DomainStatsCPUTime], f.uints[golibvirt.DomainStatsVCPUCurrent], now)
	out.Memory = f.memory()
	out.Disk = f.disk()
	out.Interfaces = f.interfaces()

	out.Normalize()
	return out, nil
}

// Close drops the hypervisor connection.
func (s *Source) Close() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *Source) stats(name string) ([]golibvirt.DomainStatsRecord, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}
	records, err := c.DomainStats(name)
	if err != nil {
		// Reconnect on the next call.
		s.connMu.Lock()
		if s.conn == c {
			_ = c.Close()
			s.conn = nil
		}
		s.connMu.Unlock()
		return nil, err
	}
	return records, nil
}

func (s *Source) client() (hypervisor, error) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		return s.conn, nil
	}

	uri, err := url.Parse(s.uri)
	if err != nil {
		return nil, errors.NewInvalidValue("libvirt.uri", s.uri, err.Error())
	}
	c, err := s.dial(uri)
	if err != nil {
		return nil, err
	}
	log.Info("libvirt connected", "uri", uri.Redacted())
	s.conn = c
	return c, nil
}

func (s *Source) cpuPercent(target string, cpuNs, vcpus uint64, now time.Time) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.prev[target]
	s.prev[target] = cpuMark{cpuNs: cpuNs, at: now}
	if !ok || cpuNs < prev.cpuNs {
		return 0
	}
	elapsed := now.Sub(prev.at)
	if elapsed <= 0 {
		return 0
	}
	if vcpus == 0 {
		vcpus = 1
	}
	return float64(cpuNs-prev.cpuNs) / (float64(elapsed.Nanoseconds()) * float64(vcpus)) * 100
}

// =============================================================================
// RPC connection
// =============================================================================

const statsMask = uint32(golibvirt.DomainStatsState | golibvirt.DomainStatsCPUTotal |
	golibvirt.DomainStatsBalloon | golibvirt.DomainStatsVCPU |
	golibvirt.DomainStatsInterface | golibvirt.DomainStatsBlock)

type rpcHypervisor struct {
	l *golibvirt.Libvirt
}

func dialRPC(uri *url.URL) (hypervisor, error) {
	l, err := golibvirt.ConnectToURI(uri)
	if err != nil {
		return nil, err
	}
	return &rpcHypervisor{l: l}, nil
}

func (h *rpcHypervisor) DomainStats(name string) ([]golibvirt.DomainStatsRecord, error) {
	var doms []golibvirt.Domain
	if name == "" {
		all, _, err := h.l.ConnectListAllDomains(1, 0)
		if err != nil {
			return nil, errors.Wrap(err, "ConnectListAllDomains")
		}
		if len(all) == 0 {
			return nil, nil
		}
		doms = all
	} else {
		dom, err := h.l.DomainLookupByName(name)
		if err != nil {
			return nil, errors.Wrap(err, "DomainLookupByName")
		}
		doms = []golibvirt.Domain{dom}
	}

	records, err := h.l.ConnectGetAllDomainStats(doms, statsMask, 0)
	if err != nil {
		return nil, errors.Wrap(err, "ConnectGetAllDomainStats")
	}
	return records, nil
}

func (h *rpcHypervisor) Close() error {
	return h.l.Disconnect()
}
