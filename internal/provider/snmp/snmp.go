package snmp

import (
	"context"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/logging"
	"github.com/xtxerr/hostwatch/internal/provider"
	"github.com/xtxerr/hostwatch/internal/storage/types"
)

var log = logging.Component("snmp")

// client is the subset of *gosnmp.GoSNMP a sample needs.
type client interface {
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	BulkWalkAll(rootOid string) ([]gosnmp.SnmpPDU, error)
}

// dialFunc connects to a host and returns a client plus its closer.
type dialFunc func(ctx context.Context, h *HostConfig) (client, func(), error)

// Config holds SNMP source configuration.
type Config struct {
	Hosts []HostConfig `yaml:"hosts" validate:"dive"`

	// ExcludeInterfaces are ifName prefixes left out of the network totals.
	ExcludeInterfaces []string `yaml:"exclude_interfaces"`
}

// Source is a provider.Source over a fixed list of SNMP agents.
type Source struct {
	hosts   map[string]*HostConfig
	exclude []string
	dial    dialFunc
	now     func() time.Time
}

// New creates an SNMP source. Every host must pass Validate.
func New(cfg Config) (*Source, error) {
	s := &Source{
		hosts:   make(map[string]*HostConfig, len(cfg.Hosts)),
		exclude: cfg.ExcludeInterfaces,
		dial:    dialUDP,
		now:     time.Now,
	}

	errs := errors.NewValidationErrors()
	for i := range cfg.Hosts {
		h := cfg.Hosts[i]
		if err := h.Validate(); err != nil {
			errs.Add(errors.NewValidation("snmp.hosts["+h.Name+"]", err.Error()))
			continue
		}
		if _, dup := s.hosts[h.Name]; dup {
			errs.AddField("snmp.hosts", "duplicate name "+h.Name)
			continue
		}
		if h.DiskMount == "" {
			h.DiskMount = "/"
		}
		s.hosts[h.Name] = &h
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

// Name implements provider.Source.
func (s *Source) Name() string { return "snmp" }

// Addr returns the agent address of a target, used for liveness pings.
func (s *Source) Addr(target string) (string, bool) {
	h, ok := s.hosts[target]
	if !ok {
		return "", false
	}
	return h.Host, true
}

// ListTargets reports every configured host as running. Reachability is
// left to the liveness filter in front of this source.
func (s *Source) ListTargets(ctx context.Context) ([]provider.Target, error) {
	out := make([]provider.Target, 0, len(s.hosts))
	for name := range s.hosts {
		out = append(out, provider.Target{ID: name, State: provider.StateRunning})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Sample polls one agent. Any request failure fails the whole sample.
func (s *Source) Sample(ctx context.Context, target string) (*types.Sample, error) {
	h, ok := s.hosts[target]
	if !ok {
		return nil, errors.Collection(target, errors.NewNotFound("target", target))
	}

	c, closeFn, err := s.dial(ctx, h)
	if err != nil {
		return nil, errors.Collection(target, classify(err, "connect"))
	}
	defer closeFn()

	out := &types.Sample{Target: target, Timestamp: s.now().UTC()}

	pkt, err := c.Get(scalarOIDs)
	if err != nil {
		return nil, errors.Collection(target, classify(err, "get"))
	}
	parseScalars(pkt.Variables, &out.CPU, &out.Memory)

	if ctx.Err() != nil {
		return nil, errors.Collection(target, ctx.Err())
	}
	rows, err := c.BulkWalkAll(oidProcessorLoad)
	if err != nil {
		return nil, errors.Collection(target, classify(err, "walk hrProcessorLoad"))
	}
	parseCPU(rows, &out.CPU)

	if ctx.Err() != nil {
		return nil, errors.Collection(target, ctx.Err())
	}
	rows, err = c.BulkWalkAll(oidStorageEntry)
	if err != nil {
		return nil, errors.Collection(target, classify(err, "walk hrStorage"))
	}
	if !parseStorage(rows, h.DiskMount, &out.Disk) {
		log.Debug("storage entry not found", "target", target, "mount", h.DiskMount)
	}

	if ctx.Err() != nil {
		return nil, errors.Collection(target, ctx.Err())
	}
	rows, err = c.BulkWalkAll(oidIfXEntry)
	if err != nil {
		return nil, errors.Collection(target, classify(err, "walk ifXTable"))
	}
	out.Interfaces = parseInterfaces(rows, s.exclude)

	out.Normalize()
	return out, nil
}

func dialUDP(ctx context.Context, h *HostConfig) (client, func(), error) {
	g := newClient(h)
	g.Context = ctx
	if err := g.Connect(); err != nil {
		return nil, nil, err
	}
	return g, func() { g.Conn.Close() }, nil
}

// classify maps gosnmp failures onto the provider sentinels.
func classify(err error, op string) error {
	if isTimeoutError(err) {
		return errors.Wrapf(errors.ErrTimeout, "%s: %v", op, err)
	}
	return errors.Wrapf(errors.ErrConnectionFailed, "%s: %v", op, err)
}

func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}
