package snmp

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/provider"
)

type fakeClient struct {
	scalars []gosnmp.SnmpPDU
	walks   map[string][]gosnmp.SnmpPDU
	walkErr error
}

func (f *fakeClient) Get(oids []string) (*gosnmp.SnmpPacket, error) {
	return &gosnmp.SnmpPacket{Variables: f.scalars}, nil
}

func (f *fakeClient) BulkWalkAll(root string) ([]gosnmp.SnmpPDU, error) {
	if f.walkErr != nil {
		return nil, f.walkErr
	}
	return f.walks[root], nil
}

func integer(name string, v int) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: name, Type: gosnmp.Integer, Value: v}
}

func counter64(name string, v uint64) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: name, Type: gosnmp.Counter64, Value: v}
}

func octets(name, v string) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: name, Type: gosnmp.OctetString, Value: []byte(v)}
}

func agent() *fakeClient {
	return &fakeClient{
		scalars: []gosnmp.SnmpPDU{
			integer(oidMemTotalReal, 1000),
			integer(oidMemAvailReal, 300),
			integer(oidMemBuffer, 50),
			integer(oidMemCached, 150),
			integer(oidMemTotalSwap, 200),
			integer(oidMemAvailSwap, 150),
			octets(oidLoad1, "0.50"),
			octets(oidLoad5, "0.40"),
			octets(oidLoad15, "0.30"),
		},
		walks: map[string][]gosnmp.SnmpPDU{
			oidProcessorLoad: {
				integer(oidProcessorLoad+".196608", 20),
				integer(oidProcessorLoad+".196609", 60),
			},
			oidStorageEntry: {
				octets(oidStorageEntry+".3.1", "Physical memory"),
				integer(oidStorageEntry+".4.1", 1024),
				integer(oidStorageEntry+".5.1", 1000),
				integer(oidStorageEntry+".6.1", 900),
				octets(oidStorageEntry+".3.31", "/"),
				integer(oidStorageEntry+".4.31", 4096),
				integer(oidStorageEntry+".5.31", 100),
				integer(oidStorageEntry+".6.31", 25),
			},
			oidIfXEntry: {
				octets(oidIfXEntry+".1.1", "lo"),
				octets(oidIfXEntry+".1.2", "eth0"),
				counter64(oidIfXEntry+".6.1", 999),
				counter64(oidIfXEntry+".6.2", 5000),
				counter64(oidIfXEntry+".10.2", 2500),
				counter64(oidIfXEntry+".7.2", 50),
				counter64(oidIfXEntry+".11.2", 25),
			},
		},
	}
}

func newTestSource(t *testing.T, c client) *Source {
	t.Helper()
	s, err := New(Config{
		Hosts:             []HostConfig{{Name: "router", Host: "10.0.0.1", Community: "public"}},
		ExcludeInterfaces: []string{"lo"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.dial = func(ctx context.Context, h *HostConfig) (client, func(), error) {
		return c, func() {}, nil
	}
	s.now = func() time.Time { return time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC) }
	return s
}

func TestSample(t *testing.T) {
	s := newTestSource(t, agent())

	got, err := s.Sample(context.Background(), "router")
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}

	if got.CPU.UsagePercent != 40 {
		t.Errorf("cpu = %v, want 40", got.CPU.UsagePercent)
	}
	if len(got.CPU.PerCore) != 2 {
		t.Errorf("per core = %v", got.CPU.PerCore)
	}
	if got.CPU.LoadAverage != [3]float64{0.5, 0.4, 0.3} {
		t.Errorf("load = %v", got.CPU.LoadAverage)
	}

	if got.Memory.TotalBytes != 1000*1024 {
		t.Errorf("mem total = %d", got.Memory.TotalBytes)
	}
	if got.Memory.UsedBytes != 500*1024 {
		t.Errorf("mem used = %d, want %d", got.Memory.UsedBytes, 500*1024)
	}
	if got.Memory.SwapUsedBytes != 50*1024 {
		t.Errorf("swap used = %d", got.Memory.SwapUsedBytes)
	}

	if got.Disk.TotalBytes != 409600 || got.Disk.UsedBytes != 102400 {
		t.Errorf("disk = %+v", got.Disk)
	}
	if got.Disk.UsagePercent != 25 {
		t.Errorf("disk pct = %v", got.Disk.UsagePercent)
	}

	if len(got.Interfaces) != 1 {
		t.Fatalf("interfaces = %+v, want only eth0", got.Interfaces)
	}
	eth := got.Interfaces[0]
	if eth.Name != "eth0" || eth.RxBytes != 5000 || eth.TxBytes != 2500 || eth.RxPackets != 50 || eth.TxPackets != 25 {
		t.Errorf("eth0 = %+v", eth)
	}
}

func TestSample_WalkFailure(t *testing.T) {
	c := agent()
	c.walkErr = io.ErrUnexpectedEOF
	s := newTestSource(t, c)

	_, err := s.Sample(context.Background(), "router")
	if !errors.IsTransientCollection(err) {
		t.Fatalf("expected transient collection error, got %v", err)
	}
	if !errors.Is(err, errors.ErrConnectionFailed) {
		t.Errorf("expected ErrConnectionFailed, got %v", err)
	}
}

func TestSample_UnknownTarget(t *testing.T) {
	s := newTestSource(t, agent())
	if _, err := s.Sample(context.Background(), "switch"); !errors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestListTargets(t *testing.T) {
	s, err := New(Config{Hosts: []HostConfig{
		{Name: "b", Host: "10.0.0.2", Community: "public"},
		{Name: "a", Host: "10.0.0.1", SecurityName: "monitor", SecurityLevel: "authPriv"},
	}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	targets, err := s.ListTargets(context.Background())
	if err != nil {
		t.Fatalf("ListTargets: %v", err)
	}
	if len(targets) != 2 || targets[0].ID != "a" || targets[1].ID != "b" {
		t.Fatalf("targets = %+v", targets)
	}
	for _, tg := range targets {
		if tg.State != provider.StateRunning {
			t.Errorf("%s state = %s", tg.ID, tg.State)
		}
	}

	if addr, ok := s.Addr("b"); !ok || addr != "10.0.0.2" {
		t.Errorf("Addr(b) = %q, %v", addr, ok)
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name  string
		hosts []HostConfig
	}{
		{"missing community", []HostConfig{{Name: "a", Host: "10.0.0.1"}}},
		{"missing host", []HostConfig{{Name: "a", Community: "public"}}},
		{"duplicate", []HostConfig{
			{Name: "a", Host: "10.0.0.1", Community: "public"},
			{Name: "a", Host: "10.0.0.2", Community: "public"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{Hosts: tt.hosts})
			if !errors.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestNewClient(t *testing.T) {
	v2 := newClient(&HostConfig{Host: "10.0.0.1", Community: "public"})
	if v2.Version != gosnmp.Version2c || v2.Port != 161 || v2.Community != "public" {
		t.Errorf("v2c client = %+v", v2)
	}

	v3 := newClient(&HostConfig{
		Host:          "10.0.0.1",
		SecurityName:  "monitor",
		SecurityLevel: "authPriv",
		AuthProtocol:  "SHA256",
		PrivProtocol:  "AES",
		TimeoutMs:     500,
	})
	if v3.Version != gosnmp.Version3 || v3.MsgFlags != gosnmp.AuthPriv {
		t.Errorf("v3 client = %+v", v3)
	}
	if v3.Timeout != 500*time.Millisecond {
		t.Errorf("timeout = %v", v3.Timeout)
	}
	usm := v3.SecurityParameters.(*gosnmp.UsmSecurityParameters)
	if usm.AuthenticationProtocol != gosnmp.SHA256 || usm.PrivacyProtocol != gosnmp.AES {
		t.Errorf("usm = %+v", usm)
	}
}

func TestColumn(t *testing.T) {
	col, idx, ok := column(oidStorageEntry+".5.31", oidStorageEntry)
	if !ok || col != 5 || idx != "31" {
		t.Errorf("column = %d %q %v", col, idx, ok)
	}
	if _, _, ok := column(".1.3.6.1.2.1.1.1.0", oidStorageEntry); ok {
		t.Error("unrelated OID matched")
	}
}

func TestClassify(t *testing.T) {
	if err := classify(context.DeadlineExceeded, "get"); !errors.Is(err, errors.ErrTimeout) {
		t.Errorf("deadline: %v", err)
	}
	if err := classify(errors.New("request timeout (after 1 retries)"), "get"); !errors.Is(err, errors.ErrTimeout) {
		t.Errorf("gosnmp timeout: %v", err)
	}
	if err := classify(io.EOF, "get"); !errors.Is(err, errors.ErrConnectionFailed) {
		t.Errorf("eof: %v", err)
	}
}
