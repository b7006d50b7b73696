package capture

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dns_log.csv")

	l, err := OpenLog(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(Entry{
		Timestamp: time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC),
		SrcIP:     "192.168.1.5",
		DstIP:     "8.8.8.8",
		QName:     "example.com.",
		QType:     dns.TypeA,
	}))
	require.NoError(t, l.Close())

	// Reopening an existing log must not repeat the header.
	l, err = OpenLog(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(Entry{
		IsResponse:  true,
		SrcIP:       "8.8.8.8",
		DstIP:       "192.168.1.5",
		QName:       "example.com.",
		QType:       dns.TypeA,
		AnswerCount: 2,
		ResponseIPs: []string{"93.184.216.34", "93.184.216.35"},
	}))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp,is_response,src_ip,dst_ip,qname,qtype,ans_count,response_ips", lines[0])
	assert.Equal(t, "2025-01-02 10:00:00,0,192.168.1.5,8.8.8.8,example.com.,1,0,", lines[1])
	assert.Contains(t, lines[2], ",1,8.8.8.8,192.168.1.5,example.com.,1,2,93.184.216.34;93.184.216.35")
}

func TestNewProxyValidates(t *testing.T) {
	l := openTestLog(t)

	_, err := NewProxy(ProxyConfig{Upstream: "8.8.8.8"}, l)
	assert.ErrorContains(t, err, "listen address")

	_, err = NewProxy(ProxyConfig{Listen: "127.0.0.1:5353"}, l)
	assert.ErrorContains(t, err, "upstream")

	p, err := NewProxy(ProxyConfig{Listen: "127.0.0.1:5353", Upstream: "8.8.8.8"}, l)
	require.NoError(t, err)
	assert.Equal(t, "8.8.8.8:53", p.cfg.Upstream, "bare upstream host gets the default port")
	assert.Equal(t, 5*time.Second, p.cfg.Timeout)
}

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := OpenLog(filepath.Join(t.TempDir(), "dns_log.csv"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

// runLocalServer starts a UDP DNS server on a random port and returns
// its address.
func runLocalServer(t *testing.T, handler dns.Handler) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	server := &dns.Server{PacketConn: pc, Handler: handler}
	started := sync.Mutex{}
	started.Lock()
	server.NotifyStartedFunc = started.Unlock

	go func() { _ = server.ActivateAndServe() }()
	started.Lock()

	t.Cleanup(func() {
		_ = server.Shutdown()
		_ = pc.Close()
	})
	return pc.LocalAddr().String()
}

func TestProxyRecordsExchange(t *testing.T) {
	// Stub upstream answering every A query with 1.2.3.4.
	upstream := runLocalServer(t, dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)
		rr, err := dns.NewRR(req.Question[0].Name + " 60 IN A 1.2.3.4")
		if err == nil {
			m.Answer = append(m.Answer, rr)
		}
		_ = w.WriteMsg(m)
	}))

	l := openTestLog(t)
	p, err := NewProxy(ProxyConfig{Listen: "127.0.0.1:0", Upstream: upstream}, l)
	require.NoError(t, err)

	mux := dns.NewServeMux()
	mux.HandleFunc(".", p.handle)
	addr := runLocalServer(t, mux)

	req := new(dns.Msg)
	req.SetQuestion("tunnel.example.com.", dns.TypeA)

	client := &dns.Client{Net: "udp", Timeout: 2 * time.Second}
	resp, _, err := client.Exchange(req, addr)
	require.NoError(t, err)
	require.Len(t, resp.Answer, 1)

	a, ok := resp.Answer[0].(*dns.A)
	require.True(t, ok)
	assert.Equal(t, "1.2.3.4", a.A.String())

	// Query plus response rows.
	assert.Equal(t, 2, l.Written())
}

func TestProxyRateLimitAnswersServfail(t *testing.T) {
	upstream := runLocalServer(t, dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)
		_ = w.WriteMsg(m)
	}))

	l := openTestLog(t)
	p, err := NewProxy(ProxyConfig{Listen: "127.0.0.1:0", Upstream: upstream, RateLimit: 1}, l)
	require.NoError(t, err)

	mux := dns.NewServeMux()
	mux.HandleFunc(".", p.handle)
	addr := runLocalServer(t, mux)

	client := &dns.Client{Net: "udp", Timeout: 2 * time.Second}
	var failures int
	for range 5 {
		req := new(dns.Msg)
		req.SetQuestion("burst.example.com.", dns.TypeA)
		resp, _, err := client.Exchange(req, addr)
		require.NoError(t, err)
		if resp.Rcode == dns.RcodeServerFailure {
			failures++
		}
	}
	assert.Positive(t, failures, "burst past the limit is refused, not queued")
}

func TestProxyRunStopsOnCancel(t *testing.T) {
	l := openTestLog(t)
	p, err := NewProxy(ProxyConfig{Listen: "127.0.0.1:0", Upstream: "127.0.0.1:53599"}, l)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("proxy did not stop on cancel")
	}
}
