package capture

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/time/rate"
)

// ProxyConfig configures the recording proxy.
type ProxyConfig struct {
	// Listen is the local address to serve on, e.g. "127.0.0.1:5353".
	Listen string

	// Upstream is the resolver queries are forwarded to. Host without a
	// port gets :53.
	Upstream string

	// Timeout bounds one upstream exchange. Defaults to 5s.
	Timeout time.Duration

	// RateLimit caps forwarded queries per second. Zero or negative
	// disables the cap; excess queries are answered SERVFAIL rather than
	// queued so the listener never backs up.
	RateLimit float64
}

func (c ProxyConfig) withDefaults() ProxyConfig {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if _, _, err := net.SplitHostPort(c.Upstream); err != nil {
		c.Upstream = net.JoinHostPort(c.Upstream, "53")
	}
	return c
}

// Proxy is a UDP DNS forwarder that records every exchange to the query
// log.
type Proxy struct {
	cfg     ProxyConfig
	log     *Log
	client  *dns.Client
	limiter *rate.Limiter
	server  *dns.Server
}

// NewProxy wires a proxy over an open query log. The caller owns the log
// and closes it after Run returns.
func NewProxy(cfg ProxyConfig, log *Log) (*Proxy, error) {
	if cfg.Listen == "" {
		return nil, fmt.Errorf("proxy: listen address is required")
	}
	if cfg.Upstream == "" {
		return nil, fmt.Errorf("proxy: upstream resolver is required")
	}
	cfg = cfg.withDefaults()

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit)+1)
	}

	return &Proxy{
		cfg:     cfg,
		log:     log,
		client:  &dns.Client{Net: "udp", Timeout: cfg.Timeout},
		limiter: limiter,
	}, nil
}

// Run serves until the context is cancelled.
func (p *Proxy) Run(ctx context.Context) error {
	mux := dns.NewServeMux()
	mux.HandleFunc(".", p.handle)

	p.server = &dns.Server{
		Addr:    p.cfg.Listen,
		Net:     "udp",
		Handler: mux,
		UDPSize: dns.DefaultMsgSize,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("capture proxy listening", "addr", p.cfg.Listen, "upstream", p.cfg.Upstream)
		errCh <- p.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = p.server.ShutdownContext(shutdownCtx)
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (p *Proxy) handle(w dns.ResponseWriter, req *dns.Msg) {
	if len(req.Question) == 0 {
		m := new(dns.Msg)
		m.SetRcode(req, dns.RcodeFormatError)
		_ = w.WriteMsg(m)
		return
	}

	q := req.Question[0]
	srcIP := remoteIP(w)

	p.record(Entry{
		IsResponse: false,
		SrcIP:      srcIP,
		DstIP:      p.cfg.Upstream,
		QName:      q.Name,
		QType:      q.Qtype,
	})

	if !p.limiter.Allow() {
		slog.Warn("capture proxy over rate limit", "qname", q.Name)
		m := new(dns.Msg)
		m.SetRcode(req, dns.RcodeServerFailure)
		_ = w.WriteMsg(m)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	defer cancel()

	resp, _, err := p.client.ExchangeContext(ctx, req, p.cfg.Upstream)
	if err != nil {
		slog.Warn("upstream exchange failed", "qname", q.Name, "upstream", p.cfg.Upstream, "error", err)
		m := new(dns.Msg)
		m.SetRcode(req, dns.RcodeServerFailure)
		_ = w.WriteMsg(m)
		return
	}

	p.record(Entry{
		IsResponse:  true,
		SrcIP:       p.cfg.Upstream,
		DstIP:       srcIP,
		QName:       q.Name,
		QType:       q.Qtype,
		AnswerCount: len(resp.Answer),
		ResponseIPs: answerIPs(resp),
	})

	_ = w.WriteMsg(resp)
}

func (p *Proxy) record(e Entry) {
	if err := p.log.Append(e); err != nil {
		slog.Error("query log append failed", "qname", e.QName, "error", err)
	}
}

// answerIPs collects A record addresses from a response.
func answerIPs(msg *dns.Msg) []string {
	var ips []string
	for _, rr := range msg.Answer {
		if a, ok := rr.(*dns.A); ok {
			ips = append(ips, a.A.String())
		}
	}
	return ips
}

func remoteIP(w dns.ResponseWriter) string {
	host, _, err := net.SplitHostPort(w.RemoteAddr().String())
	if err != nil {
		return w.RemoteAddr().String()
	}
	return host
}
