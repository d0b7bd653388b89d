// Package netcheck answers whether a board's Ethernet port responds to ICMP
// echo requests.
package netcheck

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

const (
	DefaultCount    = 4
	DefaultInterval = 250 * time.Millisecond
	DefaultTimeout  = 5 * time.Second
)

// Stats summarises one ping run.
type Stats struct {
	Sent       int
	Received   int
	PacketLoss float64
	AvgRTT     time.Duration
}

// Echoer sends echo requests to an address.
type Echoer interface {
	Echo(ctx context.Context, addr string, count int) (Stats, error)
}

// Checker pings an address and requires zero packet loss.
type Checker struct {
	Echoer Echoer
	Count  int
	log    *slog.Logger
}

// New returns a checker backed by ICMP. Privileged selects raw sockets over
// unprivileged datagram sockets.
func New(privileged bool) *Checker {
	return &Checker{
		Echoer: &ICMP{Privileged: privileged, Interval: DefaultInterval, Timeout: DefaultTimeout},
		Count:  DefaultCount,
		log:    slog.Default(),
	}
}

// SetLogger replaces the logger used for ping summaries.
func (c *Checker) SetLogger(l *slog.Logger) {
	if l != nil {
		c.log = l
	}
}

// Reachable reports whether every echo request to addr was answered.
func (c *Checker) Reachable(ctx context.Context, addr string) (bool, error) {
	count := c.Count
	if count <= 0 {
		count = DefaultCount
	}
	st, err := c.Echoer.Echo(ctx, addr, count)
	if err != nil {
		return false, fmt.Errorf("ping %s: %w", addr, err)
	}
	c.log.Info("ping", "address", addr, "sent", st.Sent, "received", st.Received, "loss", st.PacketLoss, "avg_rtt", st.AvgRTT)
	return st.Sent > 0 && st.PacketLoss == 0, nil
}

// ICMP is an Echoer using pro-bing.
type ICMP struct {
	Privileged bool
	Interval   time.Duration
	Timeout    time.Duration
}

func (p *ICMP) Echo(ctx context.Context, addr string, count int) (Stats, error) {
	pinger, err := probing.NewPinger(addr)
	if err != nil {
		return Stats{}, err
	}
	pinger.Count = count
	pinger.Interval = p.Interval
	pinger.Timeout = p.Timeout
	pinger.SetPrivileged(p.Privileged)
	if err := pinger.RunWithContext(ctx); err != nil {
		return Stats{}, err
	}
	st := pinger.Statistics()
	return Stats{
		Sent:       st.PacketsSent,
		Received:   st.PacketsRecv,
		PacketLoss: st.PacketLoss,
		AvgRTT:     st.AvgRtt,
	}, nil
}

// Static is an Echoer with canned answers, used for dry runs and tests.
type Static map[string]Stats

func (s Static) Echo(ctx context.Context, addr string, count int) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	st, ok := s[addr]
	if !ok {
		return Stats{Sent: count, PacketLoss: 100}, nil
	}
	return st, nil
}
