// Package discovery finds machines on the local network by UDP broadcast.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"laundry-control-backend/internal/parse"
)

const (
	DefaultBroadcastAddr = "255.255.255.255:4040"
	DefaultProbe         = "WS2020_ROTONDI_DISCOVERY"
	DefaultMagic         = "WS2020"
	DefaultWindow        = 2 * time.Second
	DefaultBufferSize    = 32
)

// Address is one reachable machine interface.
type Address = parse.DiscoveredAddress

// Service broadcasts a probe and collects the replies that arrive within Window.
type Service struct {
	BroadcastAddr string
	Probe         string
	Magic         string
	Window        time.Duration
	BufferSize    int
}

// NewService returns a Service with the default probe parameters.
func NewService() *Service {
	return &Service{
		BroadcastAddr: DefaultBroadcastAddr,
		Probe:         DefaultProbe,
		Magic:         DefaultMagic,
		Window:        DefaultWindow,
		BufferSize:    DefaultBufferSize,
	}
}

// Poll sends one probe and returns every address announced before the window
// closes. Replies are not deduplicated; malformed ones are skipped. An error
// is returned only when the socket cannot be opened or the probe cannot be sent.
func (s *Service) Poll(ctx context.Context) ([]Address, error) {
	target, err := net.ResolveUDPAddr("udp4", s.BroadcastAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve broadcast address: %w", err)
	}

	// Go enables SO_BROADCAST on datagram sockets.
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("bind discovery socket: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	defer stop()

	if _, err := conn.WriteToUDP([]byte(s.Probe), target); err != nil {
		return nil, fmt.Errorf("send discovery probe: %w", err)
	}

	deadline := time.Now().Add(s.window())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}

	found := []Address{}
	buf := make([]byte, s.bufferSize())
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if !errors.As(err, &netErr) || !netErr.Timeout() {
				log.Warn().Err(err).Msg("Discovery read failed")
			}
			break
		}

		addrs, ok := parse.DiscoveryReply(buf[:n], s.Magic)
		if !ok {
			log.Debug().Str("from", from.String()).Msg("Ignoring malformed discovery reply")
			continue
		}
		found = append(found, addrs...)
	}

	log.Info().Int("count", len(found)).Msg("Discovery finished")
	return found, nil
}

func (s *Service) window() time.Duration {
	if s.Window <= 0 {
		return DefaultWindow
	}
	return s.Window
}

func (s *Service) bufferSize() int {
	if s.BufferSize <= 0 {
		return DefaultBufferSize
	}
	return s.BufferSize
}
