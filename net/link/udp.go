package link

import (
	"context"
	"errors"
	"net"

	"nowlink/datamodel/peer"

	"golang.org/x/sync/errgroup"

	log "github.com/sirupsen/logrus"
)

const readBufferSize = 1024

var _ Link = (*UDPLink)(nil)

// UDPLink carries link frames over a UDP multicast group. Every node joins the same group, so a datagram written to the
// group plays the role of a radio transmission that all nodes in range can hear.
type UDPLink struct {
	*base
	rc *net.UDPConn
	wc *net.UDPConn
}

// NewUDP wraps a multicast read connection and a write connection dialed to the same group.
func NewUDP(local peer.HardwareAddr, rconn *net.UDPConn, wconn *net.UDPConn, queueSize int) *UDPLink {
	return &UDPLink{
		base: newBase(local, queueSize),
		rc:   rconn,
		wc:   wconn,
	}
}

// ListenUDP joins the multicast group on the given interface (all interfaces when empty) and dials a writer to it.
func ListenUDP(local peer.HardwareAddr, group string, ifname string, queueSize int) (*UDPLink, error) {
	gaddr, err := net.ResolveUDPAddr("udp4", group)
	if err != nil {
		return nil, err
	}

	var ifi *net.Interface
	if ifname != "" {
		if ifi, err = net.InterfaceByName(ifname); err != nil {
			return nil, err
		}
	}

	rc, err := net.ListenMulticastUDP("udp4", ifi, gaddr)
	if err != nil {
		return nil, err
	}

	wc, err := net.DialUDP("udp4", nil, gaddr)
	if err != nil {
		rc.Close()
		return nil, err
	}

	return NewUDP(local, rc, wc, queueSize), nil
}

func (u *UDPLink) Run(ctx context.Context, h Handler) error {
	wg, cctx := errgroup.WithContext(ctx)

	wg.Go(func() error {
		return u.transmit(cctx, h, func(frame []byte) error {
			_, err := u.wc.Write(frame)
			return err
		})
	})

	wg.Go(func() error {
		return u.receive(cctx, h)
	})

	// Unblock the reader once we are asked to stop
	wg.Go(func() error {
		select {
		case <-cctx.Done():
		case <-u.done:
		}
		u.rc.Close()
		return nil
	})

	return wg.Wait()
}

func (u *UDPLink) receive(ctx context.Context, h Handler) error {
	var backoff readBackoff
	buf := make([]byte, readBufferSize)
	for {
		n, _, err := u.rc.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || u.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Errorf("link: failed to read frame: %v", err)
			if !backoff.wait(ctx, u.done) {
				return nil
			}
			continue
		}
		backoff.reset()

		f, ok := u.accept(buf[:n])
		if !ok {
			continue
		}
		h.HandleFrame(f)
	}
}

func (u *UDPLink) Close() error {
	if !u.markClosed() {
		return nil
	}
	werr := u.wc.Close()
	rerr := u.rc.Close()
	if errors.Is(rerr, net.ErrClosed) {
		rerr = nil
	}
	return errors.Join(werr, rerr)
}
