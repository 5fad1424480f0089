package link

import (
	"context"
	"errors"
	"time"

	"nowlink/datamodel/peer"

	"github.com/go-zeromq/zmq4"
	"golang.org/x/sync/errgroup"

	log "github.com/sirupsen/logrus"
)

const zmqRedialInterval = time.Second

var _ Link = (*ZMQLink)(nil)

// ZMQLink carries link frames over ZeroMQ PUB/SUB. Each node publishes on its own endpoint and subscribes to the
// endpoints of every other node, which together behave like one shared broadcast medium.
type ZMQLink struct {
	*base
	listen    string
	endpoints []string

	ctx    context.Context
	cancel context.CancelFunc
	pub    zmq4.Socket
	sub    zmq4.Socket
}

// NewZMQ binds the publisher. Subscriptions to endpoints are established by Run and retried until they succeed.
func NewZMQ(local peer.HardwareAddr, listen string, endpoints []string, queueSize int) (*ZMQLink, error) {
	ctx, cancel := context.WithCancel(context.Background())

	z := &ZMQLink{
		base:      newBase(local, queueSize),
		listen:    listen,
		endpoints: endpoints,
		ctx:       ctx,
		cancel:    cancel,
		pub:       zmq4.NewPub(ctx),
		sub:       zmq4.NewSub(ctx, zmq4.WithDialerRetry(zmqRedialInterval)),
	}

	if err := z.pub.Listen(listen); err != nil {
		cancel()
		return nil, err
	}

	if err := z.sub.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		z.pub.Close()
		cancel()
		return nil, err
	}

	log.Infof("link: ZeroMQ publisher listening on %s", listen)

	return z, nil
}

func (z *ZMQLink) Run(ctx context.Context, h Handler) error {
	wg, cctx := errgroup.WithContext(ctx)

	for _, ep := range z.endpoints {
		ep := ep
		wg.Go(func() error {
			z.dial(cctx, ep)
			return nil
		})
	}

	wg.Go(func() error {
		return z.transmit(cctx, h, func(frame []byte) error {
			return z.pub.Send(zmq4.NewMsg(frame))
		})
	})

	wg.Go(func() error {
		return z.receive(cctx, h)
	})

	// Recv has no deadline, cancelling the socket context unblocks it
	wg.Go(func() error {
		select {
		case <-cctx.Done():
		case <-z.done:
		}
		z.cancel()
		return nil
	})

	return wg.Wait()
}

func (z *ZMQLink) dial(ctx context.Context, ep string) {
	for {
		err := z.sub.Dial(ep)
		if err == nil {
			log.Infof("link: subscribed to %s", ep)
			return
		}
		log.Warnf("link: failed to subscribe to %s: %v", ep, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(zmqRedialInterval):
		}
	}
}

func (z *ZMQLink) receive(ctx context.Context, h Handler) error {
	var backoff readBackoff
	for {
		msg, err := z.sub.Recv()
		if err != nil {
			if ctx.Err() != nil || z.ctx.Err() != nil || z.isClosed() {
				return nil
			}
			log.Errorf("link: failed to receive frame: %v", err)
			if !backoff.wait(ctx, z.done) {
				return nil
			}
			continue
		}
		backoff.reset()

		f, ok := z.accept(msg.Bytes())
		if !ok {
			continue
		}
		h.HandleFrame(f)
	}
}

func (z *ZMQLink) Close() error {
	if !z.markClosed() {
		return nil
	}
	z.cancel()
	return errors.Join(z.sub.Close(), z.pub.Close())
}
