package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pub"

	// Register transports for mangos socket URLs (tcp://, ipc://, inproc://).
	_ "go.nanomsg.org/mangos/v3/transport/all"

	"github.com/nodebridge/nodebridge/pkg/logging"
)

// Publisher bridges hub events onto a mangos PUB socket so external
// observers can subscribe to graph mutations over the network. Events are
// JSON-encoded, prefixed with the kind as the subscription topic.
type Publisher struct {
	socket    mangos.Socket
	addr      string
	stream    chan *Event
	stopCh    chan struct{}
	wg        sync.WaitGroup
	logger    logging.Logger
	running   bool
	runningMu sync.Mutex
}

// NewPublisher creates a publisher that will bind the PUB socket to addr
// (e.g. "tcp://127.0.0.1:9410") when started.
func NewPublisher(addr string, logger logging.Logger) (*Publisher, error) {
	socket, err := pub.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("create PUB socket: %w", err)
	}
	return &Publisher{
		socket: socket,
		addr:   addr,
		stream: make(chan *Event, 1024),
		stopCh: make(chan struct{}),
		logger: logger.With(logging.F("component", "event_publisher")),
	}, nil
}

// Start binds the socket and begins publishing.
func (p *Publisher) Start() error {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()

	if p.running {
		return fmt.Errorf("event publisher already running")
	}
	if err := p.socket.Listen(p.addr); err != nil {
		return fmt.Errorf("bind PUB socket to %s: %w", p.addr, err)
	}
	p.running = true
	p.wg.Add(1)
	go p.publishLoop()

	p.logger.Info("event publisher started", logging.F("addr", p.addr))
	return nil
}

// Publish enqueues an event for the PUB socket. Non-blocking: when the
// buffer is full the event is dropped for external observers (the
// in-process hub remains authoritative).
func (p *Publisher) Publish(event *Event) {
	select {
	case p.stream <- event:
	default:
		p.logger.Warn("event stream full, dropping event", logging.F("kind", string(event.Kind)))
	}
}

// Attach subscribes the publisher to a hub, forwarding every hub event.
// Returns the subscription so the caller controls its lifetime.
func (p *Publisher) Attach(sub *Subscription) {
	go func() {
		for event := range sub.Events() {
			p.Publish(event)
		}
	}()
}

// Stop shuts the publisher down and closes the socket.
func (p *Publisher) Stop() error {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()

	if !p.running {
		return nil
	}
	p.running = false
	close(p.stopCh)
	p.wg.Wait()
	return p.socket.Close()
}

func (p *Publisher) publishLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case event := <-p.stream:
			data, err := json.Marshal(event)
			if err != nil {
				p.logger.Error("marshal event", logging.Err(err))
				continue
			}
			frame := append([]byte(event.Kind+"|"), data...)
			if err := p.socket.Send(frame); err != nil {
				p.logger.Warn("publish event", logging.Err(err))
			}
		}
	}
}
