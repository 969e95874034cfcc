// Package harbor implements cross-node message delivery: publishing to,
// and subscribing from, a per-harbor AMQP topic so services on different
// cluster nodes can address each other by handle exactly as if they were
// local, modulo the harbor byte in the destination.
package harbor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	amqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/fly-207/skynet/internal/handle"
	"github.com/fly-207/skynet/internal/mailbox"
)

// wireMessage is the JSON envelope carried over AMQP. It mirrors
// mailbox.Message's fields exactly; encoding is deliberately simple
// (JSON, not a binary wire format) since cross-node transport framing is
// explicitly out of scope.
type wireMessage struct {
	Dest    uint32 `json:"dest"`
	Source  uint32 `json:"source"`
	Session uint32 `json:"session"`
	Type    uint8  `json:"type"`
	Payload []byte `json:"payload"`
}

func topicFor(h uint8) string {
	return fmt.Sprintf("harbor.%d", h)
}

// AMQPHarbor publishes outbound cross-node messages to the destination
// harbor's topic exchange and redelivers whatever arrives on this node's
// own topic into the local registry via deliver.
type AMQPHarbor struct {
	self   uint8
	pub    message.Publisher
	sub    message.Subscriber
	deliver func(handle.Handle, *mailbox.Message) error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAMQPHarbor dials amqpURL and builds a publisher/subscriber pair
// scoped to this node's harbor id. deliver is called for every inbound
// message addressed to a local handle; wiring it to
// (*actor.Node).DeliverLocal is the expected use (kept as a plain func
// type here to avoid internal/harbor depending on internal/actor).
func NewAMQPHarbor(amqpURL string, self uint8, deliver func(handle.Handle, *mailbox.Message) error) (*AMQPHarbor, error) {
	logger := watermill.NewStdLogger(false, false)
	cfg := amqp.NewDurableQueueConfig(amqpURL)

	pub, err := amqp.NewPublisher(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("harbor: publisher: %w", err)
	}
	sub, err := amqp.NewSubscriber(cfg, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("harbor: subscriber: %w", err)
	}

	return &AMQPHarbor{self: self, pub: pub, sub: sub, deliver: deliver}, nil
}

// Start subscribes to this node's own harbor topic and begins
// redelivering inbound messages locally. Must be called once, after
// construction, before any peer can reach this node.
func (h *AMQPHarbor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel

	messages, err := h.sub.Subscribe(ctx, topicFor(h.self))
	if err != nil {
		cancel()
		return fmt.Errorf("harbor: subscribe: %w", err)
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for m := range messages {
			h.handleInbound(m)
		}
	}()
	return nil
}

func (h *AMQPHarbor) handleInbound(m *message.Message) {
	var wire wireMessage
	if err := json.Unmarshal(m.Payload, &wire); err != nil {
		m.Nack()
		return
	}
	err := h.deliver(handle.Handle(wire.Dest), &mailbox.Message{
		Source:  wire.Source,
		Session: wire.Session,
		Type:    mailbox.ProtocolType(wire.Type),
		Payload: wire.Payload,
	})
	if err != nil {
		// The destination is gone or unknown to this node; there is no
		// retry contract for cross-node delivery, so the message is
		// simply dropped (acked) rather than redelivered forever.
		m.Ack()
		return
	}
	m.Ack()
}

// Send implements actor.Harbor: publish msg to dest's harbor topic.
func (h *AMQPHarbor) Send(ctx context.Context, dest handle.Handle, msg *mailbox.Message) error {
	wire := wireMessage{
		Dest:    uint32(dest),
		Source:  msg.Source,
		Session: msg.Session,
		Type:    uint8(msg.Type),
		Payload: msg.Payload,
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("harbor: encode: %w", err)
	}

	wm := message.NewMessage(watermill.NewUUID(), body)
	wm.SetContext(ctx)
	return h.pub.Publish(topicFor(dest.Harbor()), wm)
}

// Close stops the inbound redelivery goroutine and closes both the
// publisher and subscriber.
func (h *AMQPHarbor) Close() error {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()

	var errs []error
	if err := h.pub.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := h.sub.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
