// Package amqp implements the message broker interface for AMQP compliant brokers (ie RabbitMQ)
package amqp

import (
	"encoding/json"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/tarancss/custody/lib/logger"
	"github.com/tarancss/custody/lib/msg"
)

// Exchange is the topic exchange the wallet service publishes its events to.
const Exchange = "we"

// Amqp implements a connection to a broker and a channel for reuse.
type Amqp struct {
	conn *amqp.Connection
	mu   sync.Mutex
	ch   *amqp.Channel
	log  *zap.Logger
}

// New instantiates a new amqp broker.
func New(uri string) (*Amqp, error) {
	r := Amqp{log: logger.Named("amqp")}

	var err error
	if r.conn, err = amqp.Dial(uri); err != nil {
		return nil, err
	}

	r.log.Info("connected to broker")

	return &r, nil
}

// Setup declares the "we" ("wallet events") exchange, where the wallet service publishes transfer and status events.
func (r *Amqp) Setup() error {
	// obtain a one-use channel
	channel, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer channel.Close()

	return channel.ExchangeDeclare(Exchange, amqp.ExchangeTopic, true, false, false, false, nil)
}

// Close terminates gracefully the connection to the AMQP message broker.
func (r *Amqp) Close() error {
	r.mu.Lock()
	if r.ch != nil {
		if err := r.ch.Close(); err != nil {
			r.log.Warn("error closing channel", zap.Error(err))
		}

		r.ch = nil
	}
	r.mu.Unlock()

	return r.conn.Close()
}

func (r *Amqp) channel() (*amqp.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch == nil {
		ch, err := r.conn.Channel()
		if err != nil {
			return nil, err
		}

		r.ch = ch
	}

	return r.ch, nil
}

// SendEvent publishes a wallet event to the "we" exchange with routing key <net>.<kind>.<hash>.
func (r *Amqp) SendEvent(net string, e msg.Event) error {
	jsonDoc, err := json.Marshal(e)
	if err != nil {
		return err
	}

	ch, err := r.channel()
	if err != nil {
		return err
	}

	m := amqp.Publishing{
		Headers:     amqp.Table{"x-event-name": net + "." + e.Hash},
		Body:        jsonDoc,
		ContentType: "application/json",
	}

	if err = ch.Publish(Exchange, net+"."+e.Kind+"."+e.Hash, false, false, m); err != nil {
		r.log.Error("error sending event to message broker", zap.String("net", net), zap.Error(err))
		// drop the channel so the next publish opens a fresh one
		r.mu.Lock()
		r.ch = nil
		r.mu.Unlock()
	}

	return err
}

// GetEvents consumes events from the "we" exchange pushing them to the returned channel. The Mutex pointer is
// provided to ensure the consumed message has been fully dealt with by the management function, so the message
// consumed is only acknowledged when the mutex is unlocked.
func (r *Amqp) GetEvents(net string, mut *sync.Mutex) (<-chan msg.Event, <-chan error, error) {
	ch, err := r.channel()
	if err != nil {
		return nil, nil, err
	}

	if _, err = ch.QueueDeclare(Exchange+net, true, false, false, false, nil); err != nil {
		return nil, nil, err
	}

	if err = ch.QueueBind(Exchange+net, net+".*.*", Exchange, false, nil); err != nil {
		return nil, nil, err
	}

	msgs, err := ch.Consume(Exchange+net, "custody-"+net, false, false, false, false, nil)
	if err != nil {
		return nil, nil, err
	}

	eves := make(chan msg.Event)
	errs := make(chan error)

	go func() {
		defer close(eves)

		for m := range msgs {
			var e msg.Event
			if err := json.Unmarshal(m.Body, &e); err != nil {
				errs <- err

				_ = m.Nack(false, false)

				continue
			}

			eves <- e

			mut.Lock() // wait for the consumer to finish processing the event
			_ = m.Ack(false)
		}
	}()

	return eves, errs, nil
}
