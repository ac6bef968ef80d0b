// Package consumers hosts the three event ingestion loops: packaging
// requests, storage upload triggers and engine completion callbacks. Each
// loop owns a subscription and a bounded worker pool; messages are acked
// as soon as they are read, so a handler failure is logged and dropped
// rather than redelivered.
package consumers

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/p-dutta/transcoder/internal/bus"
	"github.com/p-dutta/transcoder/internal/worker"
)

// Handler processes one decoded stream entry.
type Handler interface {
	Handle(ctx context.Context, msg bus.Message) error
	Name() string
}

// Subscription is the read side of one stream.
type Subscription interface {
	Messages() <-chan bus.Message
	Ack(ctx context.Context, id string)
}

// Loop binds a subscription to a handler through a dispatcher.
type Loop struct {
	handler    Handler
	sub        Subscription
	dispatcher *worker.Dispatcher
	log        *logrus.Logger
}

func NewLoop(handler Handler, sub Subscription, dispatcher *worker.Dispatcher, log *logrus.Logger) *Loop {
	return &Loop{handler: handler, sub: sub, dispatcher: dispatcher, log: log}
}

// Run consumes until ctx is cancelled. Every message is acked once its
// handler has run, success or failure; when the pool is saturated the
// message is handled inline, which slows this loop's reads and lets the
// stream absorb the backlog.
func (l *Loop) Run(ctx context.Context) {
	l.dispatcher.Run(ctx)
	defer l.dispatcher.Stop()

	for {
		select {
		case msg, ok := <-l.sub.Messages():
			if !ok {
				return
			}
			task := worker.TaskFunc{
				Name: l.handler.Name() + "/" + msg.ID,
				Fn: func(ctx context.Context) error {
					return l.process(ctx, msg)
				},
			}
			if err := l.dispatcher.Submit(task); err != nil {
				l.log.WithField("consumer", l.handler.Name()).Warn("worker pool saturated, handling inline")
				_ = l.process(ctx, msg)
			}
		case <-ctx.Done():
			return
		}
	}
}

// process runs the handler and then acks, so a crash mid-handling leaves
// the entry pending for redelivery.
func (l *Loop) process(ctx context.Context, msg bus.Message) error {
	err := l.handler.Handle(ctx, msg)
	if err != nil {
		l.log.WithFields(logrus.Fields{
			"consumer": l.handler.Name(),
			"id":       msg.ID,
		}).WithError(err).Error("message handling failed")
	}
	l.sub.Ack(ctx, msg.ID)
	return err
}
