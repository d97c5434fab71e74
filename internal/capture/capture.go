// Package capture is the handoff between OS event delivery and the durable
// queue. Handle calls enqueue raw items and return immediately; a worker
// classifies and persists them off the delivery path, so the OS callback
// never blocks and never sees an error.
package capture

import (
	"context"
	"log/slog"

	"github.com/ownspend/agent/internal/classifier"
	"github.com/ownspend/agent/pkg/api"
	"github.com/ownspend/agent/pkg/settings"
)

// DefaultQueueSize bounds the handoff queue when no size is given.
const DefaultQueueSize = 256

type rawKind int

const (
	rawSMS rawKind = iota
	rawNotification
)

type rawItem struct {
	kind    rawKind
	sender  string
	body    string
	pkg     string
	title   string
	text    string
	bigText string
}

// Pipeline classifies raw captures and enqueues accepted events.
type Pipeline struct {
	classifier  *classifier.Classifier
	store       api.EventStore
	settings    *settings.Store
	requestSync func()
	queue       chan rawItem
	logger      *slog.Logger
}

// New creates a capture pipeline. requestSync is invoked after every
// successful insert to ask the scheduler for an immediate pass.
func New(cls *classifier.Classifier, store api.EventStore, st *settings.Store, requestSync func(), queueSize int, logger *slog.Logger) *Pipeline {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	if requestSync == nil {
		requestSync = func() {}
	}

	return &Pipeline{
		classifier:  cls,
		store:       store,
		settings:    st,
		requestSync: requestSync,
		queue:       make(chan rawItem, queueSize),
		logger:      logger,
	}
}

// Start launches the worker. It returns immediately; the worker stops when
// ctx is canceled.
func (p *Pipeline) Start(ctx context.Context) {
	go p.worker(ctx)
}

// HandleSMS accepts one delivered SMS. It never blocks: when the queue is
// full the item is dropped with a warning.
func (p *Pipeline) HandleSMS(sender, body string) {
	p.enqueue(rawItem{kind: rawSMS, sender: sender, body: body})
}

// HandleNotification accepts one posted notification.
func (p *Pipeline) HandleNotification(pkg, title, text, bigText string) {
	p.enqueue(rawItem{kind: rawNotification, pkg: pkg, title: title, text: text, bigText: bigText})
}

func (p *Pipeline) enqueue(item rawItem) {
	select {
	case p.queue <- item:
	default:
		p.logger.Warn("capture queue full, dropping item")
	}
}

func (p *Pipeline) worker(ctx context.Context) {
	p.logger.Info("capture pipeline started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("capture pipeline stopped")
			return
		case item := <-p.queue:
			p.process(ctx, item)
		}
	}
}

// process classifies and stores one raw item. Failures are logged and
// swallowed; nothing propagates back to the delivery path.
func (p *Pipeline) process(ctx context.Context, item rawItem) {
	st := p.settings.Get()

	var (
		event    *api.CapturedEvent
		accepted bool
	)
	switch item.kind {
	case rawSMS:
		if !st.SMSCaptureEnabled {
			return
		}
		event, accepted = p.classifier.ClassifySMS(item.sender, item.body)
	case rawNotification:
		if !st.NotificationCaptureEnabled {
			return
		}
		event, accepted = p.classifier.ClassifyNotification(item.pkg, item.title, item.text, item.bigText)
	}
	if !accepted {
		return
	}

	id, err := p.store.Insert(ctx, event)
	if err != nil {
		p.logger.Error("failed to queue captured event", "source", event.SourceType, "error", err)
		return
	}

	p.logger.Info("event captured", "id", id, "source", event.SourceType, "sender", event.SourceSender)
	p.requestSync()
}
