package client

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Aashish23092/invoice-flow/dto"
)

// Publisher is the subset of *nats.Conn used for dispatch.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSDispatcher publishes notifications on "<subject>.<type>".
type NATSDispatcher struct {
	publisher Publisher
	subject   string
	logger    *zap.Logger
}

func NewNATSDispatcher(publisher Publisher, subject string, logger *zap.Logger) *NATSDispatcher {
	if subject == "" {
		subject = "invoices.notifications"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSDispatcher{publisher: publisher, subject: subject, logger: logger}
}

// ConnectNATS opens a connection that keeps reconnecting in the background.
func ConnectNATS(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("invoice-flow"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "nats: connect %s", url)
	}
	return nc, nil
}

func (d *NATSDispatcher) Dispatch(ctx context.Context, n dto.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(n)
	if err != nil {
		return eris.Wrap(err, "nats: marshal notification")
	}
	subject := d.subject + "." + string(n.Type)
	if err := d.publisher.Publish(subject, data); err != nil {
		return eris.Wrapf(err, "nats: publish %s", subject)
	}
	d.logger.Debug("notification published",
		zap.String("subject", subject),
		zap.Int64("recipient_id", n.RecipientID),
	)
	return nil
}

// LogDispatcher writes notifications to the log. It is used when no broker is configured.
type LogDispatcher struct {
	logger *zap.Logger
}

func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(_ context.Context, n dto.Notification) error {
	fields := []zap.Field{
		zap.String("type", string(n.Type)),
		zap.Int64("recipient_id", n.RecipientID),
		zap.String("title", n.Title),
		zap.String("priority", string(n.Priority)),
	}
	if n.InvoiceID != nil {
		fields = append(fields, zap.Int64("invoice_id", *n.InvoiceID))
	}
	d.logger.Info("notification", fields...)
	return nil
}
