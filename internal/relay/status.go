package relay

import (
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/dshills/eventq/internal/event"
)

func (b *Bridge) onReconnect(nc *nats.Conn) {
	id := b.conns.Add(1)
	b.logger.Info("connected", zap.String("server", nc.ConnectedUrlRedacted()), zap.Uint32("conn", id))
	b.notify(event.NetConnected, nc)
}

func (b *Bridge) onDisconnect(nc *nats.Conn, err error) {
	b.logger.Warn("disconnected", zap.Error(err))
	b.notify(event.NetDisconnected, nc)
}

func (b *Bridge) onError(nc *nats.Conn, sub *nats.Subscription, err error) {
	fields := []zap.Field{zap.Error(err)}
	if sub != nil {
		fields = append(fields, zap.String("subject", sub.Subject))
	}
	b.logger.Warn("connection error", fields...)
	b.notify(event.NetNoResponse, nc)
}

// notify enqueues a NET event carrying the server address into the status
// context.
func (b *Bridge) notify(k event.Kind, nc *nats.Conn) {
	if b.status == nil {
		return
	}
	addr := ""
	if nc != nil {
		addr = nc.ConnectedAddr()
	}
	ev := event.New(k, event.Net{ConnID: b.conns.Load(), Addr: event.NewHostAddr(addr)})
	if err := b.status.Enqueue(ev); err != nil {
		b.logger.Debug("status event dropped", zap.Stringer("event", ev), zap.Error(err))
	}
}
