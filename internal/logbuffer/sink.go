package logbuffer

import (
	"context"

	"github.com/agentworkd/orchestrator/internal/wolog"
)

// Sink adapts a Buffer into a wolog.Sink: every record that carries a
// work_order_id context binding is forwarded into that work order's
// ring. Records with no work_order_id binding are dropped, since the
// buffer is scoped per work order.
type Sink struct {
	Buffer *Buffer
}

var _ wolog.Sink = Sink{}

func (s Sink) Write(ctx context.Context, r wolog.Record) {
	binding := wolog.Binding(ctx)
	workOrderID, ok := binding["work_order_id"].(string)
	if !ok || workOrderID == "" {
		return
	}

	step, _ := r.Fields["step"].(string)
	s.Buffer.Add(workOrderID, r.Level.String(), r.Event, step, r.Timestamp, r.Fields)
}
