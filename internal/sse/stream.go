// Package sse streams buffered and newly arriving log entries for one
// work order as Server-Sent Events, with periodic keep-alives and
// clean exit on client disconnect.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/agentworkd/orchestrator/internal/logbuffer"
)

const (
	pollInterval   = 500 * time.Millisecond
	keepAliveEvery = 30 // polling iterations between keep-alives (30 * 500ms = 15s)
)

// Writer is the subset of http.ResponseWriter (or any sink) a stream
// needs: write bytes and flush them to the client immediately.
type Writer interface {
	io.Writer
	Flush()
}

// Stream replays buffered entries matching filter, then polls for new
// ones until ctx is cancelled.
func Stream(ctx context.Context, buf *logbuffer.Buffer, w Writer, workOrderID string, filter logbuffer.Filter) error {
	existing := buf.Get(workOrderID, filter)
	lastTimestamp := filter.Since
	for _, e := range existing {
		if err := writeEntry(w, e); err != nil {
			return err
		}
		lastTimestamp = e.Timestamp
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	iterations := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			iterations++
			next := buf.GetSince(workOrderID, lastTimestamp, filter.Level, filter.Step)
			for _, e := range next {
				if err := writeEntry(w, e); err != nil {
					return nil
				}
				lastTimestamp = e.Timestamp
			}
			if iterations%keepAliveEvery == 0 {
				if err := writeKeepAlive(w); err != nil {
					return nil
				}
			}
		}
	}
}

func writeEntry(w Writer, e logbuffer.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

func writeKeepAlive(w Writer) error {
	if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
		return err
	}
	w.Flush()
	return nil
}
