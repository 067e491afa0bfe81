package progress

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/models"

	log "github.com/sirupsen/logrus"
)

// ErrStreamClosed is returned when the server ends the stream
var ErrStreamClosed = errors.New("progress stream closed by server")

const maxEventSize = 1 << 20

// StreamOpener opens the server-sent event stream
type StreamOpener interface {
	OpenEventStream(ctx context.Context) (io.ReadCloser, error)
}

// Dispatcher receives decoded events
type Dispatcher interface {
	Deliver(ev models.ProgressEvent) bool
}

// Listener reads one progress stream connection and hands events to a Dispatcher.
// It does not reconnect: once Run returns, progress for in-flight jobs stops arriving.
type Listener struct {
	opener     StreamOpener
	dispatcher Dispatcher
	now        func() time.Time

	connected atomic.Bool
	received  atomic.Int64
	discarded atomic.Int64
}

// NewListener creates a Listener
func NewListener(opener StreamOpener, dispatcher Dispatcher) *Listener {
	return &Listener{opener: opener, dispatcher: dispatcher, now: time.Now}
}

// Connected reports whether a stream is currently open
func (l *Listener) Connected() bool {
	return l.connected.Load()
}

// Stats returns the number of dispatched and discarded messages
func (l *Listener) Stats() (received, discarded int64) {
	return l.received.Load(), l.discarded.Load()
}

// Run opens the stream and blocks until it ends, fails or ctx is cancelled
func (l *Listener) Run(ctx context.Context) error {
	body, err := l.opener.OpenEventStream(ctx)
	if err != nil {
		return err
	}
	l.connected.Store(true)
	defer l.connected.Store(false)

	// Closing the body unblocks the scanner on cancellation
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			body.Close()
		case <-stop:
		}
	}()
	defer body.Close()

	log.Info("Progress stream connected")
	err = l.read(body)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		log.WithError(err).Warn("Progress stream failed")
		return fmt.Errorf("failed to read progress stream: %w", err)
	}
	log.Warn("Progress stream closed by server")
	return ErrStreamClosed
}

// read parses the text/event-stream framing: "data:" lines accumulate until a
// blank line, "event:" names the message, lines starting with ":" are comments.
func (l *Listener) read(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxEventSize)

	var (
		eventName string
		data      []string
	)
	flush := func() {
		if len(data) > 0 {
			l.handle(eventName, strings.Join(data, "\n"))
		}
		eventName = ""
		data = data[:0]
	}

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, ":"):
			// keep-alive comment
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "data":
				data = append(data, value)
			case "event":
				eventName = value
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	flush()
	return nil
}

func (l *Listener) handle(eventName, payload string) {
	if eventName == "open" {
		return
	}
	ev, err := models.ParseProgressEvent([]byte(payload))
	if err != nil {
		l.discarded.Add(1)
		log.WithError(err).Debug("Discarding malformed progress message")
		return
	}
	ev.ReceivedAt = l.now()
	l.received.Add(1)
	l.dispatcher.Deliver(ev)
}
