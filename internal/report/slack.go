package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const slackQueue = 64

// Slack posts diagnostics to an incoming webhook. Capture calls only
// enqueue; a single worker does the delivery and drops messages when the
// queue is full.
type Slack struct {
	Webhook string
	Title   string
	Client  *http.Client

	log   *zap.Logger
	queue chan string
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// NewSlack returns nil when webhook is empty.
func NewSlack(webhook, title string, log *zap.Logger) *Slack {
	if webhook == "" {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Slack{
		Webhook: webhook,
		Title:   title,
		Client:  &http.Client{Timeout: 10 * time.Second},
		log:     log,
		queue:   make(chan string, slackQueue),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

type slackPayload struct {
	Text string `json:"text"`
}

// Send delivers one message synchronously.
func (s *Slack) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(slackPayload{Text: "*" + s.Title + "*\n" + text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Webhook, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("slack: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (s *Slack) CaptureError(_ context.Context, err error) {
	if s == nil || err == nil {
		return
	}
	s.enqueue(err.Error())
}

func (s *Slack) CaptureMessage(_ context.Context, msg string) {
	if s == nil {
		return
	}
	s.enqueue(msg)
}

func (s *Slack) enqueue(text string) {
	select {
	case <-s.stop:
	case s.queue <- text:
	default:
		s.log.Warn("slack_queue_full")
	}
}

func (s *Slack) run() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case text := <-s.queue:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := s.Send(ctx, text); err != nil {
				s.log.Warn("slack_send_error", zap.Error(err))
			}
			cancel()
		}
	}
}

// Close stops the worker. Queued messages not yet sent are dropped.
func (s *Slack) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() { close(s.stop) })
	<-s.done
}

var _ Reporter = (*Slack)(nil)
