package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/Ananth-NQI/orderline-backend/internal/events"
	"github.com/Ananth-NQI/orderline-backend/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type publishedEvent struct {
	MerchantID string
	Type       events.EventType
	Data       any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(merchantID string, eventType events.EventType, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{MerchantID: merchantID, Type: eventType, Data: data})
}

func (p *recordingPublisher) ofType(t events.EventType) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type sentMessage struct {
	Kind    string // text, buttons, list, image
	To      string
	Body    string
	Buttons []Button
	Path    string
}

type fakeSender struct {
	mu       sync.Mutex
	sent     []sentMessage
	media    map[string][]byte
	failKind string
}

func newFakeSender() *fakeSender {
	return &fakeSender{media: make(map[string][]byte)}
}

func (f *fakeSender) record(m sentMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failKind == m.Kind {
		return errors.New("send failed")
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeSender) SendText(ctx context.Context, line *models.WhatsAppLine, to, body string) error {
	return f.record(sentMessage{Kind: "text", To: to, Body: body})
}

func (f *fakeSender) SendButtons(ctx context.Context, line *models.WhatsAppLine, to, body string, buttons []Button) error {
	return f.record(sentMessage{Kind: "buttons", To: to, Body: body, Buttons: buttons})
}

func (f *fakeSender) SendList(ctx context.Context, line *models.WhatsAppLine, to, body, buttonText string, sections []ListSection) error {
	return f.record(sentMessage{Kind: "list", To: to, Body: body})
}

func (f *fakeSender) SendImage(ctx context.Context, line *models.WhatsAppLine, to, filePath, mimeType, caption string) error {
	return f.record(sentMessage{Kind: "image", To: to, Body: caption, Path: filePath})
}

func (f *fakeSender) DownloadMedia(ctx context.Context, line *models.WhatsAppLine, mediaID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.media[mediaID]
	if !ok {
		return nil, errors.New("media not found")
	}
	return data, nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

// scriptedResponder answers with fn and counts calls.
type scriptedResponder struct {
	mu    sync.Mutex
	calls int
	last  *ResponderInput
	fn    func(in *ResponderInput) (*ResponderOutput, error)
}

func (r *scriptedResponder) Respond(ctx context.Context, in *ResponderInput) (*ResponderOutput, error) {
	r.mu.Lock()
	r.calls++
	r.last = in
	r.mu.Unlock()
	return r.fn(in)
}

func (r *scriptedResponder) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func replyWith(text string) func(*ResponderInput) (*ResponderOutput, error) {
	return func(*ResponderInput) (*ResponderOutput, error) {
		return &ResponderOutput{Reply: text}, nil
	}
}
