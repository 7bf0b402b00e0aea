package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Ananth-NQI/orderline-backend/internal/models"
)

// WhatsApp Cloud API limits on interactive messages
const (
	maxReplyButtons     = 3
	maxButtonTitleRunes = 20
	maxListRows         = 10
)

// WhatsAppSender is the outbound side of the WhatsApp Cloud API.
type WhatsAppSender interface {
	SendText(ctx context.Context, line *models.WhatsAppLine, to, body string) error
	SendButtons(ctx context.Context, line *models.WhatsAppLine, to, body string, buttons []Button) error
	SendList(ctx context.Context, line *models.WhatsAppLine, to, body, buttonText string, sections []ListSection) error
	SendImage(ctx context.Context, line *models.WhatsAppLine, to, filePath, mimeType, caption string) error
	DownloadMedia(ctx context.Context, line *models.WhatsAppLine, mediaID string) ([]byte, error)
}

// GraphAPIError is a non-2xx answer from the Graph API.
type GraphAPIError struct {
	StatusCode int
	Body       string
}

func (e *GraphAPIError) Error() string {
	return fmt.Sprintf("graph api returned %d: %s", e.StatusCode, e.Body)
}

// MaxMediaBytes caps a downloaded media file: WhatsApp images are at most 5 MB.
const MaxMediaBytes int64 = 6 << 20

// WhatsAppClient talks to the Meta Graph API on behalf of each line.
type WhatsAppClient struct {
	baseURL       string
	version       string
	httpClient    *http.Client
	perSecond     rate.Limit
	limiters      map[string]*rate.Limiter
	mu            sync.Mutex
	maxMediaBytes int64
	logger        *slog.Logger
}

// NewWhatsAppClient creates a Graph API client. ratePerSecond paces sends per line.
func NewWhatsAppClient(baseURL, version string, timeout time.Duration, ratePerSecond float64, log *slog.Logger) *WhatsAppClient {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	return &WhatsAppClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		version:       version,
		httpClient:    &http.Client{Timeout: timeout},
		perSecond:     limit,
		limiters:      make(map[string]*rate.Limiter),
		maxMediaBytes: MaxMediaBytes,
		logger:        log.With(slog.String("component", "whatsapp")),
	}
}

func (w *WhatsAppClient) limiter(phoneNumberID string) *rate.Limiter {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.limiters[phoneNumberID]
	if !ok {
		burst := 1
		if w.perSecond != rate.Inf {
			burst = int(w.perSecond) + 1
		}
		l = rate.NewLimiter(w.perSecond, burst)
		w.limiters[phoneNumberID] = l
	}
	return l
}

func (w *WhatsAppClient) url(line *models.WhatsAppLine, path string) string {
	version := w.version
	if line.APIVersion != "" {
		version = line.APIVersion
	}
	return fmt.Sprintf("%s/%s/%s", w.baseURL, version, strings.TrimLeft(path, "/"))
}

func checkLine(line *models.WhatsAppLine) error {
	if !line.IsConfigured() {
		return ErrLineNotConfigured
	}
	return nil
}

// SendText sends a WhatsApp text message
func (w *WhatsAppClient) SendText(ctx context.Context, line *models.WhatsAppLine, to, body string) error {
	return w.sendMessage(ctx, line, map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": body},
	})
}

// SendButtons sends an interactive reply-button message
func (w *WhatsAppClient) SendButtons(ctx context.Context, line *models.WhatsAppLine, to, body string, buttons []Button) error {
	if len(buttons) > maxReplyButtons {
		w.logger.Warn("too many buttons, truncating", slog.Int("count", len(buttons)))
		buttons = buttons[:maxReplyButtons]
	}
	actions := make([]map[string]any, 0, len(buttons))
	for _, b := range buttons {
		actions = append(actions, map[string]any{
			"type":  "reply",
			"reply": map[string]string{"id": b.ID, "title": clip(b.Title, maxButtonTitleRunes)},
		})
	}
	return w.sendMessage(ctx, line, map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]any{
			"type":   "button",
			"body":   map[string]string{"text": body},
			"action": map[string]any{"buttons": actions},
		},
	})
}

// SendList sends an interactive list message
func (w *WhatsAppClient) SendList(ctx context.Context, line *models.WhatsAppLine, to, body, buttonText string, sections []ListSection) error {
	total := 0
	trimmed := make([]ListSection, 0, len(sections))
	for _, s := range sections {
		if total >= maxListRows {
			break
		}
		if room := maxListRows - total; len(s.Rows) > room {
			s.Rows = s.Rows[:room]
		}
		total += len(s.Rows)
		trimmed = append(trimmed, s)
	}
	return w.sendMessage(ctx, line, map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]any{
			"type": "list",
			"body": map[string]string{"text": body},
			"action": map[string]any{
				"button":   clip(buttonText, maxButtonTitleRunes),
				"sections": trimmed,
			},
		},
	})
}

// SendImage uploads a local file to the line's media store and sends it.
func (w *WhatsAppClient) SendImage(ctx context.Context, line *models.WhatsAppLine, to, filePath, mimeType, caption string) error {
	if err := checkLine(line); err != nil {
		return err
	}
	mediaID, err := w.uploadMedia(ctx, line, filePath, mimeType)
	if err != nil {
		return err
	}
	image := map[string]string{"id": mediaID}
	if caption != "" {
		image["caption"] = caption
	}
	return w.sendMessage(ctx, line, map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "image",
		"image":             image,
	})
}

func (w *WhatsAppClient) uploadMedia(ctx context.Context, line *models.WhatsAppLine, filePath, mimeType string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("read media file: %w", err)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("messaging_product", "whatsapp")
	_ = mw.WriteField("type", mimeType)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filepath.Base(filePath)))
	hdr.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url(line, line.PhoneNumberID+"/media"), &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		ID string `json:"id"`
	}
	if err := w.do(line, req, &out); err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	if out.ID == "" {
		return "", errors.New("upload media: empty media id")
	}
	return out.ID, nil
}

// DownloadMedia resolves a media id to its URL and fetches the bytes.
func (w *WhatsAppClient) DownloadMedia(ctx context.Context, line *models.WhatsAppLine, mediaID string) ([]byte, error) {
	if line == nil || line.AccessToken == "" {
		return nil, ErrLineNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.url(line, mediaID), nil)
	if err != nil {
		return nil, err
	}
	var info struct {
		URL string `json:"url"`
	}
	if err := w.do(line, req, &info); err != nil {
		return nil, fmt.Errorf("resolve media: %w", err)
	}
	if info.URL == "" {
		return nil, errors.New("resolve media: empty url")
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+line.AccessToken)
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &GraphAPIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if resp.ContentLength > w.maxMediaBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrMediaTooLarge, resp.ContentLength)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, w.maxMediaBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read media: %w", err)
	}
	if int64(len(data)) > w.maxMediaBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrMediaTooLarge, w.maxMediaBytes)
	}
	w.logger.Info("downloaded media", slog.String("media_id", mediaID), slog.Int("bytes", len(data)))
	return data, nil
}

func (w *WhatsAppClient) sendMessage(ctx context.Context, line *models.WhatsAppLine, payload map[string]any) error {
	if err := checkLine(line); err != nil {
		return err
	}
	if err := w.limiter(line.PhoneNumberID).Wait(ctx); err != nil {
		return fmt.Errorf("wait for send slot: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url(line, line.PhoneNumberID+"/messages"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if err := w.do(line, req, nil); err != nil {
		w.logger.Error("failed to send whatsapp message",
			slog.String("to", fmt.Sprint(payload["to"])), slog.String("type", fmt.Sprint(payload["type"])), slog.Any("error", err))
		return err
	}
	w.logger.Info("sent whatsapp message", slog.String("to", fmt.Sprint(payload["to"])), slog.String("type", fmt.Sprint(payload["type"])))
	return nil
}

func (w *WhatsAppClient) do(line *models.WhatsAppLine, req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+line.AccessToken)
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return &GraphAPIError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode graph response: %w", err)
		}
	}
	return nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
