package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Ananth-NQI/orderline-backend/internal/models"
)

const (
	ConfirmOrderButtonID    = "CONFIRM_ORDER"
	ConfirmOrderButtonTitle = "✅ Confirmar Pedido"
	menuImagesCaption       = "Te comparto nuestra carta 📋"
)

// Reply is what the conversation decided to say this turn.
type Reply struct {
	Text              string
	ShowConfirmButton bool
	OrderCreated      bool
	Interactive       *Interactive
}

// Dispatcher picks the outbound representation for a reply and sends it.
type Dispatcher struct {
	sender WhatsAppSender
	logger *slog.Logger
}

func NewDispatcher(sender WhatsAppSender, log *slog.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, logger: log.With(slog.String("component", "dispatcher"))}
}

// Dispatch sends r to the customer. A blank reply sends nothing and reports false.
func (d *Dispatcher) Dispatch(ctx context.Context, line *models.WhatsAppLine, to string, r Reply) (bool, error) {
	if strings.TrimSpace(r.Text) == "" {
		return false, nil
	}
	if !line.IsConfigured() {
		d.logger.Error("cannot send reply, line is not configured", slog.String("line_id", line.ID))
		return false, ErrLineNotConfigured
	}

	var err error
	switch {
	case r.ShowConfirmButton && !r.OrderCreated:
		err = d.sender.SendButtons(ctx, line, to, r.Text, []Button{{ID: ConfirmOrderButtonID, Title: ConfirmOrderButtonTitle}})
	case r.Interactive != nil && r.Interactive.Type == "buttons" && len(r.Interactive.Buttons) > 0:
		err = d.sender.SendButtons(ctx, line, to, r.Text, r.Interactive.Buttons)
	case r.Interactive != nil && r.Interactive.Type == "list" && r.Interactive.List != nil && len(r.Interactive.List.Sections) > 0:
		err = d.sender.SendList(ctx, line, to, r.Text, r.Interactive.List.ButtonText, r.Interactive.List.Sections)
	default:
		err = d.sender.SendText(ctx, line, to, r.Text)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SendText sends a plain message, used for fixed notices.
func (d *Dispatcher) SendText(ctx context.Context, line *models.WhatsAppLine, to, text string) (bool, error) {
	return d.Dispatch(ctx, line, to, Reply{Text: text})
}

// SendMenuImages sends every menu image, captioning the first. Failures are
// logged per image and do not stop the rest. It returns how many were sent.
func (d *Dispatcher) SendMenuImages(ctx context.Context, line *models.WhatsAppLine, to string, images []models.MenuImage) int {
	sent := 0
	for i, img := range images {
		caption := ""
		if i == 0 {
			caption = menuImagesCaption
		}
		if err := d.sender.SendImage(ctx, line, to, img.FilePath, img.MimeType, caption); err != nil {
			d.logger.Error("failed to send menu image", slog.String("image_id", img.ID), slog.Any("error", err))
			continue
		}
		sent++
	}
	return sent
}

// DownloadMedia fetches inbound media through the line's credentials.
func (d *Dispatcher) DownloadMedia(ctx context.Context, line *models.WhatsAppLine, mediaID string) ([]byte, error) {
	return d.sender.DownloadMedia(ctx, line, mediaID)
}
