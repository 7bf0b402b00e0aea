package handlers

import (
	"encoding/json"

	"github.com/Ananth-NQI/orderline-backend/internal/services"
	"github.com/Ananth-NQI/orderline-backend/internal/utils"
)

// WebhookPayload is the envelope Meta posts for WhatsApp Business accounts.
type WebhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string       `json:"field"`
			Value WebhookValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type WebhookValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Messages []json.RawMessage `json:"messages"`
}

type WebhookMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply,omitempty"`
		ListReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply,omitempty"`
	} `json:"interactive,omitempty"`
	Image *struct {
		ID       string `json:"id"`
		MimeType string `json:"mime_type"`
		Caption  string `json:"caption"`
	} `json:"image,omitempty"`
}

// Inbound extracts the first customer message. It reports false for
// deliveries that carry no message, such as status callbacks.
func (p *WebhookPayload) Inbound() (services.InboundMessage, bool) {
	if len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return services.InboundMessage{}, false
	}
	value := p.Entry[0].Changes[0].Value
	if len(value.Messages) == 0 {
		return services.InboundMessage{}, false
	}

	raw := value.Messages[0]
	var m WebhookMessage
	if err := json.Unmarshal(raw, &m); err != nil || m.From == "" {
		return services.InboundMessage{}, false
	}

	msg := services.InboundMessage{
		PhoneNumberID: value.Metadata.PhoneNumberID,
		From:          utils.NormalizePhone(m.From),
		MessageID:     m.ID,
		Type:          m.Type,
	}
	switch {
	case m.Type == "text" && m.Text != nil:
		msg.Text = m.Text.Body
	case m.Type == "interactive" && m.Interactive != nil && m.Interactive.ButtonReply != nil:
		msg.Text = "BUTTON:" + m.Interactive.ButtonReply.ID
	case m.Type == "interactive" && m.Interactive != nil && m.Interactive.ListReply != nil:
		msg.Text = "LIST:" + m.Interactive.ListReply.ID
	case m.Type == "image" && m.Image != nil:
		msg.MediaID = m.Image.ID
		msg.Text = m.Image.Caption
		if msg.Text == "" {
			msg.Text = "[Imagen]"
		}
	default:
		msg.Text = string(raw)
	}
	return msg, true
}
