package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Ananth-NQI/orderline-backend/internal/models"
	"github.com/Ananth-NQI/orderline-backend/internal/storage"
)

const (
	IntentGreeting = "GREETING"
	IntentSupport  = "SUPPORT"

	FallbackReply = "Lo siento, hubo un problema procesando tu mensaje. ¿Puedes intentar nuevamente?"
)

// Responder turns conversation context into the next reply and state changes.
type Responder interface {
	Respond(ctx context.Context, in *ResponderInput) (*ResponderOutput, error)
}

// ResponderInput is everything the responder sees for one turn.
type ResponderInput struct {
	RestaurantInfo  RestaurantInfo       `json:"restaurant_info"`
	Menu            *MenuSnapshot        `json:"menu"`
	SessionState    map[string]any       `json:"session_state"`
	PaymentAccounts []PaymentAccountInfo `json:"payment_accounts"`
	History         []HistoryMessage     `json:"-"`
	LastUserMessage string               `json:"last_message"`
}

type RestaurantInfo struct {
	Name     string `json:"name"`
	Address  string `json:"address,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

type PaymentAccountInfo struct {
	Type          string `json:"type"`
	AccountNumber string `json:"accountNumber"`
	AccountHolder string `json:"accountHolder"`
	BankName      string `json:"bankName,omitempty"`
	Description   string `json:"description,omitempty"`
}

type HistoryMessage struct {
	Role    models.MessageRole `json:"role"`
	Content string             `json:"content"`
}

// MenuSnapshot is the read-only catalog view handed to the responder.
type MenuSnapshot struct {
	MenuID     string         `json:"menu_id"`
	Name       string         `json:"name"`
	Categories []MenuCategory `json:"categories"`
}

type MenuCategory struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Items       []MenuItem `json:"items"`
}

type MenuItem struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	BasePrice    float64           `json:"base_price"`
	ImageURL     string            `json:"image_url,omitempty"`
	IsAvailable  bool              `json:"is_available"`
	OptionGroups []MenuOptionGroup `json:"option_groups"`
}

type MenuOptionGroup struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Type       string       `json:"type"`
	IsRequired bool         `json:"is_required"`
	Min        int          `json:"min"`
	Max        int          `json:"max"`
	Options    []MenuOption `json:"options"`
}

type MenuOption struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	ExtraPrice float64 `json:"extra_price"`
}

// ResponderOutput is the structured answer for one turn.
type ResponderOutput struct {
	Reply             string         `json:"reply"`
	SessionUpdates    map[string]any `json:"session_updates"`
	OrderSummary      *OrderEnvelope `json:"order_summary"`
	ShowConfirmButton bool           `json:"show_confirm_button"`
	Interactive       *Interactive   `json:"interactive"`
	Intent            string         `json:"intent"`
	SendMenuImages    bool           `json:"send_menu_images"`
}

type OrderEnvelope struct {
	ShouldCreateOrder bool          `json:"should_create_order"`
	Order             *OrderSummary `json:"order"`
}

// Interactive carries button or list hints for the outbound message.
type Interactive struct {
	Type    string    `json:"type"` // "buttons" or "list"
	Buttons []Button  `json:"buttons,omitempty"`
	List    *ListSpec `json:"list,omitempty"`
}

type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type ListSpec struct {
	ButtonText string        `json:"button_text"`
	Sections   []ListSection `json:"sections"`
}

type ListSection struct {
	Title string    `json:"title,omitempty"`
	Rows  []ListRow `json:"rows"`
}

type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// FallbackOutput is used whenever the responder fails; it never touches state.
func FallbackOutput() *ResponderOutput {
	return &ResponderOutput{Reply: FallbackReply}
}

// WantsOrder reports whether the output asks for an order with a usable summary.
func (o *ResponderOutput) WantsOrder() bool {
	return o.OrderSummary != nil && o.OrderSummary.ShouldCreateOrder && o.OrderSummary.Order != nil
}

// ResponderContext is the loaded context for one turn.
type ResponderContext struct {
	Merchant *models.Merchant
	Menu     *models.Menu
	Input    *ResponderInput
}

// LoadResponderContext fetches merchant, menu, payment accounts and history
// concurrently and assembles the responder input.
func LoadResponderContext(ctx context.Context, store storage.Store, session *models.Session, lastMessage string, historyLimit int) (*ResponderContext, error) {
	var (
		merchant *models.Merchant
		menu     *models.Menu
		accounts []*models.PaymentAccount
		history  []*models.SessionMessage
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		merchant, err = store.GetMerchant(gctx, session.MerchantID)
		if err != nil {
			return fmt.Errorf("load merchant: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		menu, err = store.GetActiveMenu(gctx, session.MerchantID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load menu: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		accounts, err = store.ListActivePaymentAccounts(gctx, session.MerchantID)
		if err != nil {
			return fmt.Errorf("load payment accounts: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		history, err = store.ListRecentMessages(gctx, session.ID, historyLimit)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	in := &ResponderInput{
		RestaurantInfo: RestaurantInfo{
			Name:     merchant.Name,
			Address:  merchant.Address,
			Phone:    merchant.Phone,
			Timezone: merchant.Timezone,
		},
		Menu:            snapshotMenu(menu),
		SessionState:    session.OrderingState().AsMap(),
		PaymentAccounts: make([]PaymentAccountInfo, 0, len(accounts)),
		History:         make([]HistoryMessage, 0, len(history)),
		LastUserMessage: lastMessage,
	}
	for _, acc := range accounts {
		in.PaymentAccounts = append(in.PaymentAccounts, PaymentAccountInfo{
			Type:          acc.Type,
			AccountNumber: acc.AccountNumber,
			AccountHolder: acc.AccountHolder,
			BankName:      acc.BankName,
			Description:   acc.Description,
		})
	}
	for _, m := range history {
		in.History = append(in.History, HistoryMessage{Role: m.Role, Content: m.Content})
	}
	return &ResponderContext{Merchant: merchant, Menu: menu, Input: in}, nil
}

func snapshotMenu(menu *models.Menu) *MenuSnapshot {
	if menu == nil {
		return nil
	}
	snap := &MenuSnapshot{MenuID: menu.ID, Name: menu.Name, Categories: make([]MenuCategory, 0, len(menu.Categories))}
	for _, cat := range menu.Categories {
		c := MenuCategory{ID: cat.ID, Name: cat.Name, Description: cat.Description, Items: make([]MenuItem, 0, len(cat.Items))}
		for _, item := range cat.Items {
			it := MenuItem{
				ID:           item.ID,
				Name:         item.Name,
				Description:  item.Description,
				BasePrice:    item.BasePrice,
				ImageURL:     item.ImageURL,
				IsAvailable:  item.IsAvailable,
				OptionGroups: make([]MenuOptionGroup, 0, len(item.OptionGroups)),
			}
			for _, og := range item.OptionGroups {
				g := MenuOptionGroup{ID: og.ID, Name: og.Name, Type: og.Type, IsRequired: og.IsRequired, Min: og.Min, Max: og.Max}
				for _, opt := range og.Options {
					g.Options = append(g.Options, MenuOption{ID: opt.ID, Name: opt.Name, ExtraPrice: opt.ExtraPrice})
				}
				it.OptionGroups = append(it.OptionGroups, g)
			}
			c.Items = append(c.Items, it)
		}
		snap.Categories = append(snap.Categories, c)
	}
	return snap
}

const orderAssistantPrompt = `Eres el asistente de pedidos por WhatsApp de un restaurante.
Responde SIEMPRE con un único objeto JSON con estas claves:
- "reply": texto para el cliente (puede ser vacío si no hay nada que decir).
- "session_updates": cambios al estado del pedido (items, delivery_type, address, payment_method, notes, customer_name, status).
- "order_summary": {"should_create_order": bool, "order": {"items": [...], "delivery_type", "address", "payment_method", "notes", "estimated_total"}}.
- "show_confirm_button": true cuando el pedido está listo para que el cliente lo confirme.
- "interactive": opcional, {"type": "buttons", "buttons": [{"id","title"}]} o {"type": "list", "list": {"button_text", "sections": [{"title","rows":[{"id","title","description"}]}]}}.
- "intent": GREETING, ORDER, QUESTION, SUPPORT u OTHER.
- "send_menu_images": true si el cliente pide ver la carta.
Usa solo productos del menú y los precios indicados. Los mensajes BUTTON:<id> y LIST:<id> son selecciones del cliente.`

// OpenAIResponder calls a chat-completions endpoint in JSON mode.
type OpenAIResponder struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewOpenAIResponder(apiKey, model, baseURL string, timeout time.Duration, log *slog.Logger) *OpenAIResponder {
	return &OpenAIResponder{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With(slog.String("component", "responder")),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Temperature    float64           `json:"temperature"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (r *OpenAIResponder) Respond(ctx context.Context, in *ResponderInput) (*ResponderOutput, error) {
	if r.apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not configured")
	}

	messages := []chatMessage{{Role: "system", Content: orderAssistantPrompt}}
	for _, h := range in.History {
		messages = append(messages, chatMessage{Role: string(h.Role), Content: h.Content})
	}
	userContent, err := renderUserContent(in)
	if err != nil {
		return nil, err
	}
	messages = append(messages, chatMessage{Role: "user", Content: userContent})

	body, err := json.Marshal(chatRequest{
		Model:          r.model,
		Temperature:    0.2,
		Messages:       messages,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call responder: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read responder body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("responder returned %d: %s", resp.StatusCode, truncate(string(raw), 300))
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, fmt.Errorf("decode responder envelope: %w", err)
	}
	if len(cr.Choices) == 0 {
		return nil, errors.New("responder returned no choices")
	}
	content := cr.Choices[0].Message.Content
	r.logger.Debug("responder output", slog.String("content", content))
	return ParseResponderOutput(content)
}

func renderUserContent(in *ResponderInput) (string, error) {
	parts := []struct {
		key string
		val any
	}{
		{"restaurant_info", in.RestaurantInfo},
		{"menu", menuOrEmpty(in.Menu)},
		{"session_state", in.SessionState},
		{"payment_accounts", in.PaymentAccounts},
	}
	var b strings.Builder
	for _, p := range parts {
		raw, err := json.Marshal(p.val)
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", p.key, err)
		}
		fmt.Fprintf(&b, "%s: %s\n", p.key, raw)
	}
	fmt.Fprintf(&b, "last_message: %s", in.LastUserMessage)
	return b.String(), nil
}

func menuOrEmpty(m *MenuSnapshot) any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// ParseResponderOutput decodes the responder's JSON, tolerating code fences.
func ParseResponderOutput(content string) (*ResponderOutput, error) {
	var out ResponderOutput
	if err := json.Unmarshal([]byte(stripCodeFences(content)), &out); err != nil {
		return nil, fmt.Errorf("decode responder output: %w", err)
	}
	return &out, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
