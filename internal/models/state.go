package models

import (
	"encoding/json"
	"strings"
)

// StateItem is a line the customer has asked for but not yet ordered
type StateItem struct {
	ItemID    string   `json:"item_id,omitempty"`
	Name      string   `json:"name"`
	Quantity  int      `json:"quantity"`
	UnitPrice float64  `json:"unit_price,omitempty"`
	Subtotal  float64  `json:"subtotal,omitempty"`
	Options   []string `json:"options,omitempty"`
	Notes     string   `json:"notes,omitempty"`
}

// OrderingState is the progress of an order inside a session.
// Keys the responder sends that are not modeled here are kept in Extra.
type OrderingState struct {
	Items          []StateItem    `json:"items,omitempty"`
	DeliveryType   string         `json:"delivery_type,omitempty"`
	Address        string         `json:"address,omitempty"`
	PaymentMethod  string         `json:"payment_method,omitempty"`
	Notes          string         `json:"notes,omitempty"`
	CustomerName   string         `json:"customer_name,omitempty"`
	MenuImagesSent bool           `json:"menu_images_sent,omitempty"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// Clone returns a deep enough copy for independent mutation.
func (s OrderingState) Clone() OrderingState {
	out := s
	if s.Items != nil {
		out.Items = make([]StateItem, len(s.Items))
		for i, it := range s.Items {
			it.Options = append([]string(nil), it.Options...)
			out.Items[i] = it
		}
	}
	if s.Extra != nil {
		out.Extra = make(map[string]any, len(s.Extra))
		for k, v := range s.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// AsMap flattens the state into the shape the responder reads and writes:
// modeled fields and Extra side by side at the top level.
func (s OrderingState) AsMap() map[string]any {
	out := make(map[string]any, len(s.Extra)+7)
	for k, v := range s.Extra {
		out[k] = v
	}
	if len(s.Items) > 0 {
		out["items"] = s.Items
	}
	setIf := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	setIf("delivery_type", s.DeliveryType)
	setIf("address", s.Address)
	setIf("payment_method", s.PaymentMethod)
	setIf("notes", s.Notes)
	setIf("customer_name", s.CustomerName)
	if s.MenuImagesSent {
		out["menu_images_sent"] = true
	}
	return out
}

// MergePatch applies a responder patch on top of s. A "status" key is not
// stored; it is returned as the declared next session status instead.
func (s OrderingState) MergePatch(patch map[string]any) (OrderingState, *SessionStatus) {
	out := s.Clone()
	var declared *SessionStatus

	for k, v := range patch {
		switch k {
		case "status":
			if str, ok := v.(string); ok {
				st := SessionStatus(strings.ToUpper(strings.TrimSpace(str)))
				if st.Valid() {
					declared = &st
				}
			}
		case "items":
			var items []StateItem
			if v == nil {
				out.Items = nil
			} else if decodeInto(v, &items) {
				out.Items = items
			} else {
				out.setExtra(k, v)
			}
		case "delivery_type":
			out.DeliveryType = stringOr(v, out.DeliveryType)
		case "address":
			out.Address = stringOr(v, out.Address)
		case "payment_method":
			out.PaymentMethod = stringOr(v, out.PaymentMethod)
		case "notes":
			out.Notes = stringOr(v, out.Notes)
		case "customer_name":
			out.CustomerName = stringOr(v, out.CustomerName)
		case "menu_images_sent":
			if b, ok := v.(bool); ok {
				out.MenuImagesSent = b
			}
		default:
			out.setExtra(k, v)
		}
	}
	return out, declared
}

func (s *OrderingState) setExtra(k string, v any) {
	if s.Extra == nil {
		s.Extra = make(map[string]any)
	}
	s.Extra[k] = v
}

// stringOr accepts strings and explicit nulls (clearing the field).
func stringOr(v any, current string) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	return current
}

func decodeInto(v any, dst any) bool {
	raw, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}
