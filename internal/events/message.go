package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Veraticus/storefront-checkout/internal/model"
)

// ErrMalformedMessage is returned for payloads that are not JSON objects.
var ErrMalformedMessage = errors.New("malformed event message")

// StatusMessage is what the client reads from one event payload.
// Status is empty when the payload carries none; ID is empty likewise.
type StatusMessage struct {
	Status model.Status
	ID     string
}

// HasStatus reports whether the payload named a status.
func (m StatusMessage) HasStatus() bool {
	return m.Status != ""
}

type rawMessage struct {
	Status any             `json:"status"`
	ID     any             `json:"id"`
	Data   json.RawMessage `json:"data"`
}

type rawData struct {
	Status any `json:"status"`
	ID     any `json:"id"`
}

// ParseStatusMessage reads the status and transaction id from an event
// payload. A status at the top level wins over one under "data"; the id
// is looked up the same way. An unknown status value is an error.
func ParseStatusMessage(payload []byte) (StatusMessage, error) {
	var raw rawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return StatusMessage{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	var nested rawData
	if len(raw.Data) > 0 && raw.Data[0] == '{' {
		if err := json.Unmarshal(raw.Data, &nested); err != nil {
			return StatusMessage{}, fmt.Errorf("%w: data: %w", ErrMalformedMessage, err)
		}
	}

	var msg StatusMessage

	statusText := scalarString(raw.Status)
	if statusText == "" {
		statusText = scalarString(nested.Status)
	}
	if statusText != "" {
		status, err := model.ParseStatus(statusText)
		if err != nil {
			return StatusMessage{}, err
		}
		msg.Status = status
	}

	msg.ID = scalarString(raw.ID)
	if msg.ID == "" {
		msg.ID = scalarString(nested.ID)
	}

	return msg, nil
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
}
