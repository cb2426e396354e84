package tgui

import (
	"strconv"
	"strings"
)

// Data formats inline callback data as "action:payload".
// Payload is kept as-is (no escaping).
func Data(action, payload string) string {
	action = strings.TrimSpace(action)
	if payload == "" {
		return action
	}
	return action + ":" + payload
}

// DataID is Data with a numeric payload.
func DataID(action string, id int64) string {
	return Data(action, strconv.FormatInt(id, 10))
}

// ParseData splits callback data produced by Data.
func ParseData(data string) (action, payload string) {
	data = strings.TrimSpace(data)
	action, payload, _ = strings.Cut(data, ":")
	return action, payload
}

// ValidData reports whether data fits Telegram's callback_data limit.
func ValidData(data string) error {
	if len(data) > MaxCallbackDataLen {
		return ErrCallbackDataTooLong
	}
	return nil
}
