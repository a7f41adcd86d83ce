package domain

import (
	"bytes"
	"encoding/json"

	"github.com/samber/mo"
)

// Envelope is the outer JSON body Slack posts to the events endpoint.
// Only the fields the relay looks at are decoded; everything else is ignored.
// A field of an unexpected type never rejects the body.
type Envelope struct {
	Type      mo.Option[string] // None unless "type" is a JSON string
	Challenge json.RawMessage   // verbatim, any JSON type; nil when absent
	Event     json.RawMessage
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return err
	}
	*e = Envelope{
		Type:      stringField(fields, "type"),
		Challenge: fields["challenge"],
		Event:     fields["event"],
	}
	return nil
}

// HasEvent reports whether the body carried an "event" key at all.
func (e Envelope) HasEvent() bool {
	return len(e.Event) > 0
}

// InboundEvent is a single Slack event. Every field is optional on the wire:
// absent and null fields are None, strings are kept as-is and any other JSON
// value is kept as its compact JSON text.
type InboundEvent struct {
	Type    mo.Option[string]
	SubType mo.Option[string]
	Channel mo.Option[string]
	User    mo.Option[string]
	Text    mo.Option[string]
	BotID   mo.Option[string]
}

// DecodeEvent parses the raw "event" object of an envelope. Only a value that
// is not a JSON object (or null) is an error.
func DecodeEvent(raw json.RawMessage) (InboundEvent, error) {
	fields, err := decodeObject(raw)
	if err != nil {
		return InboundEvent{}, err
	}
	return InboundEvent{
		Type:    textField(fields, "type"),
		SubType: textField(fields, "subtype"),
		Channel: textField(fields, "channel"),
		User:    textField(fields, "user"),
		Text:    textField(fields, "text"),
		BotID:   textField(fields, "bot_id"),
	}, nil
}

// MessageText returns the event text, or "" when the field is absent.
func (e InboundEvent) MessageText() string {
	return e.Text.OrElse("")
}

// AuthoredByBotField reports whether the user field equals the bot_id field,
// treating two absent (or null) values as equal.
func (e InboundEvent) AuthoredByBotField() bool {
	user, hasUser := e.User.Get()
	botID, hasBotID := e.BotID.Get()
	return hasUser == hasBotID && user == botID
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// stringField returns the named field only when it is a JSON string.
func stringField(fields map[string]json.RawMessage, key string) mo.Option[string] {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return mo.None[string]()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return mo.None[string]()
	}
	return mo.Some(s)
}

// textField returns the named field as a string, or the compact JSON text of
// a non-string value. Absent and null fields are None.
func textField(fields map[string]json.RawMessage, key string) mo.Option[string] {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return mo.None[string]()
	}
	if s := stringField(fields, key); s.IsPresent() {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return mo.Some(string(raw))
	}
	return mo.Some(buf.String())
}
