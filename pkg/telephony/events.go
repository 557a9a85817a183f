// Package telephony defines the wire shape of the media-stream protocol the
// carrier speaks over one WebSocket per call, plus the XML document that
// tells the carrier to open that stream. The carrier validates these shapes
// strictly, so the field set is reproduced exactly.
package telephony

import (
	"encoding/json"
	"fmt"
)

// Inbound event names.
const (
	EventStart = "start"
	EventMedia = "media"
	EventMark  = "mark"
	EventStop  = "stop"
	EventClear = "clear"
)

// Event is the envelope of every message on the stream socket.
type Event struct {
	Event          string        `json:"event"`
	SequenceNumber string        `json:"sequenceNumber,omitempty"`
	StreamSid      string        `json:"streamSid,omitempty"`
	Start          *StartPayload `json:"start,omitempty"`
	Media          *MediaPayload `json:"media,omitempty"`
	Mark           *MarkPayload  `json:"mark,omitempty"`
	Stop           *StopPayload  `json:"stop,omitempty"`
}

// StartPayload arrives once per call and carries the custom parameters
// posted on call setup.
type StartPayload struct {
	AccountSid       string            `json:"accountSid"`
	StreamSid        string            `json:"streamSid"`
	CallSid          string            `json:"callSid"`
	Tracks           []string          `json:"tracks"`
	CustomParameters map[string]string `json:"customParameters"`
	MediaFormat      MediaFormat       `json:"mediaFormat"`
}

type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// MediaPayload carries one base64 μ-law frame.
type MediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

type MarkPayload struct {
	Name string `json:"name"`
}

type StopPayload struct {
	AccountSid string `json:"accountSid"`
	CallSid    string `json:"callSid"`
}

// ParseEvent decodes one inbound frame.
func ParseEvent(raw []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("telephony: bad event frame: %w", err)
	}
	if ev.Event == "" {
		return nil, fmt.Errorf("telephony: event without type")
	}
	return &ev, nil
}

// MediaEvent builds the outbound media frame for an already base64-encoded payload.
func MediaEvent(streamSid, payload string) Event {
	return Event{
		Event:     EventMedia,
		StreamSid: streamSid,
		Media:     &MediaPayload{Payload: payload},
	}
}

// MarkEvent builds the outbound completion marker the carrier echoes back
// once the named audio has finished rendering.
func MarkEvent(streamSid, name string) Event {
	return Event{
		Event:     EventMark,
		StreamSid: streamSid,
		Mark:      &MarkPayload{Name: name},
	}
}

// ClearEvent tells the carrier to discard everything buffered on its side.
func ClearEvent(streamSid string) Event {
	return Event{Event: EventClear, StreamSid: streamSid}
}

// Sender is the outbound half of a stream connection. The session owns the
// inbound half through its event loop; Sender implementations must be safe
// for use from the playback ticker goroutine.
type Sender interface {
	// SendMedia base64-encodes the μ-law frame and writes a media event.
	SendMedia(frame []byte) error
	SendMark(name string) error
	SendClear() error
}
