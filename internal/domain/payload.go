package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// PayloadKind tags the negotiation payload variants carried in message bodies.
type PayloadKind string

const (
	PayloadKindTime     PayloadKind = "time"
	PayloadKindLocation PayloadKind = "location"
)

// PayloadStatus tracks a proposal's own acceptance, independent of the
// connection's agreed fields until both converge.
type PayloadStatus string

const (
	PayloadStatusPending  PayloadStatus = "pending"
	PayloadStatusAccepted PayloadStatus = "accepted"
)

// Place is a proposed or agreed meetup location.
type Place struct {
	Name    string  `json:"name"`
	Address string  `json:"address,omitempty"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// MeetupPayload is the structured negotiation value embedded in a message
// body: a time proposal or a location proposal.
type MeetupPayload struct {
	Kind   PayloadKind   `json:"kind"`
	Status PayloadStatus `json:"status"`
	When   *time.Time    `json:"when,omitempty"`
	Place  *Place        `json:"place,omitempty"`
}

// Valid reports whether the payload is a well-formed member of the union.
func (p *MeetupPayload) Valid() bool {
	if p == nil {
		return false
	}
	switch p.Kind {
	case PayloadKindTime:
		return p.When != nil
	case PayloadKindLocation:
		return p.Place != nil && p.Place.Name != ""
	}
	return false
}

// EncodePayload serializes a payload into a message body.
func EncodePayload(p *MeetupPayload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodePayload extracts a negotiation payload from a message body.
// Plain text and malformed input decode to nil; callers render those as
// ordinary chat. Legacy rows sometimes carry a payload that was encoded
// and then re-encoded as a JSON string, so one layer of quoting is
// unwrapped before giving up.
func DecodePayload(body string) *MeetupPayload {
	trimmed := strings.TrimSpace(body)

	if p := decodeDirect(trimmed); p != nil {
		return p
	}

	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(trimmed), &inner); err == nil {
			return decodeDirect(strings.TrimSpace(inner))
		}
	}

	return nil
}

func decodeDirect(body string) *MeetupPayload {
	if !strings.HasPrefix(body, "{") {
		return nil
	}
	var p MeetupPayload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil
	}
	if p.Status == "" {
		p.Status = PayloadStatusPending
	}
	if !p.Valid() {
		return nil
	}
	return &p
}
