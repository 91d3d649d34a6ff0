// Package mqtt defines the topic layout and wire messages exchanged with
// rescuer devices over MQTT.
package mqtt

import (
	"fmt"
	"strings"

	"github.com/kilianp07/floodrescue/core/notify"
)

const topicRoot = "rescue/rescuer/"

// AcceptFilter matches accept messages from every rescuer.
const AcceptFilter = topicRoot + "+/accept"

// MissionTopic is where mission offers for ref are published.
func MissionTopic(ref string) string { return topicRoot + ref + "/mission" }

// AcceptTopic is where ref publishes its accepts.
func AcceptTopic(ref string) string { return topicRoot + ref + "/accept" }

// AssignmentTopic is where the outcome of ref's accept is published.
func AssignmentTopic(ref string) string { return topicRoot + ref + "/assignment" }

// RefFromAcceptTopic extracts the rescuer reference from an accept topic.
func RefFromAcceptTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, topicRoot)
	if !ok {
		return "", false
	}
	ref, ok := strings.CutSuffix(rest, "/accept")
	if !ok || ref == "" || strings.Contains(ref, "/") {
		return "", false
	}
	return ref, true
}

// MissionMessage is the JSON body of a mission offer.
type MissionMessage struct {
	DeliveryID string                `json:"delivery_id"`
	Mission    notify.MissionPayload `json:"mission"`
	Text       string                `json:"text"`
	SentAt     int64                 `json:"sent_at"`
}

// AcceptMessage is sent by a rescuer device to take a mission.
type AcceptMessage struct {
	TicketID   string `json:"ticket_id"`
	RescuerID  string `json:"rescuer_id,omitempty"`
	DeliveryID string `json:"delivery_id,omitempty"`
}

// Validate checks the required fields.
func (m AcceptMessage) Validate() error {
	if m.TicketID == "" {
		return fmt.Errorf("%w: ticket_id is required", ErrMalformedAccept)
	}
	return nil
}

// AssignmentReply tells a rescuer whether its accept committed.
type AssignmentReply struct {
	TicketID     string `json:"ticket_id"`
	RescuerID    string `json:"rescuer_id"`
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	TicketStatus string `json:"ticket_status,omitempty"`
}
