package calls

import (
	"encoding/json"
	"strings"
)

// AgentIdentityPrefix is the room identity prefix of the agent process itself.
// Its own join events are not evidence that anyone answered.
const AgentIdentityPrefix = "agent-"

// Answered reports whether the event log contains independent evidence that a
// caller participant was actually connected, as opposed to the room merely
// having been created. It is the classification step of terminal resolution:
// answered calls close as completed, everything else closes as unanswered.
//
// Qualifying evidence:
//   - a participant_joined event whose participant identity is not the agent
//     process itself
//   - an agent_connected entry (the agent observed the caller in the room)
//
// Room and egress lifecycle events never qualify.
func Answered(events []Event) bool {
	for _, ev := range events {
		switch ev.Type {
		case EventAgentConnected:
			return true
		case EventParticipantJoined:
			if !isAgentParticipant(ev.Payload) {
				return true
			}
		}
	}
	return false
}

type participantPayload struct {
	Identity string `json:"identity"`
}

func isAgentParticipant(payload json.RawMessage) bool {
	if len(payload) == 0 {
		// No identity recorded: treat as caller evidence. The platform only
		// emits participant_joined for real participants, and dropping the
		// evidence would misclassify an answered call as unanswered.
		return false
	}
	var p participantPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return false
	}
	return strings.HasPrefix(p.Identity, AgentIdentityPrefix)
}
