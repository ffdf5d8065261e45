package calls

import (
	"encoding/json"
	"testing"
	"time"
)

func ev(eventType string, payload string) Event {
	e := Event{Type: eventType, Timestamp: time.Unix(1700000000, 0).UTC()}
	if payload != "" {
		e.Payload = json.RawMessage(payload)
	}
	return e
}

func TestAnswered_RoomLifecycleAloneIsNotEvidence(t *testing.T) {
	events := []Event{
		ev(EventRoomStarted, ""),
		ev(EventEgressStarted, ""),
		ev(EventRoomFinished, ""),
	}
	if Answered(events) {
		t.Fatalf("room lifecycle events must not classify as answered")
	}
}

func TestAnswered_CallerJoinQualifies(t *testing.T) {
	events := []Event{
		ev(EventRoomStarted, ""),
		ev(EventParticipantJoined, `{"identity":"sip_+15550100"}`),
	}
	if !Answered(events) {
		t.Fatalf("caller participant_joined must classify as answered")
	}
}

func TestAnswered_AgentOwnJoinDoesNotQualify(t *testing.T) {
	events := []Event{
		ev(EventRoomStarted, ""),
		ev(EventParticipantJoined, `{"identity":"agent-7f3b"}`),
		ev(EventRoomFinished, ""),
	}
	if Answered(events) {
		t.Fatalf("the agent's own join must not classify as answered")
	}
}

func TestAnswered_AgentConnectedReportQualifies(t *testing.T) {
	events := []Event{
		ev(EventRoomStarted, ""),
		ev(EventAgentConnected, ""),
	}
	if !Answered(events) {
		t.Fatalf("agent_connected must classify as answered")
	}
}

func TestAnswered_JoinWithoutIdentityCountsAsCaller(t *testing.T) {
	events := []Event{ev(EventParticipantJoined, "")}
	if !Answered(events) {
		t.Fatalf("identity-less join should count as caller evidence")
	}
}

func TestAnswered_EmptyLog(t *testing.T) {
	if Answered(nil) {
		t.Fatalf("empty log must not classify as answered")
	}
}
