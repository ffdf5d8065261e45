package voice

import (
	"context"
	"sync"
	"time"
)

// Turn is one utterance in the call transcript.
type Turn struct {
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

const (
	SpeakerAgent  = "agent"
	SpeakerCaller = "caller"
)

// ConversationSession is the speech pipeline collaborator. The runner only
// cares that it can be started against the live room, stopped, and asked for
// the transcript afterwards; what happens in between (STT, LLM, TTS) is the
// implementation's business.
type ConversationSession interface {
	Start(ctx context.Context) error
	Stop()
	Transcript() []Turn
}

// NopSession is the pipeline-less session: it speaks nothing and hears
// nothing, recording only the configured greeting as an agent turn. Used
// when no speech stack is wired, so the rest of the call lifecycle is still
// exercised end to end.
type NopSession struct {
	greeting string
	clock    func() time.Time

	mu    sync.Mutex
	turns []Turn
}

func NewNopSession(greeting string) *NopSession {
	return &NopSession{greeting: greeting, clock: time.Now}
}

func (s *NopSession) Start(_ context.Context) error {
	if s.greeting == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{
		Speaker: SpeakerAgent,
		Text:    s.greeting,
		At:      s.clock().UTC(),
	})
	return nil
}

func (s *NopSession) Stop() {}

func (s *NopSession) Transcript() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}
