package models

import (
	"time"
)

// Mode is the lifecycle state of a voice session's current episode.
type Mode string

const (
	ModeIdle       Mode = "idle"       // waiting for a trigger phrase
	ModeRecording  Mode = "recording"  // accumulating transcript segments
	ModeProcessing Mode = "processing" // episode handed off for commit
)

// IntentType identifies which outbound action a trigger phrase selects.
type IntentType string

const (
	IntentUnset   IntentType = ""
	IntentMessage IntentType = "message"
	IntentTask    IntentType = "task"
	IntentEvent   IntentType = "event"
)

// VoiceSession is the unit of in-flight voice-command state for one
// conversation/device stream. A session is created lazily on the first inbound
// segment and recycles through idle -> recording -> processing -> idle for
// every episode; it is never destroyed in normal operation.
type VoiceSession struct {
	SessionID string // caller-supplied, or synthesized from the owner uid
	OwnerID   string // authenticated user this session acts on behalf of

	Mode       Mode
	IntentType IntentType // fixed for the lifetime of one recording episode

	// AccumulatedText and SegmentCount are reset together, atomically,
	// whenever Mode returns to idle.
	AccumulatedText string
	SegmentCount    int

	LastActivityAt time.Time // drives idle-timeout detection
	CreatedAt      time.Time
}

// IdleFor returns how long the session has gone without a segment fold.
func (s *VoiceSession) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivityAt)
}
