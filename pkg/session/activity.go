package session

import (
	"encoding/json"
	"fmt"
)

// VoiceActivity is what the voice pipeline is doing right now. Exactly
// one activity holds at a time; the controller owns all transitions.
type VoiceActivity int

const (
	// ActivityIdle means nothing is happening; the user may talk.
	ActivityIdle VoiceActivity = iota
	// ActivityListening means speech capture is running.
	ActivityListening
	// ActivityProcessing means a user turn was sent and the coach has
	// not responded yet.
	ActivityProcessing
	// ActivitySpeaking means coach audio is playing.
	ActivitySpeaking
)

var activityNames = map[VoiceActivity]string{
	ActivityIdle:       "idle",
	ActivityListening:  "listening",
	ActivityProcessing: "processing",
	ActivitySpeaking:   "speaking",
}

func (a VoiceActivity) String() string {
	if name, ok := activityNames[a]; ok {
		return name
	}
	return fmt.Sprintf("VoiceActivity(%d)", int(a))
}

// MarshalJSON encodes the activity as its string name.
func (a VoiceActivity) MarshalJSON() ([]byte, error) {
	name, ok := activityNames[a]
	if !ok {
		return nil, fmt.Errorf("session: unknown voice activity %d", int(a))
	}
	return json.Marshal(name)
}

// UnmarshalJSON decodes an activity from its string name.
func (a *VoiceActivity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for v, n := range activityNames {
		if n == name {
			*a = v
			return nil
		}
	}
	return fmt.Errorf("session: unknown voice activity %q", name)
}
