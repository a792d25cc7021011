package msgbus

// MsgType identifies a pipeline message
type MsgType string

// Control requests addressed to one element by name
const (
	MsgStartElement  MsgType = "START_ELEMENT"
	MsgPauseElement  MsgType = "PAUSE_ELEMENT"
	MsgResumeElement MsgType = "RESUME_ELEMENT"
	MsgStopElement   MsgType = "STOP_ELEMENT"
)

// Notifications
const (
	MsgAddElement       MsgType = "ADD_ELEMENT"
	MsgRemoveElement    MsgType = "REMOVE_ELEMENT"
	MsgAddElementStream MsgType = "ADD_ELEMENT_STREAM"
	MsgDelElementStream MsgType = "DEL_ELEMENT_STREAM"
	MsgRunState         MsgType = "RUN_STATE"
	MsgPlayProgress     MsgType = "PLAY_PROGRESS"
	MsgVideoStreamStats MsgType = "VIDEO_STREAM_STATS"
	MsgAudioStreamStats MsgType = "AUDIO_STREAM_STATS"
	MsgNegotiateFailed  MsgType = "NEGOTIATE_FAILED"
)

// StreamRole tells whether an element pin produces or consumes a stream
type StreamRole string

// Stream roles
const (
	StreamProducer StreamRole = "producer"
	StreamConsumer StreamRole = "consumer"
)

// ElementStream is the payload of ADD_ELEMENT_STREAM and DEL_ELEMENT_STREAM
type ElementStream struct {
	StreamID string     `json:"stream_id"`
	Element  string     `json:"element"`
	Pin      string     `json:"pin"`
	Role     StreamRole `json:"role"`
}

// ElementEvent is the payload of ADD_ELEMENT and REMOVE_ELEMENT
type ElementEvent struct {
	Element   string `json:"element"`
	Component string `json:"component"`
}

// RunState is the payload of RUN_STATE
type RunState struct {
	Pipeline string `json:"pipeline"`
	State    string `json:"state"`
}

// PlayProgress is the payload of PLAY_PROGRESS
type PlayProgress struct {
	Element  string `json:"element"`
	Position int64  `json:"position_ms"`
	Duration int64  `json:"duration_ms"`
}

// StreamStats is the payload of VIDEO_STREAM_STATS and AUDIO_STREAM_STATS
type StreamStats struct {
	Element  string  `json:"element"`
	StreamID string  `json:"stream_id"`
	Frames   uint64  `json:"frames"`
	Bytes    uint64  `json:"bytes"`
	Rate     float64 `json:"rate"`
}

// NegotiateFailure is the payload of NEGOTIATE_FAILED
type NegotiateFailure struct {
	Element string `json:"element"`
	Pin     string `json:"pin"`
	Reason  string `json:"reason"`
}
