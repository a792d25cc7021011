package element

// MainType is the coarse element kind, derived from its pin shape
type MainType string

// Main types
const (
	MainTypeSrc    MainType = "SRC"
	MainTypeFilter MainType = "FILTER"
	MainTypeSink   MainType = "SINK"
)

// Role is the function an element plays in a media chain
type Role string

// Roles
const (
	RoleCapturer  Role = "CAPTURER"
	RoleDecoder   Role = "DECODER"
	RoleConverter Role = "CONVERTER"
	RoleEncoder   Role = "ENCODER"
	RoleMuxer     Role = "MUXER"
	RoleDemuxer   Role = "DEMUXER"
	RoleMixer     Role = "MIXER"
	RolePlayer    Role = "PLAYER"
	RoleSender    Role = "SENDER"
	RoleReceiver  Role = "RECEIVER"
	RoleProxy     Role = "PROXY"
	RoleTester    Role = "TESTER"
)

// State is the element lifecycle state
type State string

// Lifecycle states
const (
	StateCreated State = "CREATED"
	StateInited  State = "INITED"
	StateRunning State = "RUNNING"
	StatePaused  State = "PAUSED"
	StateStopped State = "STOPPED"
)

// lifecycle events
const (
	eventInit   = "init"
	eventStart  = "start"
	eventPause  = "pause"
	eventResume = "resume"
	eventStop   = "stop"
)
