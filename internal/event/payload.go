package event

import (
	"bytes"
	"math"
)

// DeviceKind identifies the class of input device behind an IO event.
type DeviceKind uint8

const (
	DeviceKeyboard DeviceKind = iota
	DeviceMouse
	DeviceGame
)

// String returns the device kind name.
func (d DeviceKind) String() string {
	switch d {
	case DeviceKeyboard:
		return "keyboard"
	case DeviceMouse:
		return "mouse"
	case DeviceGame:
		return "gamedev"
	default:
		return "unknown"
	}
}

// DataKind identifies the shape of an IO payload.
type DataKind uint8

const (
	DataAnalog DataKind = iota
	DataDigital
	DataTranslated
)

// String returns the data kind name.
func (d DataKind) String() string {
	switch d {
	case DataAnalog:
		return "analog"
	case DataDigital:
		return "digital"
	case DataTranslated:
		return "translated"
	default:
		return "unknown"
	}
}

// MaxAxisValues is the number of samples an analog event can carry.
const MaxAxisValues = 4

// IO is an input device event.
type IO struct {
	Device DeviceKind
	Input  IOInput
}

// IOInput is one of Digital, Analog or Translated.
type IOInput interface {
	DataKind() DataKind
	isIOInput()
}

// Digital is a button press or release.
type Digital struct {
	DevID  uint8
	SubID  uint8
	Active bool
}

// Analog carries up to MaxAxisValues axis samples.
type Analog struct {
	// Relative is set when the values are deltas rather than absolute positions.
	Relative bool
	DevID    uint8
	SubID    uint8
	IDCount  uint8
	NValues  uint8
	Values   [MaxAxisValues]int16
}

// Samples returns the populated axis values.
func (a Analog) Samples() []int16 {
	n := int(a.NValues)
	if n > MaxAxisValues {
		n = MaxAxisValues
	}
	return a.Values[:n]
}

// Translated is a keyboard event with a resolved symbol.
type Translated struct {
	Active    bool
	DevID     uint8
	SubID     uint16
	Keysym    uint16
	Modifiers uint16
	Scancode  uint8
}

func (Digital) DataKind() DataKind    { return DataDigital }
func (Analog) DataKind() DataKind     { return DataAnalog }
func (Translated) DataKind() DataKind { return DataTranslated }

func (Digital) isIOInput()    {}
func (Analog) isIOInput()     {}
func (Translated) isIOInput() {}

// Constraints are the size and format limits of a visual object.
type Constraints struct {
	Width  int32
	Height int32
	BPP    uint8
}

// Vec3 is a three component vector.
type Vec3 struct {
	X, Y, Z float32
}

// Rotation is an orientation in degrees.
type Rotation struct {
	Roll, Pitch, Yaw float32
}

// SurfaceProps are the resolved properties of a visual object.
type SurfaceProps struct {
	Position Vec3
	Scale    Vec3
	Rotation Rotation
	Opacity  float32
}

// Video is a visual object lifecycle event.
type Video struct {
	Source      ObjectID
	Constraints Constraints
	Props       SurfaceProps
	// Tag is an opaque correlation value chosen by the producer.
	Tag int64
}

// Audio is an audio object lifecycle event.
type Audio struct {
	Source ObjectID
	// Data is an opaque local payload. It is not serialized; releasing it is
	// the dispatcher's responsibility.
	Data any
}

// System is an engine-level notice.
type System struct {
	// ErrCode mirrors the platform error number where applicable.
	ErrCode int32
	Data    SystemData
}

// SystemData is either Tags or *Message.
type SystemData interface {
	isSystemData()
}

// Tags is a pair of opaque 64-bit values.
type Tags struct {
	Hi, Lo int64
}

func (Tags) isSystemData()     {}
func (*Message) isSystemData() {}

// Timer is a clock pulse.
type Timer struct {
	Pulse int64
}

// TargetCommand is a command sent to a frameserver.
type TargetCommand uint32

const (
	TargetExit TargetCommand = iota
	TargetFDTransfer
	TargetFrameskip
	TargetStepFrame
	TargetStore
	TargetRestore
	TargetReset
	TargetPause
	TargetUnpause
	TargetSetIODev
	TargetVectorLineWidth
	TargetVectorPointSize
	TargetNTSCFilter
	TargetNTSCFilterArgs
)

// Frameskip modes carried in the first argument of TargetFrameskip.
const (
	SkipAuto int32 = 0
	SkipNone int32 = -1
	SkipStep int32 = 1
)

// MaxTargetArgs is the number of argument slots of a target command.
const MaxTargetArgs = 4

// TargetArg is an argument slot holding either an int32 or a float32.
type TargetArg uint32

// IntArg stores an integer argument.
func IntArg(v int32) TargetArg { return TargetArg(uint32(v)) }

// FloatArg stores a float argument.
func FloatArg(v float32) TargetArg { return TargetArg(math.Float32bits(v)) }

// Int interprets the slot as an integer.
func (a TargetArg) Int() int32 { return int32(a) }

// Float interprets the slot as a float.
func (a TargetArg) Float() float32 { return math.Float32frombits(uint32(a)) }

// Target is a command for a frameserver.
type Target struct {
	Command TargetCommand
	Args    [MaxTargetArgs]TargetArg
	// Handle is an optional OS handle accompanying TargetFDTransfer. It is
	// local to the process and never serialized.
	Handle uintptr
}

// Frameserver is a status update from a frameserver.
type Frameserver struct {
	Video  ObjectID
	Audio  ObjectID
	Width  int32
	Height int32

	ABuffers     uint32
	VBuffers     uint32
	ABufferLimit uint32
	VBufferLimit uint32

	// GLSource is set when the backing store is GPU resident.
	GLSource bool
	Tag      int64
}

// External is a notice emitted by an external program.
type External struct {
	Source ObjectID
	Data   ExternalData
}

// ExternalData is one of ExternalMessage, StateSize, StatusCode or FrameNumber.
type ExternalData interface {
	isExternalData()
}

// ExternalMessageSize is the size of an external message.
const ExternalMessageSize = 24

// ExternalMessage is a short fixed-size text message.
type ExternalMessage [ExternalMessageSize]byte

// NewExternalMessage builds a message from s, truncating if needed.
func NewExternalMessage(s string) ExternalMessage {
	var m ExternalMessage
	copy(m[:], s)
	return m
}

// String returns the text up to the first NUL byte.
func (m ExternalMessage) String() string {
	return cstring(m[:])
}

// StateSize announces the size of a state snapshot.
type StateSize int32

// StatusCode is a failure or status code.
type StatusCode uint32

// FrameNumber announces a new frame.
type FrameNumber uint32

func (ExternalMessage) isExternalData() {}
func (StateSize) isExternalData()       {}
func (StatusCode) isExternalData()      {}
func (FrameNumber) isExternalData()     {}

// Net is a network connection event.
type Net struct {
	Source ObjectID
	ConnID uint32
	Addr   NetAddr
}

// NetAddr is either a HostAddr or a ConnHandle.
type NetAddr interface {
	isNetAddr()
}

// HostAddrSize fits the longest textual IPv6 address.
const HostAddrSize = 40

// HostAddr is a textual host address.
type HostAddr [HostAddrSize]byte

// NewHostAddr builds a host address from s, truncating if needed.
func NewHostAddr(s string) HostAddr {
	var h HostAddr
	copy(h[:], s)
	return h
}

// String returns the text up to the first NUL byte.
func (h HostAddr) String() string {
	return cstring(h[:])
}

// ConnHandle is an opaque connection handle.
type ConnHandle [4]byte

func (HostAddr) isNetAddr()   {}
func (ConnHandle) isNetAddr() {}

func (IO) Category() Category          { return CategoryIO }
func (Video) Category() Category       { return CategoryVideo }
func (Audio) Category() Category       { return CategoryAudio }
func (System) Category() Category      { return CategorySystem }
func (Timer) Category() Category       { return CategoryTimer }
func (Target) Category() Category      { return CategoryTarget }
func (Frameserver) Category() Category { return CategoryFrameserver }
func (External) Category() Category    { return CategoryExternal }
func (Net) Category() Category         { return CategoryNet }

func (IO) isPayload()          {}
func (Video) isPayload()       {}
func (Audio) isPayload()       {}
func (System) isPayload()      {}
func (Timer) isPayload()       {}
func (Target) isPayload()      {}
func (Frameserver) isPayload() {}
func (External) isPayload()    {}
func (Net) isPayload()         {}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
