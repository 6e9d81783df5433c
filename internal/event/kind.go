package event

// Kind is the sub-classification of an event. Its meaning is scoped by the
// event category; the same numeric kind means different things in different
// categories.
type Kind uint32

// System kinds.
const (
	SystemExit Kind = iota
	SystemVideoFail
	SystemAudioFail
	SystemIOFail
	SystemMemoryFail
	SystemInactivate
	SystemActivate
	SystemLaunchExternal
	SystemCleanupExternal
	SystemEvalCmd
)

// IO kinds.
const (
	IOButtonPress Kind = iota
	IOButtonRelease
	IOKeybPress
	IOKeybRelease
	IOAxisMove
)

// Timer kinds.
const (
	TimerPulse Kind = iota
)

// Video kinds.
const (
	VideoExpire Kind = iota
	VideoScaled
	VideoMoved
	VideoBlended
	VideoRotated
	VideoAsyncImageLoaded
	VideoAsyncImageLoadFailed
)

// Audio kinds.
const (
	AudioPlaybackFinished Kind = iota
	AudioPlaybackAborted
	AudioBufferUnderrun
	AudioPitchTransformationFinished
	AudioGainTransformationFinished
	AudioObjectGone
	AudioInvalidObjectReferenced
)

// Frameserver kinds.
const (
	FrameserverResized Kind = iota
	FrameserverTerminated
	FrameserverLooped
	FrameserverVideoSourceFound
	FrameserverVideoSourceLost
	FrameserverAudioSourceFound
	FrameserverAudioSourceLost
)

// External kinds.
const (
	ExternalNoticeMessage Kind = iota
	ExternalNoticeFailure
	ExternalNoticeNewFrame
	ExternalNoticeStateSize
)

// Net kinds.
const (
	NetConnected Kind = iota
	NetDisconnected
	NetNoResponse
	NetCustomMsg
	NetInputEvent
)

// KindMask selects kinds for masked polling. Bit n selects kind n.
type KindMask uint64

// AllKinds matches every kind, including kinds beyond the mask width.
const AllKinds KindMask = ^KindMask(0)

// KindBit returns the mask selecting kind k.
func KindBit(k Kind) KindMask {
	if k >= 64 {
		return 0
	}
	return 1 << k
}

// KindBits returns the mask selecting all of ks.
func KindBits(ks ...Kind) KindMask {
	var m KindMask
	for _, k := range ks {
		m |= KindBit(k)
	}
	return m
}

// Matches reports whether k is selected by the mask.
func (m KindMask) Matches(k Kind) bool {
	if m == AllKinds {
		return true
	}
	return m&KindBit(k) != 0
}

var kindNames = map[Category][]string{
	CategorySystem: {"exit", "video_fail", "audio_fail", "io_fail", "memory_fail",
		"inactivate", "activate", "launch_external", "cleanup_external", "evalcmd"},
	CategoryIO:    {"button_press", "button_release", "keyb_press", "keyb_release", "axis_move"},
	CategoryTimer: {"pulse"},
	CategoryVideo: {"expire", "scaled", "moved", "blended", "rotated",
		"asyncimage_loaded", "asyncimage_load_failed"},
	CategoryAudio: {"playback_finished", "playback_aborted", "buffer_underrun",
		"pitch_transformation_finished", "gain_transformation_finished",
		"object_gone", "invalid_object_referenced"},
	CategoryTarget: {"exit", "fdtransfer", "frameskip", "stepframe", "store", "restore",
		"reset", "pause", "unpause", "setiodev", "vector_linewidth", "vector_pointsize",
		"ntscfilter", "ntscfilter_args"},
	CategoryFrameserver: {"resized", "terminated", "looped", "videosource_found",
		"videosource_lost", "audiosource_found", "audiosource_lost"},
	CategoryExternal: {"message", "failure", "newframe", "statesize"},
	CategoryNet:      {"connected", "disconnected", "noresponse", "custommsg", "inputevent"},
}

// KindName returns a readable name for kind k within category c.
func KindName(c Category, k Kind) string {
	names := kindNames[c]
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}
