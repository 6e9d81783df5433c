// Package script delivers events to a sandboxed Lua script.
//
// Each event category maps to a global callback:
//
//	input(tbl)                  IO events
//	clock_pulse(stamp, count)   TIMER events; CLOCK holds the last stamp
//	video_event(id, tbl)        VIDEO events
//	audio_event(id, tbl)        AUDIO events
//	frameserver_event(id, tbl)  FRAMESERVER events
//	external_event(id, tbl)     EXTERNAL events
//	net_event(id, tbl)          NET events
//	system_event(tbl)           SYSTEM events
//	target_event(tbl)           TARGET events
//
// Scripts may call target_input(id, tbl) to send an IO event described by
// tbl to a frameserver, and shutdown() to stop the engine.
package script
