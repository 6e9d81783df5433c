// Package engine runs the per-tick loop around the main event context.
//
// Each step advances the main context's timebase and enqueues one TIMER
// pulse per elapsed tick, moves events from every registered frameserver
// route into the main context, and then drains the main context into a
// Dispatcher. Dispatched events can also be appended to a Journal.
//
//	loop := engine.New(main, dispatcher, engine.WithLogger(logger))
//	loop.AddRoute(engine.Route{ID: fs.ID, From: fs.Out,
//		Allowed: event.CategoryFrameserver | event.CategoryExternal,
//		Saturation: 0.5, Source: fs.Object})
//	err := loop.Run(ctx)
//
// Routes whose context has been closed or orphaned are dropped on the next
// step.
package engine
