// Package termio turns terminal input read through tcell into IO events.
//
// Keys become translated press/release pairs, mouse motion becomes an
// absolute analog sample on the mouse device and button mask changes become
// digital press or release events, one per button.
//
//	screen, _ := tcell.NewScreen()
//	screen.Init()
//	defer screen.Fini()
//	p := termio.NewProducer(screen, main, termio.WithLogger(logger))
//	go p.Run(ctx)
package termio
