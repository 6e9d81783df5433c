// Package frameserver launches and tracks frameserver child processes.
//
// A frameserver shares two event rings with its parent: ring 0 carries
// target commands from the parent to the child, ring 1 carries the child's
// events back. Both rings live in one shared memory segment and each is
// guarded by its own eventfd semaphore.
//
// # Parent side
//
// A Registry starts frameservers and watches them exit:
//
//	reg := frameserver.NewRegistry(frameserver.WithLogger(logger))
//	fs, err := reg.Launch(ctx, "decoder", exec.Command("eventq", "frameserver"))
//	...
//	fs.Command(event.TargetStepFrame, event.IntArg(1))
//	n, err := queue.Transfer(main, fs.Out, event.CategoryFrameserver, 0.5, fs.Object)
//
// The parent's contexts are authoritative: when the child holds a ring past
// the queue timeout the context trips a killswitch, a weak handle that kills
// the child if the registry still tracks it.
//
// # Child side
//
// The child rebuilds its contexts from the descriptors it inherited:
//
//	s, err := frameserver.Attach()
//	defer s.Close()
//	s.Out.Enqueue(event.New(event.FrameserverResized, ...))
package frameserver
