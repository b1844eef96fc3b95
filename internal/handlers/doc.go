// Package handlers provides host-side implementations of the five
// notification action handlers.
//
// Each handler gates itself on its own enabled flag: a disabled handler
// accepts calls and does nothing. Long-running work (sound loops, vibrate
// patterns, commands, popup delivery) runs on a supervisor so it can be
// stopped as a group at shutdown.
//
// Handlers report what they do on an optional event bus, under the topics
// declared in this package. Subscribers must not rely on delivery; the bus
// drops events for slow readers.
package handlers
