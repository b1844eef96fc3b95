// Package notification is the notification dispatch engine.
//
// Components register typed actions (sound, popup, log, command, vibrate)
// against named event types. Firing an event runs every enabled action
// through the handler installed for its kind. The registry persists its
// state to a store.Store and reconciles persisted user customizations with
// the defaults the code ships.
//
// Two fan-out paths exist and they treat failures differently:
//   - handler dispatch recovers errors and panics per action and continues
//   - change listeners run synchronously and are not recovered
//
// A Service buffers fired notifications until flush_threshold distinct
// handler kinds (vibrate not counted) are installed, then dispatches the
// backlog in firing order and never buffers again.
package notification
