// Package chat contains the read-only Twitch chat side of the monitor.
//
// It provides:
//   - Plan: splits a resolved channel list into contiguous fixed-size batches.
//   - Filter and Message: the compiled match pattern shared by every watcher
//     and the immutable value produced for each matching chat line.
//   - Session: the chat transport contract (connect, join, next event,
//     reconnect), implemented by TwitchSession on top of go-twitch-irc with
//     an anonymous justinfan login.
//   - Watcher: owns one Session for one Batch, filters inbound chat lines and
//     forwards matches to a Sink. Transport failures and server RECONNECT
//     directives are recovered locally with bounded exponential backoff; every
//     other failure terminates only that watcher.
package chat
