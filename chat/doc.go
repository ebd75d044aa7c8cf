// Package chat connects the bus to Twitch chat.
//
// Ingest joins the configured channel over IRC and publishes every received
// line as an event.ChatMessage. The sender's badges become role flags.
// Without a bot username and OAuth token the client joins anonymously,
// which is read-only but enough to drive commands.
//
// Recorder is an optional bus consumer that persists every chat line and
// every command outcome into Postgres (see package db).
package chat
