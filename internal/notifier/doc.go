// Package notifier delivers an ordered list of message segments to one chat.
//
// Segments are sent sequentially through a transport.Sender. When more than
// one segment is sent, each is prefixed with a "(Part i/total)" marker.
// Consecutive sends are paced by a token bucket so the chat stays under
// Telegram's per-chat flood limits.
//
// A failed segment is logged and delivery moves on to the next one; the
// caller receives a Report and decides what a partial delivery means.
package notifier
