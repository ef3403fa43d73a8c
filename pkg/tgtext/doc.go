// Package tgtext holds text helpers for Telegram-bound messages.
//
// Telegram rejects messages over 4096 characters, so long bodies are cut
// into segments with Split and numbered with PartPrefix. The HTML helpers
// produce text that is safe to send with ParseMode="HTML".
package tgtext
