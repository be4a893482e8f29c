// Package speech talks to the OpenAI speech endpoints on behalf of the browser.
//
// Synthesizer turns assistant text into audio for chat.audio events. Minter
// creates realtime transcription sessions so the browser can stream
// microphone audio without holding the long-lived API key.
//
// Both return ErrNotConfigured from their constructors when no API key is
// set; callers treat that as the feature being off.
package speech
