// Package models locates and fetches faster-whisper model snapshots.
//
// Snapshots follow the Hugging Face cache layout:
//
//	<root>/models--<org>--<name>/snapshots/<revision>/
//
// When no local snapshot exists, Resolve hands back the bare model size so the
// recognizer can fall back to network-backed resolution.
package models
