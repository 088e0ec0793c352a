package stt

import "context"

// Provider turns a farmer's voice note into text. language is a BCP-47
// hint; empty picks the Darja-appropriate default.
type Provider interface {
	Transcribe(ctx context.Context, audio []byte, language string) (text string, confidence float64, err error)
	Close() error
}
