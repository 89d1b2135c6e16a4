package captions

import (
	"context"
	"errors"
)

var (
	ErrNoRecognizer    = errors.New("speech recognition is not configured")
	ErrNoTranslator    = errors.New("translation is not configured")
	ErrInvalidRequest  = errors.New("translation requires text and a target language")
	ErrStreamClosed    = errors.New("recognition stream is closed")
	ErrStreamSaturated = errors.New("recognition stream send queue is full")
	ErrTranslationBusy = errors.New("too many translations in flight for this connection")
)

// StreamConfig describes the audio a recognition stream will receive
type StreamConfig struct {
	Language        string
	Encoding        string
	SampleRateHertz int
}

// Transcript is one recognition result
type Transcript struct {
	Text    string
	IsFinal bool
}

// Recognizer opens streaming speech recognition sessions
type Recognizer interface {
	Open(ctx context.Context, cfg StreamConfig) (RecognitionStream, error)
}

// RecognitionStream is one upstream recognition session. Results is closed when
// the stream ends; Err then reports why, or nil after a clean Close.
type RecognitionStream interface {
	Send(chunk []byte) error
	Results() <-chan Transcript
	Err() error
	Close() error
}

// Translator performs one-shot text translation
type Translator interface {
	Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error)
}
