package captions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/seandavisproductions/teacher-toolkit/go/internal/events"
	"github.com/seandavisproductions/teacher-toolkit/go/internal/room"
)

// Notifier delivers pipeline output to members
type Notifier interface {
	Broadcast(code string, event *events.Event)
	Unicast(m room.Member, event *events.Event) bool
}

// Config holds caption pipeline settings
type Config struct {
	DefaultLanguage  string
	Encoding         string
	SampleRateHertz  int
	TranslateTimeout time.Duration
	// MaxTranslations caps concurrent translation calls per connection
	MaxTranslations int
}

// DefaultConfig returns LINEAR16 16 kHz audio in en-US
func DefaultConfig() Config {
	return Config{
		DefaultLanguage:  "en-US",
		Encoding:         "linear16",
		SampleRateHertz:  16000,
		TranslateTimeout: 10 * time.Second,
		MaxTranslations:  2,
	}
}

// Pipeline coordinates one recognition stream per presenter connection
type Pipeline struct {
	recognizer Recognizer
	translator Translator
	out        Notifier
	config     Config

	mu           sync.Mutex
	streams      map[room.Member]*activeStream
	translations map[room.Member]int
}

type activeStream struct {
	member   room.Member
	code     string
	language string
	stream   RecognitionStream

	mu       sync.Mutex
	closed   bool
	lastText string
}

// Status describes caption activity in a session
type Status struct {
	Streaming bool   `json:"streaming"`
	Language  string `json:"language,omitempty"`
	LastText  string `json:"lastText,omitempty"`
}

var droppedChunkSampler = &zerolog.BasicSampler{N: 50}

// NewPipeline creates a caption pipeline. Either backend may be nil, in which case
// the matching operations report a pipeline error.
func NewPipeline(recognizer Recognizer, translator Translator, out Notifier, config Config) *Pipeline {
	if config.DefaultLanguage == "" {
		config.DefaultLanguage = "en-US"
	}
	if config.Encoding == "" {
		config.Encoding = "linear16"
	}
	if config.SampleRateHertz == 0 {
		config.SampleRateHertz = 16000
	}
	if config.TranslateTimeout <= 0 {
		config.TranslateTimeout = 10 * time.Second
	}
	if config.MaxTranslations <= 0 {
		config.MaxTranslations = 2
	}
	return &Pipeline{
		recognizer:   recognizer,
		translator:   translator,
		out:          out,
		config:       config,
		streams:      make(map[room.Member]*activeStream),
		translations: make(map[room.Member]int),
	}
}

// StartStream opens a recognition stream for the member, replacing any existing one
func (p *Pipeline) StartStream(ctx context.Context, m room.Member, code, language string) error {
	p.StopStream(m)

	if p.recognizer == nil {
		p.out.Unicast(m, events.PipelineError(code, "Speech recognition is not available."))
		return ErrNoRecognizer
	}
	if language == "" {
		language = p.config.DefaultLanguage
	}

	stream, err := p.recognizer.Open(ctx, StreamConfig{
		Language:        language,
		Encoding:        p.config.Encoding,
		SampleRateHertz: p.config.SampleRateHertz,
	})
	if err != nil {
		metricRecognitionErrors.Inc()
		log.Error().Err(err).Str("session_code", code).Str("connection_id", m.ID()).Msg("failed to open recognition stream")
		p.out.Unicast(m, events.PipelineError(code, "Speech recognition error."))
		return fmt.Errorf("failed to open recognition stream: %w", err)
	}

	as := &activeStream{member: m, code: code, language: language, stream: stream}

	p.mu.Lock()
	prev := p.streams[m]
	p.streams[m] = as
	p.mu.Unlock()
	if prev != nil {
		prev.close()
	}

	gaugeStreams.Inc()
	go p.forward(as)

	log.Info().
		Str("session_code", code).
		Str("connection_id", m.ID()).
		Str("language", language).
		Msg("caption stream started")
	return nil
}

// PushAudio forwards a chunk to the member's active stream. It reports false when
// the chunk was dropped.
func (p *Pipeline) PushAudio(m room.Member, chunk []byte) bool {
	p.mu.Lock()
	as := p.streams[m]
	p.mu.Unlock()

	if as == nil {
		metricDroppedChunks.Inc()
		sampled := log.Sample(droppedChunkSampler)
		sampled.Warn().Str("connection_id", m.ID()).Int("bytes", len(chunk)).Msg("audio chunk without active caption stream, dropped")
		return false
	}

	if err := as.stream.Send(chunk); err != nil {
		metricDroppedChunks.Inc()
		sampled := log.Sample(droppedChunkSampler)
		sampled.Warn().Err(err).Str("session_code", as.code).Str("connection_id", m.ID()).Msg("failed to forward audio chunk")
		return false
	}
	metricAudioBytes.Add(float64(len(chunk)))
	return true
}

// StopStream closes the member's stream if there is one
func (p *Pipeline) StopStream(m room.Member) {
	p.mu.Lock()
	as := p.streams[m]
	delete(p.streams, m)
	p.mu.Unlock()

	if as == nil {
		return
	}
	as.close()
	log.Info().Str("session_code", as.code).Str("connection_id", m.ID()).Msg("caption stream stopped")
}

// RequestTranslation translates text for one member and unicasts the result
func (p *Pipeline) RequestTranslation(ctx context.Context, m room.Member, code, text, source, target string) error {
	if text == "" || target == "" {
		log.Warn().Str("session_code", code).Str("connection_id", m.ID()).Msg("invalid translation request")
		return ErrInvalidRequest
	}
	if p.translator == nil {
		p.out.Unicast(m, events.PipelineError(code, "Translation is not available."))
		return ErrNoTranslator
	}
	if !p.acquireTranslation(m) {
		metricTranslationsRejected.Inc()
		log.Warn().Str("session_code", code).Str("connection_id", m.ID()).Msg("translation rejected, too many in flight")
		p.out.Unicast(m, events.PipelineError(code, "Too many translation requests."))
		return ErrTranslationBusy
	}
	defer p.releaseTranslation(m)

	if source == "" {
		source = p.languageFor(code)
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.TranslateTimeout)
	defer cancel()

	start := time.Now()
	translated, err := p.translator.Translate(ctx, text, source, target)
	metricTranslationLatency.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metricTranslationErrors.Inc()
		log.Error().Err(err).
			Str("session_code", code).
			Str("connection_id", m.ID()).
			Str("target_language", target).
			Msg("translation failed")
		p.out.Unicast(m, events.PipelineError(code, "Translation service error."))
		return fmt.Errorf("failed to translate: %w", err)
	}

	p.out.Unicast(m, events.TranslationResult(code, events.TranslationResultPayload{
		Text:           translated,
		SourceText:     text,
		SourceLanguage: source,
		TargetLanguage: target,
	}))
	return nil
}

func (p *Pipeline) acquireTranslation(m room.Member) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.translations[m] >= p.config.MaxTranslations {
		return false
	}
	p.translations[m]++
	return true
}

func (p *Pipeline) releaseTranslation(m room.Member) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.translations[m] <= 1 {
		delete(p.translations, m)
		return
	}
	p.translations[m]--
}

// Status reports caption activity for a session
func (p *Pipeline) Status(code string) Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, as := range p.streams {
		if as.code != code {
			continue
		}
		as.mu.Lock()
		st := Status{Streaming: true, Language: as.language, LastText: as.lastText}
		as.mu.Unlock()
		return st
	}
	return Status{}
}

// Active reports whether the member has an open stream
func (p *Pipeline) Active(m room.Member) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.streams[m]
	return ok
}

// Close tears down every stream
func (p *Pipeline) Close() {
	p.mu.Lock()
	streams := p.streams
	p.streams = make(map[room.Member]*activeStream)
	p.mu.Unlock()

	for _, as := range streams {
		as.close()
	}
}

func (p *Pipeline) languageFor(code string) string {
	if st := p.Status(code); st.Language != "" {
		return st.Language
	}
	return p.config.DefaultLanguage
}

func (p *Pipeline) forward(as *activeStream) {
	for t := range as.stream.Results() {
		as.mu.Lock()
		if as.closed {
			as.mu.Unlock()
			continue
		}
		if t.Text != "" {
			as.lastText = t.Text
		}
		ev := events.Caption(as.code, events.CaptionPayload{
			Text:           t.Text,
			SourceLanguage: as.language,
			IsFinal:        t.IsFinal,
		})
		if !t.IsFinal {
			ev.WithTransient()
		}
		p.out.Broadcast(as.code, ev)
		as.mu.Unlock()
		metricCaptions.WithLabelValues(finalLabel(t.IsFinal)).Inc()
	}

	err := as.stream.Err()

	p.mu.Lock()
	current := p.streams[as.member] == as
	if current {
		delete(p.streams, as.member)
	}
	p.mu.Unlock()

	if !current {
		return
	}
	as.close()

	if err != nil && !errors.Is(err, context.Canceled) {
		metricRecognitionErrors.Inc()
		log.Error().Err(err).Str("session_code", as.code).Str("connection_id", as.member.ID()).Msg("recognition stream failed")
		p.out.Unicast(as.member, events.PipelineError(as.code, "Speech recognition error."))
		return
	}
	log.Info().Str("session_code", as.code).Str("connection_id", as.member.ID()).Msg("recognition stream ended")
}

func (as *activeStream) close() {
	as.mu.Lock()
	if as.closed {
		as.mu.Unlock()
		return
	}
	as.closed = true
	as.mu.Unlock()

	gaugeStreams.Dec()
	if err := as.stream.Close(); err != nil {
		log.Debug().Err(err).Str("session_code", as.code).Msg("error closing recognition stream")
	}
}

func finalLabel(final bool) string {
	if final {
		return "final"
	}
	return "interim"
}
