package captions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// DeepgramConfig holds settings for the Deepgram live transcription API
type DeepgramConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	EndpointingMs     int
	SmartFormat       bool
	DialTimeout       time.Duration
	WriteTimeout      time.Duration
	KeepAliveInterval time.Duration
	SendQueueSize     int
}

// DefaultDeepgramConfig returns settings for the public endpoint
func DefaultDeepgramConfig() DeepgramConfig {
	return DeepgramConfig{
		BaseURL:           "wss://api.deepgram.com/v1/listen",
		Model:             "nova-2",
		EndpointingMs:     300,
		SmartFormat:       true,
		DialTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Second,
		KeepAliveInterval: 8 * time.Second,
		SendQueueSize:     64,
	}
}

// DeepgramRecognizer opens Deepgram live transcription sockets
type DeepgramRecognizer struct {
	config DeepgramConfig
	dialer *websocket.Dialer
}

// NewDeepgramRecognizer creates a recognizer for the given account
func NewDeepgramRecognizer(config DeepgramConfig) *DeepgramRecognizer {
	defaults := DefaultDeepgramConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = defaults.DialTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.KeepAliveInterval <= 0 {
		config.KeepAliveInterval = defaults.KeepAliveInterval
	}
	if config.SendQueueSize <= 0 {
		config.SendQueueSize = defaults.SendQueueSize
	}
	return &DeepgramRecognizer{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.DialTimeout,
		},
	}
}

func (r *DeepgramRecognizer) streamURL(sc StreamConfig) (string, error) {
	u, err := url.Parse(r.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid deepgram url: %w", err)
	}
	q := u.Query()
	q.Set("model", r.config.Model)
	q.Set("language", sc.Language)
	q.Set("encoding", sc.Encoding)
	q.Set("sample_rate", strconv.Itoa(sc.SampleRateHertz))
	q.Set("channels", "1")
	q.Set("interim_results", "true")
	q.Set("smart_format", strconv.FormatBool(r.config.SmartFormat))
	if r.config.EndpointingMs > 0 {
		q.Set("endpointing", strconv.Itoa(r.config.EndpointingMs))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Open dials a new live transcription socket
func (r *DeepgramRecognizer) Open(ctx context.Context, sc StreamConfig) (RecognitionStream, error) {
	target, err := r.streamURL(sc)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if r.config.APIKey != "" {
		header.Set("Authorization", "Token "+r.config.APIKey)
	}

	dialCtx, cancel := context.WithTimeout(ctx, r.config.DialTimeout)
	defer cancel()

	start := time.Now()
	conn, resp, err := r.dialer.DialContext(dialCtx, target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to deepgram (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect to deepgram: %w", err)
	}
	metricRecognizerConnectMS.Observe(float64(time.Since(start).Milliseconds()))

	s := &deepgramStream{
		conn:         conn,
		sendQ:        make(chan []byte, r.config.SendQueueSize),
		results:      make(chan Transcript, 32),
		done:         make(chan struct{}),
		writeTimeout: r.config.WriteTimeout,
		keepAlive:    r.config.KeepAliveInterval,
	}
	go s.readLoop()
	go s.writeLoop()

	log.Debug().Str("language", sc.Language).Str("model", r.config.Model).Msg("deepgram stream opened")
	return s, nil
}

type deepgramStream struct {
	conn    *websocket.Conn
	sendQ   chan []byte
	results chan Transcript
	done    chan struct{}

	writeTimeout time.Duration
	keepAlive    time.Duration

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

var (
	keepAliveMessage   = []byte(`{"type":"KeepAlive"}`)
	closeStreamMessage = []byte(`{"type":"CloseStream"}`)
)

func (s *deepgramStream) Send(chunk []byte) error {
	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}
	select {
	case s.sendQ <- chunk:
		return nil
	case <-s.done:
		return ErrStreamClosed
	default:
		return ErrStreamSaturated
	}
}

func (s *deepgramStream) Results() <-chan Transcript {
	return s.results
}

func (s *deepgramStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *deepgramStream) Close() error {
	s.shutdown()
	return nil
}

func (s *deepgramStream) shutdown() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *deepgramStream) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.shutdown()
}

func (s *deepgramStream) closing() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// deepgramMessage covers the fields of the server messages this stream reads
type deepgramMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type deepgramError struct {
	Description string `json:"description"`
	Message     string `json:"message"`
	Variant     string `json:"variant"`
}

func (s *deepgramStream) readLoop() {
	defer close(s.results)

	// an interim has been delivered and no final has closed it yet
	pending := false

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closing() && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.fail(fmt.Errorf("deepgram read failed: %w", err))
			}
			s.shutdown()
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		transcript, ok, err := parseDeepgramMessage(data)
		if err != nil {
			s.fail(err)
			return
		}
		if !ok || (transcript.Text == "" && !pending) {
			continue
		}

		select {
		case s.results <- transcript:
			pending = !transcript.IsFinal
		case <-s.done:
			return
		}
	}
}

// parseDeepgramMessage extracts a transcript from a server message. ok is false
// for messages that carry no caption text, except empty finals which close an
// utterance.
func parseDeepgramMessage(data []byte) (Transcript, bool, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		log.Debug().Err(err).Msg("ignoring undecodable deepgram message")
		return Transcript{}, false, nil
	}

	switch head.Type {
	case "Results":
		var msg deepgramMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug().Err(err).Msg("ignoring malformed deepgram result")
			return Transcript{}, false, nil
		}
		t := Transcript{IsFinal: msg.IsFinal || msg.SpeechFinal}
		if len(msg.Channel.Alternatives) > 0 {
			t.Text = msg.Channel.Alternatives[0].Transcript
		}
		if t.Text == "" && !t.IsFinal {
			return Transcript{}, false, nil
		}
		return t, true, nil
	case "Error":
		var msg deepgramError
		_ = json.Unmarshal(data, &msg)
		text := msg.Description
		if text == "" {
			text = msg.Message
		}
		return Transcript{}, false, errors.New("deepgram error: " + text)
	default:
		return Transcript{}, false, nil
	}
}

func (s *deepgramStream) writeLoop() {
	ticker := time.NewTicker(s.keepAlive)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, closeStreamMessage); err != nil {
				log.Debug().Err(err).Msg("failed to send deepgram close message")
			}
			return

		case chunk := <-s.sendQ:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				s.fail(fmt.Errorf("deepgram write failed: %w", err))
				return
			}
			ticker.Reset(s.keepAlive)

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, keepAliveMessage); err != nil {
				s.fail(fmt.Errorf("deepgram keepalive failed: %w", err))
				return
			}
		}
	}
}
