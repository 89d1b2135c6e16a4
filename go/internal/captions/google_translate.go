package captions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GoogleTranslateConfig holds Cloud Translation v2 settings
type GoogleTranslateConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// DefaultGoogleTranslateConfig returns settings for the public endpoint
func DefaultGoogleTranslateConfig() GoogleTranslateConfig {
	return GoogleTranslateConfig{
		BaseURL: "https://translation.googleapis.com/language/translate/v2",
		Timeout: 10 * time.Second,
	}
}

// GoogleTranslator calls the Cloud Translation v2 REST API
type GoogleTranslator struct {
	config     GoogleTranslateConfig
	httpClient *http.Client
}

// NewGoogleTranslator creates a translator using an API key
func NewGoogleTranslator(config GoogleTranslateConfig) *GoogleTranslator {
	if config.BaseURL == "" {
		config.BaseURL = DefaultGoogleTranslateConfig().BaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultGoogleTranslateConfig().Timeout
	}
	return &GoogleTranslator{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

type translateRequest struct {
	Q      []string `json:"q"`
	Target string   `json:"target"`
	Source string   `json:"source,omitempty"`
	Format string   `json:"format"`
}

type translateResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText string `json:"translatedText"`
		} `json:"translations"`
	} `json:"data"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Translate translates a single text
func (t *GoogleTranslator) Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error) {
	body, err := json.Marshal(translateRequest{
		Q:      []string{text},
		Target: translateLanguage(targetLanguage),
		Source: translateLanguage(sourceLanguage),
		Format: "text",
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal translate request: %w", err)
	}

	endpoint := t.config.BaseURL
	if t.config.APIKey != "" {
		endpoint += "?key=" + url.QueryEscape(t.config.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	var decoded translateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("failed to parse translate response (status %d): %w", resp.StatusCode, err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("translate api error %d: %s", decoded.Error.Code, decoded.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translate api returned status %d", resp.StatusCode)
	}
	if len(decoded.Data.Translations) == 0 {
		return "", fmt.Errorf("translate api returned no translations")
	}
	return decoded.Data.Translations[0].TranslatedText, nil
}

// translateLanguage maps BCP-47 tags such as en-US to the codes v2 accepts.
// Chinese keeps its script region.
func translateLanguage(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	lower := strings.ToLower(code)
	switch {
	case lower == "zh-tw" || lower == "zh-hk" || strings.HasPrefix(lower, "zh-hant"):
		return "zh-TW"
	case strings.HasPrefix(lower, "zh"):
		return "zh-CN"
	}
	if i := strings.IndexByte(lower, '-'); i > 0 {
		return lower[:i]
	}
	return lower
}
