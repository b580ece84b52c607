// Package whisper provides a Recognizer backed by a running whisper.cpp
// server, accessed over its REST API rather than via cgo bindings.
//
// NeuralBackend performs no buffering or segmentation of its own: the
// SegmentScheduler is the sole authority on when a window is ready, and
// NeuralBackend's only job is turning one window into one Hypothesis. Each
// call is conditioned on the previously committed text via the server's
// initial_prompt parameter.
package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/MrWong99/streamstt/internal/core"
)

const (
	bitsPerSample  = 16
	defaultTimeout = 30 * time.Second
)

// Option is a functional option for configuring a NeuralBackend.
type Option func(*NeuralBackend)

// WithModel sets the model identifier forwarded to the whisper.cpp server.
// When empty the server uses whichever model it was started with.
func WithModel(model string) Option {
	return func(n *NeuralBackend) { n.model = model }
}

// WithLanguage sets the BCP-47 language code sent to the server. Defaults to
// "en".
func WithLanguage(lang string) Option {
	return func(n *NeuralBackend) { n.language = lang }
}

// WithHTTPClient overrides the http.Client used for requests. Defaults to a
// client with a 30 second timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(n *NeuralBackend) { n.httpClient = client }
}

// NeuralBackend implements core.Recognizer by POSTing each window to a
// whisper.cpp server's /inference endpoint with word-level timestamps
// requested, translating the server's verbose_json response into a
// core.Hypothesis.
//
// NeuralBackend is safe for concurrent use; it holds no per-call mutable
// state.
type NeuralBackend struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

var _ core.Recognizer = (*NeuralBackend)(nil)

// New returns a NeuralBackend that talks to the whisper.cpp server at
// serverURL (e.g. "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*NeuralBackend, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	n := &NeuralBackend{
		serverURL:  serverURL,
		language:   "en",
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// Load is a no-op: the server process manages its own model lifecycle
// independently of any one recognition session.
func (n *NeuralBackend) Load(ctx context.Context) error { return nil }

// Unload is a no-op, mirroring Load.
func (n *NeuralBackend) Unload(ctx context.Context) error { return nil }

// Transcribe encodes samples as a 16-bit PCM WAV file and POSTs it to the
// server's /inference endpoint as multipart/form-data, requesting
// verbose_json output with word-level timestamps. initialPrompt, if
// non-empty, is forwarded as the server's initial_prompt field to bias the
// model toward continuity with already-committed text.
func (n *NeuralBackend) Transcribe(ctx context.Context, samples []float32, initialPrompt string) (core.Hypothesis, error) {
	wav := encodeWAV(samples)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, fmt.Errorf("whisper: write wav data: %w", err)
	}

	_ = mw.WriteField("response_format", "verbose_json")
	_ = mw.WriteField("word_timestamps", "true")
	if n.language != "" {
		_ = mw.WriteField("language", n.language)
	}
	if n.model != "" {
		_ = mw.WriteField("model", n.model)
	}
	if initialPrompt != "" {
		_ = mw.WriteField("initial_prompt", initialPrompt)
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	endpoint := n.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whisper: read response body: %w", err)
	}

	return parseVerboseJSON(data)
}

// verboseJSONResponse mirrors the subset of whisper.cpp's verbose_json
// response this backend consumes.
type verboseJSONResponse struct {
	Segments []struct {
		Words []struct {
			Word  string  `json:"word"`
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		} `json:"words"`
	} `json:"segments"`
}

func parseVerboseJSON(data []byte) (core.Hypothesis, error) {
	var resp verboseJSONResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	var hyp core.Hypothesis
	for _, seg := range resp.Segments {
		for _, w := range seg.Words {
			hyp = append(hyp, core.Word{Text: w.Word, Start: w.Start, End: w.End})
		}
	}
	return hyp, nil
}

// encodeWAV wraps float32 samples normalized to [-1, 1] in a standard
// 16-bit mono 16kHz RIFF/WAV container.
func encodeWAV(samples []float32) []byte {
	const (
		sampleRate = core.SR
		channels   = 1
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(samples) * 2

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bitsPerSample))

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i, s := range samples {
		v := int16(s * 32768.0)
		binary.LittleEndian.PutUint16(buf[44+i*2:46+i*2], uint16(v))
	}

	return buf
}
