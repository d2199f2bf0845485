package whisperx

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ContentHash is the hex SHA-256 of raw audio bytes. The server uses it as the job id.
type ContentHash string

func ComputeHash(audio []byte) ContentHash {
	sum := sha256.Sum256(audio)
	return ContentHash(hex.EncodeToString(sum[:]))
}

func HashFile(path string) (ContentHash, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}

	return ComputeHash(data), data, nil
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusDone:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown job status %q", s)
	}
}

type JobHandle struct {
	Hash     ContentHash
	Status   Status
	Launched bool
}

type View int

const (
	ViewFull View = iota
	ViewText
	ViewSegments
	ViewWords
)

var AllViews = []View{ViewFull, ViewText, ViewSegments, ViewWords}

func (v View) String() string {
	switch v {
	case ViewFull:
		return "full"
	case ViewText:
		return "text"
	case ViewSegments:
		return "segments"
	case ViewWords:
		return "words"
	default:
		return "unknown"
	}
}

// Dir is the output subfolder a view is persisted into.
func (v View) Dir() string {
	return v.String()
}

func (v View) resultPath(hash ContentHash) string {
	if v == ViewFull {
		return "/result/" + string(hash)
	}

	return "/result/" + string(hash) + "/" + v.String()
}

func ParseView(s string) (View, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "":
		return ViewFull, nil
	case "text":
		return ViewText, nil
	case "segments":
		return ViewSegments, nil
	case "words":
		return ViewWords, nil
	default:
		return 0, fmt.Errorf("unknown result view %q", s)
	}
}

func ParseViews(list string) ([]View, error) {
	if strings.TrimSpace(list) == "" {
		return []View{ViewFull}, nil
	}

	var views []View
	for _, part := range strings.Split(list, ",") {
		view, err := ParseView(part)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}

	return views, nil
}

type Scheme string

const (
	SchemeHTTP  Scheme = "http"
	SchemeHTTPS Scheme = "https"
)

func ParseScheme(s string) (Scheme, error) {
	switch Scheme(strings.ToLower(strings.TrimSpace(s))) {
	case SchemeHTTP, "":
		return SchemeHTTP, nil
	case SchemeHTTPS:
		return SchemeHTTPS, nil
	default:
		return "", fmt.Errorf("unsupported api scheme %q", s)
	}
}

// Span is a time-stamped piece of a transcription. Segments carry Text, words carry Word.
type Span struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text,omitempty"`
	Word  string  `json:"word,omitempty"`
}

// ResultView keeps the server payload verbatim; accessors decode it per view.
type ResultView struct {
	Hash ContentHash
	View View
	Raw  json.RawMessage
}

func (r *ResultView) Text() (string, error) {
	var text string
	if err := json.Unmarshal(r.Raw, &text); err != nil {
		return "", fmt.Errorf("failed to decode text result: %w", err)
	}

	return text, nil
}

func (r *ResultView) Spans() ([]Span, error) {
	var spans []Span
	if err := json.Unmarshal(r.Raw, &spans); err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", r.View, err)
	}

	return spans, nil
}

func (r *ResultView) Mapping() (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(r.Raw, &m); err != nil {
		return nil, fmt.Errorf("failed to decode full result: %w", err)
	}

	return m, nil
}

func (r *ResultView) ContentType() string {
	if r.View == ViewText {
		return "text/plain; charset=utf-8"
	}

	return "application/json"
}

// Encode renders the result the way it is written to disk: raw text for the text view,
// indented JSON otherwise.
func (r *ResultView) Encode() ([]byte, error) {
	if r.View == ViewText {
		text, err := r.Text()
		if err != nil {
			return nil, err
		}
		return []byte(text), nil
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, r.Raw, "", "  "); err != nil {
		return nil, fmt.Errorf("failed to indent %s result: %w", r.View, err)
	}

	return buf.Bytes(), nil
}
