package whisperx

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"golang.org/x/exp/slices"
)

var SupportedExtensions = []string{".wav", ".mp3", ".ogg", ".flac", ".m4a"}

func IsSupportedAudio(path string) bool {
	return slices.Contains(SupportedExtensions, strings.ToLower(filepath.Ext(path)))
}

// wavDuration is best effort, it only feeds log lines.
func wavDuration(path string, data []byte) (time.Duration, bool) {
	if strings.ToLower(filepath.Ext(path)) != ".wav" {
		return 0, false
	}

	d := wav.NewDecoder(bytes.NewReader(data))
	if d == nil || !d.IsValidFile() {
		return 0, false
	}

	duration, err := d.Duration()
	if err != nil {
		return 0, false
	}

	return duration, true
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func buildUploadForm(filename string, audio []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filename)))
	header.Set("Content-Type", uploadMime)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file form field: %w", err)
	}

	if _, err := part.Write(audio); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}
