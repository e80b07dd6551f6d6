// internal/backend/stream.go
package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// readStream turns a streaming response body into chunks. The body is closed when the
// returned channel closes.
func readStream(ctx context.Context, body io.ReadCloser, contentType string) <-chan Chunk {
	out := make(chan Chunk)
	go func() {
		defer body.Close()
		defer close(out)

		if strings.HasPrefix(strings.ToLower(contentType), "text/event-stream") {
			readSSE(ctx, body, out)
			return
		}
		readRaw(ctx, body, out)
	}()
	return out
}

func send(ctx context.Context, out chan<- Chunk, c Chunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

// readSSE consumes events until [DONE] or EOF. The data lines of one event are joined
// with "\n" and dispatched at the blank line that ends it.
func readSSE(ctx context.Context, body io.Reader, out chan<- Chunk) {
	reader := bufio.NewReader(body)
	var data []string

	// dispatch reports whether reading should go on
	dispatch := func() bool {
		if len(data) == 0 {
			return true
		}
		payload := strings.Join(data, "\n")
		data = data[:0]
		if payload == "[DONE]" {
			send(ctx, out, DoneChunk())
			return false
		}
		chunk := decodeEvent(payload)
		return send(ctx, out, chunk) && chunk.Kind != ChunkError
	}

	for {
		if ctx.Err() != nil {
			send(ctx, out, ErrorChunk(ctx.Err()))
			return
		}
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			send(ctx, out, ErrorChunk(fmt.Errorf("stream interrupted: %w", err)))
			return
		}

		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if !dispatch() {
				return
			}
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}

		if errors.Is(err, io.EOF) {
			if dispatch() {
				send(ctx, out, DoneChunk())
			}
			return
		}
	}
}

// decodeEvent accepts either a JSON event or bare text as an SSE payload
func decodeEvent(payload string) Chunk {
	if !strings.HasPrefix(payload, "{") {
		return DataChunk(payload)
	}
	var event struct {
		Text    *string `json:"text"`
		Content *string `json:"content"`
		Error   string  `json:"error"`
	}
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return DataChunk(payload)
	}
	switch {
	case event.Error != "":
		return ErrorChunk(errors.New(event.Error))
	case event.Text != nil:
		return DataChunk(*event.Text)
	case event.Content != nil:
		return DataChunk(*event.Content)
	}
	return DataChunk(payload)
}

// readRaw forwards every read of a chunked plain-text body as one chunk
func readRaw(ctx context.Context, body io.Reader, out chan<- Chunk) {
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if !send(ctx, out, DataChunk(string(buf[:n]))) {
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				send(ctx, out, DoneChunk())
			} else {
				send(ctx, out, ErrorChunk(fmt.Errorf("stream interrupted: %w", err)))
			}
			return
		}
	}
}
