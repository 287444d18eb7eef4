package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	contracts "framefarm/internal/contracts/renderer/v1"
	"framefarm/internal/pkg/errors"
)

// Client renders a single chunk and returns the renderer's status.
type Client interface {
	RenderChunk(ctx context.Context, spec contracts.ChunkSpec) (string, error)
}

type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient builds a client for the renderer at baseURL. Per request
// deadlines come from the caller's context; the transport timeout is only a
// backstop for a renderer that never answers.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 9 * time.Hour},
	}
}

// RenderChunk posts spec and returns the status field of the reply. A
// non-2xx answer is an error carrying the status code.
func (c *HTTPClient) RenderChunk(ctx context.Context, spec contracts.ChunkSpec) (string, error) {
	var out contracts.ChunkResponse
	if err := c.post(ctx, contracts.ChunkPath, spec, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, spec, out any) error {
	const op = "renderer.post"

	body, err := json.Marshal(spec)
	if err != nil {
		return errors.Wrap(err, op, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, op, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return errors.WrapWithCode(err, errors.CodeTimeout, op, "renderer did not answer in time")
		}
		return errors.WrapWithCode(err, errors.CodeUnavailable, op, "renderer request failed")
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return errors.Newf(errors.CodeChunkExecution, "renderer http %d: %s", res.StatusCode, strings.TrimSpace(string(snippet))).
			WithOp(op).
			WithField("status", res.StatusCode)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errors.Wrap(err, op, fmt.Sprintf("decode renderer response from %s", path))
	}
	return nil
}
