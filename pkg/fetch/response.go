package fetch

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/fetchcache/fetchcache/pkg/store"
)

// captureBody reads the response body to completion and restores it, so the
// bytes can be both stored and handed to the caller even though the live
// stream is consumed once.
func captureBody(res *http.Response) ([]byte, error) {
	if res.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		res.Body.Close()
		return nil, fmt.Errorf("read response body: %w", err)
	}
	res.Body.Close()
	res.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// responseFromEntry synthesizes an *http.Response from a stored entry, with
// headers reconstructed by the policy engine. The result is shaped exactly
// like a live transport response.
func (c *Client) responseFromEntry(req *http.Request, entry *store.Entry) *http.Response {
	status := entry.Policy.Status
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        entry.Policy.ResponseHeaders(),
		Body:          io.NopCloser(bytes.NewReader(entry.Body)),
		ContentLength: entry.Size,
		Request:       req,
	}
}
