// Package recognize talks to the external sign-recognition service and runs
// the sampling loop that turns live video into transcript entries.
package recognize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"time"

	"github.com/bytedance/sonic"
	"github.com/valyala/fasthttp"
)

// Result is the recognizer's verdict for one frame. An empty Label means "no
// recognition".
type Result struct {
	Label string `json:"label"`
	Lang  string `json:"lang,omitempty"`
}

// ErrNoRecognition marks a frame the service could not classify. The loop
// treats it like any other per-tick failure.
var ErrNoRecognition = errors.New("no recognition")

// Recognizer converts one still image into a text label. The service is an
// opaque remote function: one image per call, no batching, no session.
type Recognizer interface {
	Recognize(ctx context.Context, frame []byte) (Result, error)
}

// Client is the fasthttp-backed recognizer. The frame travels as a multipart
// file field; the response is a small JSON document.
type Client struct {
	hc      *fasthttp.Client
	url     string
	timeout time.Duration
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		hc:      &fasthttp.Client{},
		url:     url,
		timeout: timeout,
	}
}

func (c *Client) Recognize(_ context.Context, frame []byte) (Result, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("frame", "frame.jpg")
	if err != nil {
		return Result{}, fmt.Errorf("building multipart body: %w", err)
	}
	if _, err := part.Write(frame); err != nil {
		return Result{}, fmt.Errorf("writing frame: %w", err)
	}
	if err := w.Close(); err != nil {
		return Result{}, fmt.Errorf("closing multipart body: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType(w.FormDataContentType())
	req.SetBody(body.Bytes())

	if err := c.hc.DoTimeout(req, resp, c.timeout); err != nil {
		return Result{}, fmt.Errorf("calling recognizer: %w", err)
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return Result{}, fmt.Errorf("recognizer returned status %d", code)
	}

	var res Result
	if err := sonic.Unmarshal(resp.Body(), &res); err != nil {
		return Result{}, fmt.Errorf("decoding recognizer response: %w", err)
	}
	if res.Label == "" {
		return Result{}, ErrNoRecognition
	}
	return res, nil
}
