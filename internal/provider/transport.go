package provider

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"
)

// FastHTTPTransport is the production Transport.
type FastHTTPTransport struct {
	client  *fasthttp.Client
	timeout time.Duration
}

func NewFastHTTPTransport(timeout time.Duration) *FastHTTPTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FastHTTPTransport{
		client: &fasthttp.Client{
			Name:                "matchbot",
			MaxConnsPerHost:     4,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
		timeout: timeout,
	}
}

func (t *FastHTTPTransport) Get(ctx context.Context, url string, headers map[string]string) (Response, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.client.DoDeadline(req, resp, deadline); err != nil {
		return Response{}, err
	}

	// resp is released on return; the body must be copied out.
	body := append([]byte(nil), resp.Body()...)
	return Response{Status: resp.StatusCode(), Body: body}, nil
}
