package client

import (
	"io"
	"net/http"
)

// Transport attaches the session's access token to each request and, on a
// 401, refreshes once and replays the request exactly once.
type Transport struct {
	c    *Coordinator
	base http.RoundTripper
}

// Transport returns a RoundTripper bound to c.
func (c *Coordinator) Transport() *Transport {
	return &Transport{c: c, base: c.base}
}

// HTTPClient returns an http.Client using c.Transport.
func (c *Coordinator) HTTPClient() *http.Client {
	return &http.Client{Transport: c.Transport()}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	token := t.c.accessToken()
	resp, err := t.base.RoundTrip(withBearer(req, token))
	if err != nil || resp.StatusCode != http.StatusUnauthorized || token == "" {
		return resp, err
	}
	// A consumed body that cannot be rebuilt cannot be replayed.
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return resp, nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()

	fresh, err := t.c.refreshFrom(req.Context(), token)
	if err != nil {
		return nil, err
	}

	retry := withBearer(req, fresh)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	return t.base.RoundTrip(retry)
}

func withBearer(req *http.Request, token string) *http.Request {
	out := req.Clone(req.Context())
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	return out
}
