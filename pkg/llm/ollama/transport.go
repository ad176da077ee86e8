package ollama

import (
	"io"
	"net/http"
	"regexp"
	"strings"
)

// JSONFixingRoundTripper strips invalid JSON escapes (e.g. \$) some models
// emit inside streamed content.
type JSONFixingRoundTripper struct {
	Proxied http.RoundTripper
}

func (j *JSONFixingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := j.Proxied.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "application/json") || strings.Contains(ct, "application/x-ndjson") {
		resp.Body = &jsonFixingReadCloser{body: resp.Body}
	}
	return resp, nil
}

type jsonFixingReadCloser struct {
	body io.ReadCloser
}

var illegalEscapeRegex = regexp.MustCompile(`\\([^\/\\bfnrtu"])`)

// Read only ever shrinks the buffer, so fixing in place is safe.
func (j *jsonFixingReadCloser) Read(p []byte) (int, error) {
	n, err := j.body.Read(p)
	if n > 0 {
		fixed := illegalEscapeRegex.ReplaceAll(p[:n], []byte("$1"))
		n = copy(p, fixed)
	}
	return n, err
}

func (j *jsonFixingReadCloser) Close() error {
	return j.body.Close()
}
