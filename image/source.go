package image

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
)

// QueryParam is the query parameter that carries an external image URL.
const QueryParam = "image"

// UntrustedWarning is shown to the operator whenever a remote image is
// selected, before flashing is allowed.
const UntrustedWarning = "An external binary URL was supplied. Only flash if you trust the source!"

var trustedURL = regexp.MustCompile(`(?i)^https?://.+\.bin$`)

// Source produces the bytes to flash. Implementations are stateless;
// resolving the same source twice yields the same bytes as long as the
// underlying file or URL does not change.
type Source interface {
	// Kind reports whether the source is local or remote.
	Kind() Kind

	// Resolve reads the whole image into memory.
	Resolve(ctx context.Context) (*Image, error)

	// String describes the source for logs.
	String() string
}

// Local is an operator-supplied file. The zero value represents "no file
// chosen yet".
type Local struct {
	name string
	open func() (io.ReadCloser, error)
}

// FromFile returns a Local source that reads path on every resolution.
//
// Example:
//
//	src := image.FromFile("firmware.bin")
//	img, err := src.Resolve(ctx)
func FromFile(path string) *Local {
	if path == "" {
		return NoFile()
	}
	return &Local{
		name: filepath.Base(path),
		open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// FromBytes returns a Local source over an in-memory upload.
// data is copied.
func FromBytes(name string, data []byte) *Local {
	buf := append([]byte(nil), data...)
	return &Local{
		name: name,
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(buf)), nil
		},
	}
}

// NoFile returns a Local source with no file chosen.
func NoFile() *Local {
	return &Local{}
}

// Supplied reports whether a file has been chosen.
func (l *Local) Supplied() bool {
	return l != nil && l.open != nil
}

// Name returns the base name of the chosen file.
func (l *Local) Name() string {
	if l == nil {
		return ""
	}
	return l.name
}

func (l *Local) Kind() Kind { return KindLocal }

func (l *Local) String() string {
	if !l.Supplied() {
		return "local:<none>"
	}
	return "local:" + l.name
}

// Resolve reads the whole file. It fails with ErrSourceUnavailable if no
// file was chosen or it cannot be read.
func (l *Local) Resolve(ctx context.Context) (*Image, error) {
	if !l.Supplied() {
		return nil, fmt.Errorf("no file supplied: %w", ErrSourceUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rc, err := l.open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", l.name, ErrSourceUnavailable, err)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %w", l.name, ErrSourceUnavailable, err)
	}

	return &Image{Data: data, Origin: l.name, Kind: KindLocal}, nil
}

// Remote is an image fetched over HTTP(S). It can only be constructed from a
// URL matching the trusted pattern and is always untrusted content.
type Remote struct {
	url    string
	client *http.Client
}

// RemoteOption configures a Remote source.
type RemoteOption func(*Remote)

// WithHTTPClient sets the client used to fetch the image.
// The default is http.DefaultClient.
func WithHTTPClient(client *http.Client) RemoteOption {
	return func(r *Remote) {
		if client != nil {
			r.client = client
		}
	}
}

// IsTrustedURL reports whether raw matches ^https?://.+\.bin$ (case-insensitive).
func IsTrustedURL(raw string) bool {
	return trustedURL.MatchString(raw)
}

// ParseRemote validates raw against the trusted pattern and returns a
// Remote source for it.
//
// Example:
//
//	src, err := image.ParseRemote("https://example.com/fw.bin")
func ParseRemote(raw string, opts ...RemoteOption) (*Remote, error) {
	if !IsTrustedURL(raw) {
		return nil, fmt.Errorf("%q: %w", raw, ErrUntrustedURL)
	}

	r := &Remote{url: raw, client: http.DefaultClient}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// FromQuery returns the Remote source named by the "image" query parameter.
// Values that do not match the trusted pattern are ignored.
func FromQuery(q url.Values, opts ...RemoteOption) (*Remote, bool) {
	raw := q.Get(QueryParam)
	if raw == "" {
		return nil, false
	}
	r, err := ParseRemote(raw, opts...)
	if err != nil {
		return nil, false
	}
	return r, true
}

// URL returns the image URL.
func (r *Remote) URL() string { return r.url }

// Untrusted is always true: remote images must be flagged to the operator.
func (r *Remote) Untrusted() bool { return true }

// Warning returns the text to show the operator before flashing.
func (r *Remote) Warning() string { return UntrustedWarning }

func (r *Remote) Kind() Kind { return KindRemote }

func (r *Remote) String() string { return "remote:" + r.url }

// Resolve performs a single GET. A non-2xx answer yields *FetchError; a
// transport failure yields ErrSourceUnavailable. There are no retries.
func (r *Remote) Resolve(ctx context.Context) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w: %w", ErrSourceUnavailable, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w: %w", r.url, ErrSourceUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: r.url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %w", r.url, ErrSourceUnavailable, err)
	}

	return &Image{Data: data, Origin: r.url, Kind: KindRemote}, nil
}
