// Package httpclient fetches remote documents and ontologies for import. Hosts
// that resolve to loopback, private or link-local addresses are refused,
// including after redirects and DNS rebinding.
package httpclient

import (
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/teranos/artificer/errors"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxRedirects = 5
)

// Options tunes a Client. Zero values take the defaults.
type Options struct {
	Timeout      time.Duration
	MaxRedirects int
	// AllowPrivate lifts the address checks; tests against httptest need it
	AllowPrivate bool
}

// Client is an http.Client that only talks to public http(s) hosts
type Client struct {
	http         *http.Client
	maxRedirects int
	allowPrivate bool
}

// Resource is one fetched body
type Resource struct {
	// Name is the last path segment of the final URL
	Name        string
	ContentType string
	Content     []byte
}

// New builds a Client
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = defaultMaxRedirects
	}
	c := &Client{maxRedirects: opts.MaxRedirects, allowPrivate: opts.AllowPrivate}
	c.http = &http.Client{
		Timeout: opts.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= c.maxRedirects {
				return errors.Newf("stopped after %d redirects", c.maxRedirects)
			}
			return errors.Wrap(c.check(req.URL), "redirect blocked")
		},
	}
	if !opts.AllowPrivate {
		dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
		c.http.Transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				host, port, err := net.SplitHostPort(addr)
				if err != nil {
					return nil, errors.Wrap(err, "invalid address")
				}
				ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
				if err != nil {
					return nil, errors.Wrapf(err, "failed to resolve %q", host)
				}
				for _, ip := range ips {
					if isPrivate(ip) {
						return nil, errors.Newf("private address blocked: %s", ip)
					}
				}
				// Dial the checked address, not the name, so a second lookup cannot rebind
				return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].String(), port))
			},
			TLSHandshakeTimeout: 10 * time.Second,
			IdleConnTimeout:     90 * time.Second,
		}
	}
	return c
}

// IsURL reports whether s should be fetched rather than opened as a file
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Validate parses raw and applies the scheme and host checks
func (c *Client) Validate(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.NewInvalidRequestError("invalid URL %q", raw)
	}
	if err := c.check(u); err != nil {
		return nil, errors.NewInvalidRequestError("%s: %v", raw, err)
	}
	return u, nil
}

func (c *Client) check(u *url.URL) error {
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return errors.Newf("scheme %q not allowed", u.Scheme)
	}
	if u.User != nil {
		return errors.New("credentials in URL not allowed")
	}
	host := u.Hostname()
	if host == "" {
		return errors.New("URL has no host")
	}
	if c.allowPrivate {
		return nil
	}
	if isLocalhost(host) {
		return errors.New("localhost blocked")
	}
	if ip := net.ParseIP(host); ip != nil && isPrivate(ip) {
		return errors.Newf("private address blocked: %s", host)
	}
	return nil
}

// Fetch GETs raw and reads at most limit bytes of the body. limit <= 0 reads
// everything.
func (c *Client) Fetch(ctx context.Context, raw string, limit int64) (*Resource, error) {
	u, err := c.Validate(raw)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch %s", raw)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("fetch %s: unexpected status %s", raw, resp.Status)
	}

	body := io.Reader(resp.Body)
	if limit > 0 {
		body = io.LimitReader(resp.Body, limit+1)
	}
	content, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", raw)
	}
	if limit > 0 && int64(len(content)) > limit {
		return nil, errors.NewInvalidRequestError("%s exceeds %d bytes", raw, limit)
	}

	ct := resp.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	name := path.Base(resp.Request.URL.Path)
	if name == "/" || name == "." {
		name = resp.Request.URL.Hostname()
	}
	return &Resource{Name: name, ContentType: ct, Content: content}, nil
}

var privateBlocks = func() []*net.IPNet {
	var out []*net.IPNet
	for _, cidr := range []string{
		"0.0.0.0/8", "10.0.0.0/8", "127.0.0.0/8", "169.254.0.0/16",
		"172.16.0.0/12", "192.168.0.0/16", "100.64.0.0/10",
		"224.0.0.0/4", "240.0.0.0/4",
		"fc00::/7", "fec0::/10", "2001:db8::/32",
	} {
		_, block, _ := net.ParseCIDR(cidr)
		out = append(out, block)
	}
	return out
}()

func isPrivate(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsMulticast() || ip.IsUnspecified() {
		return true
	}
	for _, block := range privateBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

func isLocalhost(host string) bool {
	host = strings.ToLower(host)
	return host == "localhost" || host == "localhost.localdomain" || strings.HasSuffix(host, ".localhost")
}
