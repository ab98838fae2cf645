// Package fetch downloads PDF documents by URL so they can be cached.
//
// Many sites answer a "download" link with an HTML landing page instead of
// the file. When that happens the page is searched for a link to a .pdf, or
// for an anchor whose text mentions "download" or "pdf", and that link is
// followed.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	DefaultTimeout  = 60 * time.Second
	DefaultMaxBytes = 32 << 20
	defaultMaxHops  = 3
	maxRedirects    = 5
	userAgent       = "pdfmerge/1.0"
)

var (
	ErrNoPDFLink   = errors.New("fetch: no PDF link found")
	ErrTooLarge    = errors.New("fetch: document too large")
	ErrTooManyHops = errors.New("fetch: too many HTML pages followed")
	ErrBadURL      = errors.New("fetch: invalid URL")
	ErrForbidden   = errors.New("fetch: address not allowed")
)

// StatusError reports a non-success HTTP status from the remote server.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: %s: http %d", e.URL, e.Code)
}

type Fetcher struct {
	client   *http.Client
	maxBytes int64
	maxHops  int
	logger   *slog.Logger
}

// NewClient returns an HTTP client that only connects to public unicast
// addresses. The check runs on every dial, after name resolution, so it also
// covers redirects and HTML links. Environment proxies are ignored.
func NewClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   dialControl,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{
		Timeout:       timeout,
		Transport:     transport,
		CheckRedirect: checkRedirect,
	}
}

func dialControl(network, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrForbidden, address)
	}
	if !Public(ap.Addr()) {
		return fmt.Errorf("%w: %s", ErrForbidden, ap.Addr())
	}
	return nil
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("fetch: stopped after %d redirects", maxRedirects)
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("%w: redirect to %q", ErrBadURL, req.URL)
	}
	return nil
}

var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// Public reports whether addr is a globally routable unicast address.
// Loopback, private, link-local, multicast, unspecified and carrier-grade
// NAT addresses are not.
func Public(addr netip.Addr) bool {
	addr = addr.Unmap()
	switch {
	case !addr.IsValid(),
		addr.IsUnspecified(),
		addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsInterfaceLocalMulticast(),
		addr.IsMulticast(),
		sharedAddressSpace.Contains(addr):
		return false
	}
	return addr.IsGlobalUnicast()
}

// New returns a Fetcher. A nil client means NewClient(DefaultTimeout);
// maxBytes <= 0 means DefaultMaxBytes.
func New(client *http.Client, maxBytes int64, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = NewClient(DefaultTimeout)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{client: client, maxBytes: maxBytes, maxHops: defaultMaxHops, logger: logger}
}

// Fetch downloads the document at rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrBadURL, rawURL)
	}
	return f.fetch(ctx, u.String(), 0)
}

func (f *Fetcher) fetch(ctx context.Context, u string, hops int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &StatusError{URL: u, Code: resp.StatusCode}
	}

	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	switch {
	case strings.Contains(ct, "pdf") || ct == "application/octet-stream" || strings.HasSuffix(strings.ToLower(resp.Request.URL.Path), ".pdf"):
		return f.readLimited(resp.Body)

	case strings.Contains(ct, "text/html"):
		if hops >= f.maxHops {
			return nil, ErrTooManyHops
		}
		doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, f.maxBytes))
		if err != nil {
			return nil, err
		}
		link := FindPDFLink(doc, resp.Request.URL)
		if link == "" {
			return nil, fmt.Errorf("%w in %s", ErrNoPDFLink, u)
		}
		f.logger.Debug("following PDF link from HTML page", "page", u, "link", link)
		return f.fetch(ctx, link, hops+1)
	}

	return nil, fmt.Errorf("fetch: unsupported content-type %q for %s", ct, u)
}

func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// FindPDFLink returns the absolute URL of the best PDF candidate in doc:
// the first link ending in .pdf, else the first anchor whose text mentions
// "download" or "pdf". It returns "" when there is none.
func FindPDFLink(doc *goquery.Document, base *url.URL) string {
	var direct, fallback string

	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		abs := resolve(base, href)
		if abs == "" {
			return true
		}
		txt := strings.ToLower(strings.TrimSpace(a.Text()))
		l := strings.ToLower(abs)
		switch {
		case strings.HasSuffix(l, ".pdf"):
			direct = abs
			return false
		case fallback == "" && (strings.Contains(txt, "download") || strings.Contains(txt, "pdf")):
			fallback = abs
		}
		return true
	})

	if direct != "" {
		return direct
	}
	return fallback
}

func resolve(base *url.URL, href string) string {
	hu, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(hu)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}
