package fetch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

var fakePDF = []byte("%PDF-1.4\n% test document\n%%EOF\n")

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/doc.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(fakePDF)
	})
	mux.HandleFunc("/octet", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(fakePDF)
	})
	mux.HandleFunc("/landing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body>
			<a href="/about">About</a>
			<a href="doc.pdf">Worksheet</a>
		</body></html>`))
	})
	mux.HandleFunc("/button", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="mailto:x@example.com">PDF by mail</a><a href="/octet">Download now</a>`))
	})
	mux.HandleFunc("/nolink", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<p>nothing here</p>`))
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="/loop">Download</a>`))
	})
	mux.HandleFunc("/big.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(bytes.Repeat([]byte("x"), 2048))
	})
	mux.HandleFunc("/image", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch(t *testing.T) {
	srv := newServer(t)
	f := New(srv.Client(), 1024, nil)

	for _, path := range []string{"/doc.pdf", "/octet", "/landing", "/button"} {
		t.Run(path, func(t *testing.T) {
			got, err := f.Fetch(context.Background(), srv.URL+path)
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if !bytes.Equal(got, fakePDF) {
				t.Errorf("got %q", got)
			}
		})
	}
}

func TestFetchErrors(t *testing.T) {
	srv := newServer(t)
	f := New(srv.Client(), 1024, nil)

	tests := []struct {
		url  string
		want error
	}{
		{url: srv.URL + "/nolink", want: ErrNoPDFLink},
		{url: srv.URL + "/loop", want: ErrTooManyHops},
		{url: srv.URL + "/big.pdf", want: ErrTooLarge},
		{url: "ftp://example.com/a.pdf", want: ErrBadURL},
		{url: "not a url", want: ErrBadURL},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if _, err := f.Fetch(context.Background(), tt.url); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("status", func(t *testing.T) {
		_, err := f.Fetch(context.Background(), srv.URL+"/missing")
		var se *StatusError
		if !errors.As(err, &se) || se.Code != http.StatusNotFound {
			t.Errorf("err = %v, want StatusError 404", err)
		}
	})

	t.Run("content type", func(t *testing.T) {
		_, err := f.Fetch(context.Background(), srv.URL+"/image")
		if err == nil || !strings.Contains(err.Error(), "unsupported content-type") {
			t.Errorf("err = %v", err)
		}
	})
}

func TestFindPDFLink(t *testing.T) {
	base, _ := url.Parse("https://example.com/worksheets/page/")

	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "prefers .pdf over download text",
			html: `<a href="/get?id=1">Download</a><a href="files/a.PDF">A</a>`,
			want: "https://example.com/worksheets/page/files/a.PDF",
		},
		{
			name: "falls back to download anchor",
			html: `<a href="/x">Home</a><a href="/get?id=2"> Download PDF </a>`,
			want: "https://example.com/get?id=2",
		},
		{
			name: "ignores non-http links",
			html: `<a href="javascript:void(0)">pdf</a>`,
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(tt.html))
			if err != nil {
				t.Fatal(err)
			}
			if got := FindPDFLink(doc, base); got != tt.want {
				t.Errorf("FindPDFLink = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefaultClientRefusesLoopback(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(fakePDF)
	}))
	defer srv.Close()

	f := New(nil, 0, nil)
	for _, target := range []string{srv.URL + "/admin/secret", srv.URL + "/doc.pdf"} {
		_, err := f.Fetch(context.Background(), target)
		if !errors.Is(err, ErrForbidden) {
			t.Errorf("Fetch(%s) error = %v, want ErrForbidden", target, err)
		}
	}
	if n := hits.Load(); n != 0 {
		t.Errorf("loopback server received %d requests", n)
	}
}

func TestPublic(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"93.184.216.34", true},
		{"2606:2800:220:1:248:1893:25c8:1946", true},
		{"127.0.0.1", false},
		{"::1", false},
		{"10.1.2.3", false},
		{"172.16.0.1", false},
		{"192.168.1.1", false},
		{"169.254.169.254", false},
		{"fe80::1", false},
		{"fd00::1", false},
		{"0.0.0.0", false},
		{"::", false},
		{"100.64.0.1", false},
		{"224.0.0.1", false},
		{"::ffff:127.0.0.1", false},
	}
	for _, tt := range tests {
		if got := Public(netip.MustParseAddr(tt.addr)); got != tt.want {
			t.Errorf("Public(%s) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestDialControl(t *testing.T) {
	if err := dialControl("tcp", "127.0.0.1:80", nil); !errors.Is(err, ErrForbidden) {
		t.Errorf("loopback: err = %v", err)
	}
	if err := dialControl("tcp6", "[fe80::1%eth0]:443", nil); !errors.Is(err, ErrForbidden) {
		t.Errorf("link-local: err = %v", err)
	}
	if err := dialControl("tcp", "93.184.216.34:443", nil); err != nil {
		t.Errorf("public: err = %v", err)
	}
}

func TestCheckRedirect(t *testing.T) {
	req := func(raw string) *http.Request {
		u, _ := url.Parse(raw)
		return &http.Request{URL: u}
	}
	if err := checkRedirect(req("https://example.com/a.pdf"), nil); err != nil {
		t.Errorf("https redirect: %v", err)
	}
	if err := checkRedirect(req("file:///etc/passwd"), nil); !errors.Is(err, ErrBadURL) {
		t.Errorf("file redirect: err = %v", err)
	}
	via := make([]*http.Request, maxRedirects)
	if err := checkRedirect(req("https://example.com/"), via); err == nil {
		t.Error("redirect chain not limited")
	}
}
