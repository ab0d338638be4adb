package domain

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// WebRequest is a snapshot of the HTTP request being served when an error was caught.
type WebRequest struct {
	URL               url.URL
	Referrer          Optional[url.URL]
	Method            string
	AuthenticatedUser Optional[string]
	Headers           Optional[Headers]
}

// Hosting describes the web application host.
type Hosting struct {
	MachineName   string
	ApplicationID string
	PhysicalPath  string
	VirtualPath   string
	SiteName      string
}

// ID returns the web application digest.
func (h Hosting) ID() Digest {
	return HashParts(h.MachineName, h.ApplicationID, h.PhysicalPath, h.VirtualPath, h.SiteName)
}

// Header is one name/value pair of a header collection.
type Header struct {
	Name  string
	Value string
}

// ValueID is the digest of the header value alone.
func (h Header) ValueID() Digest {
	return Hash(h.Value)
}

// Headers is a name-ordered header collection.
type Headers []Header

// NewHeaders flattens h into a name-ordered collection; repeated values are comma-joined.
func NewHeaders(h http.Header) Headers {
	out := make(Headers, 0, len(h))
	for name, values := range h {
		out = append(out, Header{Name: name, Value: strings.Join(values, ",")})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Merged returns the collection sorted by name with repeated names folded into one entry,
// their values comma-joined in input order.
func (hs Headers) Merged() Headers {
	sorted := make(Headers, len(hs))
	copy(sorted, hs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	out := sorted[:0]
	for _, h := range sorted {
		if n := len(out); n > 0 && out[n-1].Name == h.Name {
			out[n-1].Value += "," + h.Value
			continue
		}
		out = append(out, h)
	}
	return out
}

// ID returns the collection digest over the merged "name:value\n" lines.
func (hs Headers) ID() Digest {
	merged := hs.Merged()

	var b strings.Builder
	b.Grow(len(merged) * 40)
	for _, h := range merged {
		b.WriteString(h.Name)
		b.WriteByte(':')
		b.WriteString(h.Value)
		b.WriteByte('\n')
	}
	return Hash(b.String())
}

// URLParts are the normalized pieces of a URL that get stored.
type URLParts struct {
	Scheme string
	Host   string
	Port   int
	Path   string
	// Query includes the leading '?' when non-empty.
	Query string
}

// SplitURL normalizes u, filling the default port for http and https.
func SplitURL(u url.URL) URLParts {
	p := URLParts{
		Scheme: strings.ToLower(u.Scheme),
		Host:   strings.ToLower(u.Hostname()),
		Path:   u.EscapedPath(),
	}
	if p.Path == "" {
		p.Path = "/"
	}
	if u.RawQuery != "" {
		p.Query = "?" + u.RawQuery
	}
	if port := u.Port(); port != "" {
		p.Port, _ = strconv.Atoi(port)
	} else {
		switch p.Scheme {
		case "http":
			p.Port = 80
		case "https":
			p.Port = 443
		}
	}
	return p
}

// URLID is the digest of the URL without its query string.
func (p URLParts) URLID() Digest {
	return Hash(fmt.Sprintf("%s://%s:%d%s", p.Scheme, p.Host, p.Port, p.Path))
}

// URLQueryID is the digest of the URL including its query string.
func (p URLParts) URLQueryID() Digest {
	return Hash(fmt.Sprintf("%s://%s:%d%s%s", p.Scheme, p.Host, p.Port, p.Path, p.Query))
}
