package domain

import (
	"net/http"
	"net/url"
	"testing"
)

func TestHash_KnownVector(t *testing.T) {
	got := Hash("abc").Hex(-1)
	want := "a9993e364706816aba3e25717850c26c9cd0d89d"
	if got != want {
		t.Fatalf("Hash(abc) = %s, want %s", got, want)
	}
}

func TestHashParts_JoinsWithColon(t *testing.T) {
	if HashParts("a", "b", "c") != Hash("a:b:c") {
		t.Fatal("HashParts should hash the colon-joined string")
	}
}

func TestDigest_Hex(t *testing.T) {
	d := Hash("abc")
	tests := []struct {
		n    int
		want string
	}{
		{0, ""},
		{1, "a"},
		{12, "a9993e364706"},
		{13, "a9993e3647068"},
		{-1, "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{100, "a9993e364706816aba3e25717850c26c9cd0d89d"},
	}
	for _, tt := range tests {
		if got := d.Hex(tt.n); got != tt.want {
			t.Errorf("Hex(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestDigestFromBytes(t *testing.T) {
	d := Hash("x")
	back, ok := DigestFromBytes(d.Bytes())
	if !ok || back != d {
		t.Fatalf("round trip failed: %v %v", back, ok)
	}
	if _, ok := DigestFromBytes([]byte{1, 2, 3}); ok {
		t.Fatal("short slice should be rejected")
	}
}

func TestExceptionID_Deterministic(t *testing.T) {
	mk := func() *CapturedException {
		return &CapturedException{
			AssemblyName: "errors",
			TypeName:     "*errors.errorString",
			StackTrace:   "   at main.run in /src/main.go:10\n",
			TargetSite: Some(TargetSite{
				AssemblyName: "main",
				MethodName:   "run",
				FileName:     "/src/main.go",
				FileLine:     10,
			}),
			Message: "first",
		}
	}
	a, b := mk(), mk()
	b.Message = "second"
	b.SequenceNumber = 42
	if a.ExceptionID() != b.ExceptionID() {
		t.Fatal("species id must not depend on message or sequence")
	}

	c := mk()
	c.TargetSite = None[TargetSite]()
	if c.ExceptionID() == a.ExceptionID() {
		t.Fatal("target site should contribute to the species id")
	}
	if c.ExceptionID() != HashParts(c.AssemblyName, c.TypeName, c.StackTrace) {
		t.Fatal("species id without target site should be assembly:type:stack")
	}
}

func TestHeaders_IDIgnoresInputOrder(t *testing.T) {
	a := Headers{{"Accept", "text/html"}, {"Host", "example.com"}}
	b := Headers{{"Host", "example.com"}, {"Accept", "text/html"}}
	if a.ID() != b.ID() {
		t.Fatal("collection id must be order independent")
	}
	if a.ID() != Hash("Accept:text/html\nHost:example.com\n") {
		t.Fatal("collection id must hash sorted name:value lines")
	}
}

func TestHeaders_MergedFoldsRepeatedNames(t *testing.T) {
	hs := Headers{{"X-B", "2"}, {"X-A", "1"}, {"X-A", "3"}}
	got := hs.Merged()
	if len(got) != 2 {
		t.Fatalf("expected 2 headers, got %d", len(got))
	}
	if got[0] != (Header{"X-A", "1,3"}) || got[1] != (Header{"X-B", "2"}) {
		t.Errorf("unexpected merge: %+v", got)
	}
	if hs[0].Name != "X-B" {
		t.Error("Merged must not reorder the receiver")
	}
	if hs.ID() != got.ID() {
		t.Error("repeated names must hash like their merged form")
	}
}

func TestNewHeaders_JoinsAndSorts(t *testing.T) {
	h := http.Header{}
	h.Add("X-B", "2")
	h.Add("X-A", "1")
	h.Add("X-A", "3")
	got := NewHeaders(h)
	if len(got) != 2 {
		t.Fatalf("expected 2 headers, got %d", len(got))
	}
	if got[0].Name != "X-A" || got[0].Value != "1,3" {
		t.Errorf("unexpected first header: %+v", got[0])
	}
}

func TestSplitURL(t *testing.T) {
	u, _ := url.Parse("HTTPS://Example.com/a/b?x=1")
	p := SplitURL(*u)
	if p.Scheme != "https" || p.Host != "example.com" || p.Port != 443 || p.Path != "/a/b" || p.Query != "?x=1" {
		t.Fatalf("unexpected parts: %+v", p)
	}
	if p.URLID() != Hash("https://example.com:443/a/b") {
		t.Error("url id mismatch")
	}
	if p.URLQueryID() != Hash("https://example.com:443/a/b?x=1") {
		t.Error("url query id mismatch")
	}

	u, _ = url.Parse("http://localhost:8080")
	p = SplitURL(*u)
	if p.Port != 8080 || p.Path != "/" || p.Query != "" {
		t.Fatalf("unexpected parts: %+v", p)
	}
}

func TestLogIdentifier_ShortForm(t *testing.T) {
	id := LogIdentifier{Species: Hash("abc"), InstanceID: 17}
	if got := id.ShortForm(); got != "E:n17:xa9993e364706" {
		t.Fatalf("ShortForm() = %q", got)
	}
}

func TestOptional(t *testing.T) {
	var o Optional[int]
	if o.Present() {
		t.Fatal("zero Optional should be absent")
	}
	if o.OrElse(5) != 5 {
		t.Fatal("OrElse should return default")
	}
	o = Some(3)
	if v, ok := o.Get(); !ok || v != 3 {
		t.Fatalf("Get() = %d, %v", v, ok)
	}
}
