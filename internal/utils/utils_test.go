package utils

import (
	"strings"
	"testing"
)

type trackingBody struct {
	*strings.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func TestDrainAndClose(t *testing.T) {
	short := &trackingBody{Reader: strings.NewReader("leftover")}
	DrainAndClose(short)
	if !short.closed {
		t.Error("body not closed")
	}
	if short.Len() != 0 {
		t.Errorf("short body not drained, %d bytes left", short.Len())
	}

	long := &trackingBody{Reader: strings.NewReader(strings.Repeat("x", maxDrain*2))}
	DrainAndClose(long)
	if !long.closed {
		t.Error("body not closed")
	}
	if long.Len() != maxDrain {
		t.Errorf("drained past the limit, %d bytes left", long.Len())
	}
}

func TestParseHostNoPort(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"10.0.0.1", "10.0.0.1"},
		{"10.0.0.1:8080", "10.0.0.1"},
		{"[::1]:8080", "::1"},
		{"probe.example.com", "probe.example.com"},
	}
	for _, tt := range tests {
		if got := ParseHostNoPort(tt.in); got != tt.want {
			t.Errorf("ParseHostNoPort(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFirstForwardedFor(t *testing.T) {
	if got := FirstForwardedFor(" 1.2.3.4 , 5.6.7.8"); got != "1.2.3.4" {
		t.Errorf("got %q", got)
	}
	if got := FirstForwardedFor(""); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestIPMatcher(t *testing.T) {
	m := NewIPMatcher([]string{"10.0.0.0/8", " 192.168.1.5 ", "bogus", "", "2001:db8::/32"})
	if m.IsEmpty() {
		t.Fatal("matcher should not be empty")
	}

	tests := []struct {
		ip   string
		want bool
	}{
		{"10.20.30.40", true},
		{"192.168.1.5", true},
		{"::ffff:192.168.1.5", true},
		{"192.168.1.6", false},
		{"2001:db8::1", true},
		{"not-an-ip", false},
	}
	for _, tt := range tests {
		if got := m.Allow(tt.ip); got != tt.want {
			t.Errorf("Allow(%q) = %v, want %v", tt.ip, got, tt.want)
		}
	}

	if !NewIPMatcher([]string{"bogus"}).IsEmpty() {
		t.Error("only invalid entries should yield an empty matcher")
	}
}
