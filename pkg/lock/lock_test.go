package lock

import (
	"strings"
	"testing"
	"time"
)

func TestHolder(t *testing.T) {
	h := Holder()
	parts := strings.Split(h, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		t.Errorf("Holder() = %q, want user@host", h)
	}
}

func TestOptions(t *testing.T) {
	l := New(nil, WithHolder("ops@bastion"), WithTTL(10*time.Minute))
	if l.holder != "ops@bastion" {
		t.Errorf("holder = %q, want %q", l.holder, "ops@bastion")
	}
	if l.ttl != 10*time.Minute {
		t.Errorf("ttl = %v, want 10m", l.ttl)
	}

	l = New(nil, WithTTL(time.Millisecond))
	if l.ttl != DefaultTTL {
		t.Errorf("sub-second ttl accepted: %v", l.ttl)
	}
}
