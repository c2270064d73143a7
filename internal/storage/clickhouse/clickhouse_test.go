// internal/storage/clickhouse/clickhouse_test.go
package clickhouse

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsConnectionError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"net.Error", timeoutErr{}, true},
		{"wrapped net.Error", &net.OpError{Op: "dial", Err: timeoutErr{}}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"eof", io.EOF, true},
		{"closed conn", net.ErrClosed, true},
		{"plain error", errors.New("syntax error"), false},
		{"nil-ish wrap", errors.New("Code: 60. DB::Exception: Table test.users does not exist"), false},
	}
	for _, c := range cases {
		if got := isConnectionError(c.err); got != c.want {
			t.Errorf("%s: isConnectionError = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()
	if cfg.Addr != "localhost:9000" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.Database != "test" {
		t.Errorf("Database = %q", cfg.Database)
	}
	if cfg.DialTimeout != 5*time.Second {
		t.Errorf("DialTimeout = %v", cfg.DialTimeout)
	}
}
