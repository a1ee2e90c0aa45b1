package notify

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeSMTP accepts one session and captures the DATA payload.
func fakeSMTP(t *testing.T, rejectRcpt bool) (addr string, data <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		write := func(s string) { conn.Write([]byte(s + "\r\n")) }

		write("220 localhost ESMTP")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"):
				write("250-localhost")
				write("250 8BITMIME")
			case strings.HasPrefix(cmd, "HELO"), strings.HasPrefix(cmd, "MAIL"):
				write("250 OK")
			case strings.HasPrefix(cmd, "RCPT"):
				if rejectRcpt {
					write("550 no such user")
				} else {
					write("250 OK")
				}
			case cmd == "DATA":
				write("354 end with .")
				var msg strings.Builder
				for {
					l, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if l == ".\r\n" {
						break
					}
					msg.WriteString(l)
				}
				out <- msg.String()
				write("250 queued")
			case cmd == "QUIT":
				write("221 bye")
				return
			default:
				write("502 unrecognized")
			}
		}
	}()
	return ln.Addr().String(), out
}

func newTestSender(t *testing.T, addr string) *SMTPSender {
	t.Helper()
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return NewSMTPSender(SMTPConfig{Host: host, Port: p, From: "alerts@example.com", Timeout: 5 * time.Second}, zap.NewNop())
}

func TestSMTPSender_Send(t *testing.T) {
	addr, data := fakeSMTP(t, false)
	s := newTestSender(t, addr)

	err := s.Send(context.Background(), "user@example.com", "[P-Alert] 気圧変化", "line one\nline two")
	require.NoError(t, err)

	select {
	case msg := <-data:
		assert.Contains(t, msg, "To: user@example.com\r\n")
		assert.Contains(t, msg, "Subject: =?utf-8?q?")
		assert.Contains(t, msg, "line one\r\nline two")
	case <-time.After(5 * time.Second):
		t.Fatal("server did not receive DATA")
	}
}

func TestSMTPSender_RejectedRecipient(t *testing.T) {
	addr, _ := fakeSMTP(t, true)
	s := newTestSender(t, addr)

	err := s.Send(context.Background(), "nobody@example.com", "subject", "body")
	var sendErr *SendError
	require.True(t, errors.As(err, &sendErr), "err = %v", err)
	assert.Equal(t, "nobody@example.com", sendErr.To)
}

func TestSMTPSender_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	err = newTestSender(t, addr).Send(context.Background(), "user@example.com", "s", "b")
	var sendErr *SendError
	assert.True(t, errors.As(err, &sendErr), "err = %v", err)
}

func TestNew_FallsBackToLogSender(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	s := New(SMTPConfig{Host: "smtp.example.com"}, logger)
	_, ok := s.(*LogSender)
	require.True(t, ok, "sender = %T, want *LogSender", s)

	require.NoError(t, s.Send(context.Background(), "user@example.com", "subject", "body"))
	assert.Equal(t, 1, logs.FilterMessage("notify: email skipped").Len())

	_, ok = New(SMTPConfig{Host: "smtp.example.com", User: "u", Password: "p"}, logger).(*SMTPSender)
	assert.True(t, ok)
}

func TestBuildMessage(t *testing.T) {
	date := time.Date(2025, 3, 1, 18, 0, 0, 0, time.FixedZone("JST", 9*3600))
	msg := string(BuildMessage("a@example.com", "b@example.com", "hello", "x\ny", date))

	assert.True(t, strings.HasPrefix(msg, "From: a@example.com\r\nTo: b@example.com\r\nSubject: hello\r\n"))
	assert.Contains(t, msg, "Date: Sat, 01 Mar 2025 18:00:00 +0900\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nx\r\ny"))
}
