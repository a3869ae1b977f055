package net

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/l1jgo/cmdbus/internal/config"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/encoding/traditionalchinese"
)

type pipeClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func (c *pipeClient) send(line string) string {
	c.t.Helper()
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.t.Fatalf("write %q: %v", line, err)
	}
	return c.read()
}

func (c *pipeClient) read() string {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := c.r.ReadString('\n')
	if err != nil {
		c.t.Fatalf("read reply: %v", err)
	}
	return reply[:len(reply)-1]
}

func startSession(t *testing.T, opts SessionOptions) (*Session, *pipeClient, chan Inbound) {
	t.Helper()
	if opts.MaxLineBytes == 0 {
		opts.MaxLineBytes = 1024
	}
	server, client := net.Pipe()
	feed := make(chan Inbound, 8)
	s := NewSession(server, 7, feed, opts, zap.NewNop())
	s.Start()
	t.Cleanup(func() {
		client.Close()
		s.Close()
	})
	return s, &pipeClient{t: t, conn: client, r: bufio.NewReader(client)}, feed
}

func receive(t *testing.T, feed <-chan Inbound) Inbound {
	t.Helper()
	select {
	case in := <-feed:
		return in
	case <-time.After(2 * time.Second):
		t.Fatal("no inbound notification")
	}
	return Inbound{}
}

func TestSession_FeedsParsedLines(t *testing.T) {
	_, c, feed := startSession(t, SessionOptions{})

	if got := c.send(`login {"user":"ann"}`); got != "OK" {
		t.Fatalf("reply = %q", got)
	}
	in := receive(t, feed)
	if in.Session != 7 || in.Tag != "login" {
		t.Errorf("inbound = %+v", in)
	}
	if gjson.Get(in.Payload.(gjson.Result).Raw, "user").String() != "ann" {
		t.Errorf("payload = %v", in.Payload)
	}

	if got := c.send("login {bad"); got[:3] != "ERR" {
		t.Errorf("invalid JSON reply = %q", got)
	}
	if got := c.send("logout"); got != "OK" {
		t.Errorf("reply = %q", got)
	}
	if in := receive(t, feed); in.Tag != "logout" || in.Payload != nil {
		t.Errorf("inbound = %+v", in)
	}
}

func TestSession_Auth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("accepted", func(t *testing.T) {
		_, c, feed := startSession(t, SessionOptions{AuthTokenHash: string(hash)})
		if got := c.send("AUTH s3cret"); got != "OK" {
			t.Fatalf("auth reply = %q", got)
		}
		c.send("ping")
		if in := receive(t, feed); in.Tag != "ping" {
			t.Errorf("inbound = %+v", in)
		}
	})

	t.Run("rejected", func(t *testing.T) {
		s, c, feed := startSession(t, SessionOptions{AuthTokenHash: string(hash)})
		if got := c.send("ping"); got != "ERR auth" {
			t.Fatalf("reply = %q, want ERR auth", got)
		}
		select {
		case <-s.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("session should close after failed auth")
		}
		if len(feed) != 0 {
			t.Error("nothing should reach the feed before auth")
		}
	})
}

func TestSession_Big5(t *testing.T) {
	_, c, feed := startSession(t, SessionOptions{Big5: true})

	encoded, err := traditionalchinese.Big5.NewEncoder().String(`say {"msg":"測試"}`)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.send(encoded); got != "OK" {
		t.Fatalf("reply = %q", got)
	}
	in := receive(t, feed)
	if msg := in.Payload.(gjson.Result).Get("msg").String(); msg != "測試" {
		t.Errorf("msg = %q, want 測試", msg)
	}
}

func TestSession_RateLimit(t *testing.T) {
	s, c, _ := startSession(t, SessionOptions{LinesPerSecond: 2})

	// Two lines fit; the third in the same second closes the session. A
	// second boundary can reset the counter once, hence the extra attempts.
	for i := 0; i < 6; i++ {
		if got := c.send("tick"); got == "ERR rate limit" {
			select {
			case <-s.Done():
				return
			case <-time.After(2 * time.Second):
				t.Fatal("session should close after exceeding the rate")
			}
		}
	}
	t.Fatal("rate limit never triggered")
}

func TestServer_AcceptAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("listen: %v", err)
	}
	srv := newServer(ln, config.NetworkConfig{
		InQueueSize:  4,
		MaxLineBytes: 1024,
	}, zap.NewNop())
	go srv.AcceptLoop()

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	c := &pipeClient{t: t, conn: conn, r: bufio.NewReader(conn)}

	if got := c.send("hello"); got != "OK" {
		t.Fatalf("reply = %q", got)
	}
	if in := receive(t, srv.Feed()); in.Tag != "hello" || in.Session != 1 {
		t.Errorf("inbound = %+v", in)
	}
	if srv.SessionCount() != 1 {
		t.Errorf("SessionCount = %d, want 1", srv.SessionCount())
	}

	srv.Shutdown()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.r.ReadString('\n'); err == nil {
		t.Error("connection should be closed after Shutdown")
	}
}
