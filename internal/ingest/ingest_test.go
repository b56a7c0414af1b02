package ingest

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sshguard/internal/config"
	"sshguard/internal/model"
)

func newTestEmitter(buffer int) (*Emitter, chan model.ConnectionAttempt) {
	out := make(chan model.ConnectionAttempt, buffer)
	return NewEmitter(config.NewStaticManager(config.DefaultConfig()), out, nil, nil), out
}

const failedLine = "Oct 14 11:02:03 host sshd[4211]: Failed password for root from 203.0.113.5 port 51234 ssh2"

func TestEmitterDedupesRawLines(t *testing.T) {
	em, out := newTestEmitter(4)
	ctx := context.Background()
	if !em.EmitLine(ctx, SourceSyslog, failedLine) {
		t.Fatalf("expected first line to be emitted")
	}
	if em.EmitLine(ctx, SourceFileTail, failedLine) {
		t.Fatalf("expected duplicate line to be dropped")
	}
	att := <-out
	if att.Source != SourceSyslog || att.Username != "root" || att.Port != 51234 || att.Success {
		t.Fatalf("unexpected attempt %+v", att)
	}
}

func TestEmitterDropsWhenFull(t *testing.T) {
	em, _ := newTestEmitter(1)
	ctx := context.Background()
	if !em.EmitLine(ctx, SourceSyslog, failedLine) {
		t.Fatalf("expected first send")
	}
	other := strings.Replace(failedLine, "51234", "51235", 1)
	if em.EmitLine(ctx, SourceSyslog, other) {
		t.Fatalf("expected send on a full channel to fail")
	}
}

func TestDedupeCacheExpires(t *testing.T) {
	d := NewDedupeCache(2)
	now := time.Now()
	if d.Seen("a", now, time.Second) {
		t.Fatalf("first sighting is not a duplicate")
	}
	if !d.Seen("a", now.Add(500*time.Millisecond), time.Second) {
		t.Fatalf("expected duplicate inside ttl")
	}
	if d.Seen("a", now.Add(3*time.Second), time.Second) {
		t.Fatalf("expected expiry after ttl")
	}
	d.Seen("b", now, time.Second)
	d.Seen("c", now, time.Second)
	if d.Len() != 2 {
		t.Fatalf("expected bounded cache, got %d", d.Len())
	}
}

func TestParseReaderBatch(t *testing.T) {
	log := strings.Join([]string{
		failedLine,
		"Oct 14 11:02:04 host sshd[4212]: Invalid user test from 203.0.113.5 port 51236",
		"Oct 14 11:02:05 host sshd[4213]: Accepted publickey for alice from 10.0.0.2 port 40022 ssh2",
		"Oct 14 11:02:06 host sshd[4214]: Failed password for bob from not-an-ip port 1 ssh2",
		"Oct 14 11:02:07 host systemd[1]: Started Session 4 of user alice.",
	}, "\n")
	res, err := ParseReader(context.Background(), strings.NewReader(log), config.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Lines != 5 || len(res.Attempts) != 3 || res.Skipped != 1 {
		t.Fatalf("unexpected result lines=%d attempts=%d skipped=%d", res.Lines, len(res.Attempts), res.Skipped)
	}
	if !res.Attempts[2].Success || res.Attempts[2].Source != SourceBatch {
		t.Fatalf("unexpected attempt %+v", res.Attempts[2])
	}
	for _, a := range res.Attempts {
		if !a.Timestamp.IsZero() {
			t.Fatalf("expected arrival-time stamping by default")
		}
	}
}

func TestRESTAcceptsObjectAndArray(t *testing.T) {
	em, out := newTestEmitter(8)
	srv := httptest.NewServer(NewRESTServer(em, nil).Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/attempts", "application/json",
		strings.NewReader(`{"ip":"192.0.2.1","username":"bob","success":false,"port":22}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/attempts", "application/json",
		strings.NewReader(`[{"ip":"192.0.2.2","username":"a","success":true},{"username":"missing-ip"}]`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 attempts queued, got %d", len(out))
	}
	first := <-out
	if first.Source != SourceREST || first.IP != "192.0.2.1" {
		t.Fatalf("unexpected attempt %+v", first)
	}

	resp, err = http.Post(srv.URL+"/attempts", "application/json", strings.NewReader(`not json`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected health status %d", resp.StatusCode)
	}
}

func TestTailerFollowsAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "auth.log")
	if err := os.WriteFile(path, []byte(failedLine+"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	em, out := newTestEmitter(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tl := &tailer{path: path, em: em, poll: 10 * time.Millisecond}
	go tl.run(ctx)

	waitAttempt(t, out, "root")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, _ = f.WriteString("Oct 14 11:03:00 host sshd[9]: Failed password for guest ")
	_ = f.Sync()
	time.Sleep(50 * time.Millisecond)
	_, _ = f.WriteString("from 203.0.113.6 port 4000 ssh2\n")
	_ = f.Close()

	got := waitAttempt(t, out, "guest")
	if got.IP != "203.0.113.6" {
		t.Fatalf("expected the split line to be joined, got %+v", got)
	}
}

func waitAttempt(t *testing.T, out <-chan model.ConnectionAttempt, username string) model.ConnectionAttempt {
	t.Helper()
	select {
	case att := <-out:
		if att.Username != username {
			t.Fatalf("expected %s, got %+v", username, att)
		}
		return att
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", username)
	}
	return model.ConnectionAttempt{}
}

func TestSyslogUDPAndTCP(t *testing.T) {
	em, out := newTestEmitter(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	go serveUDP(ctx, pc, em, nil)
	udp, err := net.Dial("udp", pc.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial udp: %v", err)
	}
	defer udp.Close()
	_, _ = udp.Write([]byte("<38>" + failedLine))
	got := waitAttempt(t, out, "root")
	if got.Source != SourceSyslog {
		t.Fatalf("unexpected source %q", got.Source)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen tcp: %v", err)
	}
	go serveTCP(ctx, ln, em, nil)
	tcp, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial tcp: %v", err)
	}
	defer tcp.Close()
	_, _ = tcp.Write([]byte("Oct 14 11:05:00 host sshd[5]: Invalid user backup from 203.0.113.7 port 600\n"))
	waitAttempt(t, out, "backup")
}

func TestJournalArgs(t *testing.T) {
	got := strings.Join(journalArgs([]string{"ssh", "sshd"}), " ")
	if got != "-f -o json -n 0 -u ssh -u sshd" {
		t.Fatalf("unexpected args %q", got)
	}
}

func TestRunJournalReadsRecords(t *testing.T) {
	em, out := newTestEmitter(4)
	record := `{"MESSAGE":"Failed password for oracle from 192.0.2.44 port 22 ssh2","__REALTIME_TIMESTAMP":"1760439600000000"}`
	if err := runJournal(context.Background(), "sh", []string{"-c", "echo '" + record + "'"}, em); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := waitAttempt(t, out, "oracle")
	if got.Source != SourceJournal || got.IP != "192.0.2.44" {
		t.Fatalf("unexpected attempt %+v", got)
	}
}
