package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/hyperjump/shotsearch/internal/models"
)

func startTestNATS(t *testing.T) *nats.Conn {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := Connect(srv.ClientURL(), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return nc
}

type fakeIngester struct {
	err error
}

func (f *fakeIngester) Ingest(ctx context.Context, m *models.Manifest) (*models.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Job{ID: m.JobID, VideoName: m.VideoName, Status: models.JobDone, ShotCount: len(m.Segments)}, nil
}

func waitEvent(t *testing.T, ch chan JobEvent) JobEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for job event")
	}
	return JobEvent{}
}

func TestConsumer_Done(t *testing.T) {
	nc := startTestNATS(t)
	c := NewConsumer(nc, "", &fakeIngester{})
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	done := make(chan JobEvent, 1)
	sub, err := Subscribe(nc, c.DoneSubject(), "", func(ctx context.Context, ev JobEvent) { done <- ev }, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	m := &models.Manifest{JobID: "job-1", VideoName: "news.mp4", Segments: make([]models.DetectedSegment, 2)}
	if err := Submit(context.Background(), nc, DefaultSubject, m); err != nil {
		t.Fatal(err)
	}
	ev := waitEvent(t, done)
	if ev.Job == nil || ev.Job.ID != "job-1" || ev.Job.ShotCount != 2 || ev.Error != "" {
		t.Errorf("event = %+v", ev)
	}
}

func TestConsumer_Failed(t *testing.T) {
	nc := startTestNATS(t)
	c := NewConsumer(nc, "jobs", &fakeIngester{err: errors.New("no frames")})
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	failed := make(chan JobEvent, 1)
	sub, err := Subscribe(nc, "jobs.failed", "", func(ctx context.Context, ev JobEvent) { failed <- ev }, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	if err := Submit(context.Background(), nc, "jobs", &models.Manifest{JobID: "job-2", VideoName: "v"}); err != nil {
		t.Fatal(err)
	}
	ev := waitEvent(t, failed)
	if ev.Error != "no frames" || ev.Job.Status != models.JobFailed || ev.Job.ID != "job-2" {
		t.Errorf("event = %+v", ev)
	}
}

func TestSubscribe_Malformed(t *testing.T) {
	nc := startTestNATS(t)
	bad := make(chan error, 1)
	sub, err := Subscribe(nc, "raw", "", func(ctx context.Context, m models.Manifest) {
		t.Error("handler must not run for malformed data")
	}, func(msg *nats.Msg, err error) { bad <- err })
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	if err := nc.Publish("raw", []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-bad:
		if err == nil {
			t.Error("expected decode error")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout")
	}
}

func TestHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{Subject: "x"}
	c := (*headerCarrier)(msg)
	if c.Get("k") != "" || c.Keys() != nil {
		t.Error("empty carrier should have no keys")
	}
	c.Set("k", "v")
	if c.Get("k") != "v" || len(c.Keys()) != 1 {
		t.Errorf("carrier = %v", msg.Header)
	}
}
