package capture

import (
	"errors"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"sessiond/internal/logging"
)

type fakeToken struct {
	err     error
	timeout bool
	done    chan struct{}
}

func newFakeToken(err error) *fakeToken {
	done := make(chan struct{})
	close(done)
	return &fakeToken{err: err, done: done}
}

func (t *fakeToken) Wait() bool { return !t.timeout }

func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }

func (t *fakeToken) Done() <-chan struct{} {
	if t.timeout {
		return make(chan struct{})
	}
	return t.done
}

func (t *fakeToken) Error() error { return t.err }

type fakeClient struct {
	connected  bool
	published  []string
	publishErr map[string]error
	ackTimeout bool
}

func (c *fakeClient) Connect() mqtt.Token {
	c.connected = true
	return newFakeToken(nil)
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload any) mqtt.Token {
	c.published = append(c.published, topic+"="+payload.(string))
	if c.ackTimeout {
		return &fakeToken{timeout: true}
	}
	if err, ok := c.publishErr[topic]; ok {
		return newFakeToken(err)
	}
	return newFakeToken(nil)
}

func (c *fakeClient) Disconnect(uint) { c.connected = false }

func (c *fakeClient) IsConnectionOpen() bool { return c.connected }

func newTestController(client *fakeClient) *Controller {
	return &Controller{
		client:      client,
		topicPrefix: "frigate",
		cameras: map[string]string{
			"chamber_0": "pi_cam_0",
			"chamber_1": "pi_cam_1",
		},
		ackTimeout: 10 * time.Millisecond,
		logger:     logging.NewNop(),
	}
}

func TestSetRecordingPublishesCommand(t *testing.T) {
	client := &fakeClient{connected: true}
	ctrl := newTestController(client)

	if err := ctrl.SetRecording("pi_cam_0", true); err != nil {
		t.Fatalf("SetRecording: %v", err)
	}
	if err := ctrl.SetRecording("pi_cam_0", false); err != nil {
		t.Fatalf("SetRecording: %v", err)
	}

	want := []string{
		"frigate/pi_cam_0/recordings/set=ON",
		"frigate/pi_cam_0/recordings/set=OFF",
	}
	if len(client.published) != 2 || client.published[0] != want[0] || client.published[1] != want[1] {
		t.Fatalf("unexpected publishes: %v", client.published)
	}
}

func TestSetRecordingRequiresConnection(t *testing.T) {
	ctrl := newTestController(&fakeClient{connected: false})

	if err := ctrl.SetRecording("pi_cam_0", true); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestSetRecordingAckTimeout(t *testing.T) {
	ctrl := newTestController(&fakeClient{connected: true, ackTimeout: true})

	err := ctrl.SetRecording("pi_cam_0", true)
	if err == nil || !strings.Contains(err.Error(), "not acknowledged") {
		t.Fatalf("expected ack timeout error, got %v", err)
	}
}

func TestStopAllRecordingSweepsEveryCamera(t *testing.T) {
	client := &fakeClient{
		connected: true,
		publishErr: map[string]error{
			"frigate/pi_cam_0/recordings/set": errors.New("broker hiccup"),
		},
	}
	ctrl := newTestController(client)

	err := ctrl.StopAllRecording()
	if err == nil {
		t.Fatal("expected joined error from failing camera")
	}
	if !strings.Contains(err.Error(), "chamber_0") {
		t.Fatalf("error should name the failing chamber: %v", err)
	}

	// The second camera must still have been commanded.
	if len(client.published) != 2 {
		t.Fatalf("expected both cameras commanded, got %v", client.published)
	}
	if client.published[1] != "frigate/pi_cam_1/recordings/set=OFF" {
		t.Fatalf("unexpected second publish %q", client.published[1])
	}
}

func TestStopAllRecordingCleanRun(t *testing.T) {
	client := &fakeClient{connected: true}
	ctrl := newTestController(client)

	if err := ctrl.StopAllRecording(); err != nil {
		t.Fatalf("StopAllRecording: %v", err)
	}
	if len(client.published) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(client.published))
	}
}

func TestCameraFor(t *testing.T) {
	ctrl := newTestController(&fakeClient{})

	camera, err := ctrl.CameraFor(1)
	if err != nil {
		t.Fatalf("CameraFor: %v", err)
	}
	if camera != "pi_cam_1" {
		t.Fatalf("expected pi_cam_1, got %q", camera)
	}

	if _, err := ctrl.CameraFor(9); err == nil {
		t.Fatal("expected error for unmapped chamber")
	}
}
