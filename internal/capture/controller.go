package capture

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"sessiond/internal/config"
	"sessiond/internal/logging"
)

// commandAckTimeout bounds how long a recording command waits for the broker
// acknowledgement before it is reported as failed.
const commandAckTimeout = 5 * time.Second

// ErrNotConnected is returned when a recording command is attempted without a
// live broker connection.
var ErrNotConnected = errors.New("mqtt broker not connected")

// commandClient is the slice of the MQTT client the controller uses.
type commandClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Disconnect(quiesce uint)
	IsConnectionOpen() bool
}

// Controller publishes recording commands for the recorder's cameras.
type Controller struct {
	client      commandClient
	topicPrefix string
	cameras     map[string]string
	ackTimeout  time.Duration
	logger      *slog.Logger
}

// NewController builds a controller from the broker and camera configuration.
// The underlying client reconnects automatically after broker restarts.
func NewController(cfg *config.Config, logger *slog.Logger) *Controller {
	log := logging.NewComponentLogger(logger, "recording-controller")

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerAddr()).
		SetClientID(cfg.MQTT.ClientID).
		SetKeepAlive(60 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		log.Info("connected to mqtt broker", logging.String("broker", cfg.BrokerAddr()))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost, auto-reconnect active", logging.Error(err))
	}

	return &Controller{
		client:      mqtt.NewClient(opts),
		topicPrefix: cfg.MQTT.TopicPrefix,
		cameras:     cfg.Cameras,
		ackTimeout:  commandAckTimeout,
		logger:      log,
	}
}

// Connect establishes the broker connection, waiting up to the ack timeout
// for the handshake to finish.
func (c *Controller) Connect(ctx context.Context) error {
	token := c.client.Connect()
	if !waitToken(ctx, token, c.ackTimeout) {
		return fmt.Errorf("mqtt connect timed out after %s", c.ackTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Disconnect closes the broker connection, allowing in-flight messages a
// short grace period.
func (c *Controller) Disconnect() {
	c.client.Disconnect(250)
}

// Connected reports whether the broker connection is currently open.
func (c *Controller) Connected() bool {
	return c.client.IsConnectionOpen()
}

// CameraFor resolves a chamber number to its configured camera name.
func (c *Controller) CameraFor(chamber int) (string, error) {
	key := fmt.Sprintf("chamber_%d", chamber)
	camera, ok := c.cameras[key]
	if !ok {
		return "", fmt.Errorf("no camera configured for chamber %d", chamber)
	}
	return camera, nil
}

// SetRecording toggles recording for one camera. The command is published at
// QoS 1 and the call blocks until the broker acknowledges it or the ack
// timeout expires. A successful return means the broker accepted the
// command, not that the recorder acted on it.
func (c *Controller) SetRecording(camera string, enable bool) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	payload := "OFF"
	if enable {
		payload = "ON"
	}
	topic := fmt.Sprintf("%s/%s/recordings/set", c.topicPrefix, camera)

	token := c.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(c.ackTimeout) {
		return fmt.Errorf("publish to %s not acknowledged within %s", topic, c.ackTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	c.logger.Info("recording command published",
		logging.String("topic", topic),
		logging.String("payload", payload),
	)
	return nil
}

// StopAllRecording disables recording on every configured camera. Every
// camera is attempted even when earlier ones fail; the joined error reports
// all failures.
func (c *Controller) StopAllRecording() error {
	keys := make([]string, 0, len(c.cameras))
	for key := range c.cameras {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var errs []error
	for _, key := range keys {
		camera := c.cameras[key]
		if err := c.SetRecording(camera, false); err != nil {
			c.logger.Error("failed to stop recording",
				logging.String("chamber", key),
				logging.String(logging.FieldCamera, camera),
				logging.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s (%s): %w", key, camera, err))
		}
	}
	return errors.Join(errs...)
}

// waitToken waits for a token with a deadline, returning early when the
// context is cancelled.
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case <-token.Done():
		return true
	case <-deadline.C:
		return false
	case <-ctx.Done():
		return false
	}
}
