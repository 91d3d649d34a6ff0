package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/floodrescue/core/dispatch"
	"github.com/kilianp07/floodrescue/core/monitoring"
	coremqtt "github.com/kilianp07/floodrescue/core/mqtt"
	"github.com/kilianp07/floodrescue/core/notify"
	"github.com/kilianp07/floodrescue/infra/logger"
)

const defaultAcceptBuffer = 64

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker       string          `json:"broker"`
	ClientID     string          `json:"client_id"`
	Username     string          `json:"username"`
	Password     string          `json:"password"`
	UseTLS       bool            `json:"use_tls"`
	ClientCert   string          `json:"client_cert"`
	ClientKey    string          `json:"client_key"`
	CABundle     string          `json:"ca_bundle"`
	AuthMethod   string          `json:"auth_method"`
	QoS          map[string]byte `json:"qos"`
	LWTTopic     string          `json:"lwt_topic"`
	LWTPayload   string          `json:"lwt_payload"`
	LWTQoS       byte            `json:"lwt_qos"`
	LWTRetain    bool            `json:"lwt_retain"`
	MaxRetries   int             `json:"max_retries"`
	BackoffMS    int             `json:"backoff_ms"`
	AcceptBuffer int             `json:"accept_buffer"`
	TLSConfig    *tls.Config     `json:"-"`
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// PahoClient delivers mission offers to rescuer devices and turns their
// accept messages into dispatch.AcceptRequest values.
type PahoClient struct {
	cli        pahoClient
	qos        map[string]byte
	logger     logger.Logger
	maxRetries int
	backoff    time.Duration

	accepts chan dispatch.AcceptRequest
	mu      sync.Mutex
	closed  bool
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the MQTT broker and subscribes to accept messages.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffMS <= 0 {
		cfg.BackoffMS = 100
	}
	if cfg.AcceptBuffer <= 0 {
		cfg.AcceptBuffer = defaultAcceptBuffer
	}

	log := logger.New("mqtt_client")
	pc := &PahoClient{
		qos:        cfg.QoS,
		logger:     log,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		accepts:    make(chan dispatch.AcceptRequest, cfg.AcceptBuffer),
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		if token := c.Subscribe(coremqtt.AcceptFilter, pc.qosFor("accept"), pc.onAccept); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

func (p *PahoClient) qosFor(kind string) byte {
	if q, ok := p.qos[kind]; ok {
		return q
	}
	return 1
}

// Deliver publishes a mission offer on the rescuer's mission topic, retrying
// with exponential backoff until ctx expires.
func (p *PahoClient) Deliver(ctx context.Context, ref string, payload notify.MissionPayload) error {
	msg := coremqtt.MissionMessage{
		DeliveryID: uuid.NewString(),
		Mission:    payload,
		Text:       payload.Text(),
		SentAt:     time.Now().UnixMilli(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	topic := coremqtt.MissionTopic(ref)
	if err := p.publish(ctx, topic, p.qosFor("mission"), body); err != nil {
		monitoring.CaptureException(err, map[string]string{"module": "mqtt", "rescuer_ref": ref, "ticket_id": payload.TicketID})
		return err
	}
	p.logger.Infof("sent mission %s for ticket %s to %s", msg.DeliveryID, payload.TicketID, topic)
	return nil
}

func (p *PahoClient) publish(ctx context.Context, topic string, qos byte, body []byte) error {
	if !p.cli.IsConnected() {
		return coremqtt.ErrNotConnected
	}
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, false, body)
		select {
		case <-token.Done():
			publishErr = token.Error()
		case <-ctx.Done():
			return fmt.Errorf("publish %s: %w", topic, ctx.Err())
		}
		if publishErr == nil {
			return nil
		}
		p.logger.Errorf("publish attempt %d on %s failed: %v", attempt+1, topic, publishErr)
		if attempt == p.maxRetries {
			break
		}
		select {
		case <-time.After(p.backoff * time.Duration(1<<attempt)):
		case <-ctx.Done():
			return fmt.Errorf("publish %s: %w", topic, ctx.Err())
		}
	}
	return fmt.Errorf("publish %s: %w", topic, publishErr)
}

func (p *PahoClient) onAccept(_ paho.Client, msg paho.Message) {
	ref, ok := coremqtt.RefFromAcceptTopic(msg.Topic())
	if !ok {
		p.logger.Warnf("ignoring accept on unexpected topic %s", msg.Topic())
		return
	}
	var m coremqtt.AcceptMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		p.logger.Errorf("failed to decode accept from %s: %v", ref, err)
		return
	}
	if err := m.Validate(); err != nil {
		p.logger.Errorf("accept from %s: %v", ref, err)
		return
	}
	// The topic identifies the device; a payload naming another rescuer is
	// refused rather than trusted.
	if m.RescuerID != "" && m.RescuerID != ref {
		p.logger.Warnf("accept on %s names rescuer %s, refusing ticket %s", msg.Topic(), m.RescuerID, m.TicketID)
		m.RescuerID = ref
		go p.reply(ref, m, dispatch.AssignmentResult{Message: "rescuer id does not match topic"}, nil)
		return
	}
	m.RescuerID = ref
	req := dispatch.AcceptRequest{
		TicketID:  m.TicketID,
		RescuerID: m.RescuerID,
		Reply: func(res dispatch.AssignmentResult, err error) {
			p.reply(ref, m, res, err)
		},
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.accepts <- req:
		p.logger.Infof("received accept for ticket %s from %s", m.TicketID, m.RescuerID)
	default:
		p.logger.Errorf("accept queue full, dropping accept for ticket %s from %s", m.TicketID, m.RescuerID)
		go p.reply(ref, m, dispatch.AssignmentResult{Message: "server busy, retry"}, nil)
	}
}

func (p *PahoClient) reply(ref string, m coremqtt.AcceptMessage, res dispatch.AssignmentResult, err error) {
	r := coremqtt.AssignmentReply{
		TicketID:     m.TicketID,
		RescuerID:    m.RescuerID,
		Success:      res.Success,
		Message:      res.Message,
		TicketStatus: string(res.TicketStatus),
	}
	if err != nil {
		r.Success = false
		r.Message = "temporary failure, retry"
	}
	body, merr := json.Marshal(r)
	if merr != nil {
		p.logger.Errorf("encode assignment reply: %v", merr)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if perr := p.publish(ctx, coremqtt.AssignmentTopic(ref), p.qosFor("assignment"), body); perr != nil && !errors.Is(perr, coremqtt.ErrNotConnected) {
		monitoring.CaptureException(perr, map[string]string{"module": "mqtt", "rescuer_ref": ref, "ticket_id": m.TicketID})
	}
}

// Accepts returns the stream of accept requests received from devices.
func (p *PahoClient) Accepts() <-chan dispatch.AcceptRequest { return p.accepts }

// Disconnect gracefully closes the MQTT connection and the accept stream.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.accepts)
	}
	p.mu.Unlock()
}

var _ notify.Channel = (*PahoClient)(nil)
