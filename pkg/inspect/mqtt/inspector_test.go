// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

package mqtt

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/edgebird/wsbridge/pkg/handler"
	"github.com/edgebird/wsbridge/pkg/inspect"
)

// captureHandler records what the inspector reports and can veto or
// rewrite operations.
type captureHandler struct {
	handler.NoopHandler

	upgradeErr   error
	publishErr   error
	subscribeErr error

	upgradeCalled   bool
	onPublishCalled bool
	lastClientID    string
	lastUsername    string
	lastTopic       string
	lastPayload     []byte
	lastTopics      []string

	rewriteTopic string
	filterTopics []string
}

func (m *captureHandler) AuthUpgrade(ctx context.Context, hctx *handler.Context) error {
	m.upgradeCalled = true
	m.lastClientID = hctx.ClientID
	m.lastUsername = hctx.Username
	return m.upgradeErr
}

func (m *captureHandler) AuthPublish(ctx context.Context, hctx *handler.Context, topic *string, payload *[]byte) error {
	m.lastTopic = *topic
	m.lastPayload = append([]byte(nil), *payload...)
	if m.rewriteTopic != "" {
		*topic = m.rewriteTopic
	}
	return m.publishErr
}

func (m *captureHandler) AuthSubscribe(ctx context.Context, hctx *handler.Context, topics *[]string) error {
	m.lastTopics = append([]string(nil), *topics...)
	if m.filterTopics != nil {
		*topics = m.filterTopics
	}
	return m.subscribeErr
}

func (m *captureHandler) OnPublish(ctx context.Context, hctx *handler.Context, topic string, payload []byte) error {
	m.onPublishCalled = true
	return nil
}

func encodePacket(t *testing.T, pkt packets.ControlPacket) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := pkt.Write(&buf); err != nil {
		t.Fatalf("Failed to encode packet: %v", err)
	}
	return buf.Bytes()
}

func decodePacket(t *testing.T, data []byte) packets.ControlPacket {
	t.Helper()
	pkt, err := packets.ReadPacket(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Failed to decode packet: %v", err)
	}
	return pkt
}

func newConnect() *packets.ConnectPacket {
	cp := packets.NewControlPacket(packets.Connect).(*packets.ConnectPacket)
	cp.ProtocolName = "MQTT"
	cp.ProtocolVersion = 4
	cp.ClientIdentifier = "sensor-17"
	cp.UsernameFlag = true
	cp.Username = "edge"
	cp.PasswordFlag = true
	cp.Password = []byte("secret")
	cp.Keepalive = 30
	return cp
}

func TestInspectConnect(t *testing.T) {
	mock := &captureHandler{}
	hctx := &handler.Context{SessionID: "s1"}
	in := encodePacket(t, newConnect())

	insp := &Inspector{}
	out, err := insp.Inspect(context.Background(), in, inspect.Upstream, mock, hctx)
	if err != nil {
		t.Fatalf("Inspect() returned error: %v", err)
	}

	if !mock.upgradeCalled {
		t.Error("Expected AuthUpgrade to be called for CONNECT")
	}
	if mock.lastClientID != "sensor-17" {
		t.Errorf("Expected client ID sensor-17, got %q", mock.lastClientID)
	}
	if mock.lastUsername != "edge" {
		t.Errorf("Expected username edge, got %q", mock.lastUsername)
	}
	if hctx.Transport != "mqtt" {
		t.Errorf("Expected transport mqtt, got %q", hctx.Transport)
	}
	if string(hctx.Password) != "secret" {
		t.Errorf("Expected password in context, got %q", hctx.Password)
	}

	// Nothing modified: the re-encoded packet matches the input.
	if !bytes.Equal(out, in) {
		t.Error("Expected unmodified CONNECT to round-trip byte-identical")
	}
}

func TestInspectConnectVeto(t *testing.T) {
	mock := &captureHandler{upgradeErr: errors.New("bad credentials")}
	in := encodePacket(t, newConnect())

	insp := &Inspector{}
	_, err := insp.Inspect(context.Background(), in, inspect.Upstream, mock, &handler.Context{})
	if err == nil {
		t.Fatal("Expected vetoed CONNECT to fail")
	}
}

func TestInspectPublish(t *testing.T) {
	pp := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
	pp.TopicName = "sensors/1"
	pp.Payload = []byte("20.5")
	in := encodePacket(t, pp)

	mock := &captureHandler{}
	insp := &Inspector{}
	out, err := insp.Inspect(context.Background(), in, inspect.Upstream, mock, &handler.Context{})
	if err != nil {
		t.Fatalf("Inspect() returned error: %v", err)
	}

	if mock.lastTopic != "sensors/1" {
		t.Errorf("Expected topic sensors/1, got %q", mock.lastTopic)
	}
	if string(mock.lastPayload) != "20.5" {
		t.Errorf("Expected payload 20.5, got %q", mock.lastPayload)
	}
	if !mock.onPublishCalled {
		t.Error("Expected OnPublish to be called")
	}
	if !bytes.Equal(out, in) {
		t.Error("Expected unmodified PUBLISH to round-trip byte-identical")
	}
}

func TestInspectPublishRewrite(t *testing.T) {
	pp := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
	pp.TopicName = "sensors/1"
	pp.Payload = []byte("20.5")
	in := encodePacket(t, pp)

	mock := &captureHandler{rewriteTopic: "tenant-a/sensors/1"}
	insp := &Inspector{}
	out, err := insp.Inspect(context.Background(), in, inspect.Upstream, mock, &handler.Context{})
	if err != nil {
		t.Fatalf("Inspect() returned error: %v", err)
	}

	rewritten := decodePacket(t, out).(*packets.PublishPacket)
	if rewritten.TopicName != "tenant-a/sensors/1" {
		t.Errorf("Expected rewritten topic, got %q", rewritten.TopicName)
	}
	if string(rewritten.Payload) != "20.5" {
		t.Errorf("Expected payload preserved, got %q", rewritten.Payload)
	}
}

func TestInspectPublishVeto(t *testing.T) {
	pp := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
	pp.TopicName = "forbidden"
	in := encodePacket(t, pp)

	mock := &captureHandler{publishErr: errors.New("not allowed")}
	insp := &Inspector{}
	if _, err := insp.Inspect(context.Background(), in, inspect.Upstream, mock, &handler.Context{}); err == nil {
		t.Fatal("Expected vetoed PUBLISH to fail")
	}
}

func TestInspectSubscribeFilter(t *testing.T) {
	sp := packets.NewControlPacket(packets.Subscribe).(*packets.SubscribePacket)
	sp.MessageID = 1
	sp.Topics = []string{"sensors/#", "admin/#"}
	sp.Qoss = []byte{0, 1}
	in := encodePacket(t, sp)

	mock := &captureHandler{filterTopics: []string{"sensors/#"}}
	insp := &Inspector{}
	out, err := insp.Inspect(context.Background(), in, inspect.Upstream, mock, &handler.Context{})
	if err != nil {
		t.Fatalf("Inspect() returned error: %v", err)
	}

	if len(mock.lastTopics) != 2 {
		t.Errorf("Expected 2 requested topics, got %d", len(mock.lastTopics))
	}

	filtered := decodePacket(t, out).(*packets.SubscribePacket)
	if len(filtered.Topics) != 1 || filtered.Topics[0] != "sensors/#" {
		t.Errorf("Expected filtered topics [sensors/#], got %v", filtered.Topics)
	}
	if len(filtered.Qoss) != 1 {
		t.Errorf("Expected QoS list trimmed to 1, got %d", len(filtered.Qoss))
	}
}

func TestInspectMultiplePackets(t *testing.T) {
	// One WebSocket message may carry several control packets.
	var in []byte
	in = append(in, encodePacket(t, newConnect())...)
	in = append(in, encodePacket(t, packets.NewControlPacket(packets.Pingreq))...)

	mock := &captureHandler{}
	insp := &Inspector{}
	out, err := insp.Inspect(context.Background(), in, inspect.Upstream, mock, &handler.Context{})
	if err != nil {
		t.Fatalf("Inspect() returned error: %v", err)
	}
	if !mock.upgradeCalled {
		t.Error("Expected CONNECT in batch to be authorized")
	}
	if !bytes.Equal(out, in) {
		t.Error("Expected batch to round-trip byte-identical")
	}
}

func TestInspectDownstreamPublish(t *testing.T) {
	pp := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
	pp.TopicName = "sensors/1"
	pp.Payload = []byte("20.5")
	in := encodePacket(t, pp)

	mock := &captureHandler{}
	insp := &Inspector{}
	if _, err := insp.Inspect(context.Background(), in, inspect.Downstream, mock, &handler.Context{}); err != nil {
		t.Fatalf("Inspect() returned error: %v", err)
	}
	if len(mock.lastTopics) != 1 || mock.lastTopics[0] != "sensors/1" {
		t.Errorf("Expected downstream publish to pass subscribe auth, got %v", mock.lastTopics)
	}

	// Veto drops the session.
	mock = &captureHandler{subscribeErr: errors.New("not yours")}
	if _, err := insp.Inspect(context.Background(), in, inspect.Downstream, mock, &handler.Context{}); err == nil {
		t.Fatal("Expected vetoed downstream publish to fail")
	}
}

func TestInspectMalformed(t *testing.T) {
	insp := &Inspector{}
	// Reserved packet type 15.
	if _, err := insp.Inspect(context.Background(), []byte{0xF0, 0x00}, inspect.Upstream, &captureHandler{}, &handler.Context{}); err == nil {
		t.Fatal("Expected malformed packet to fail")
	}
}
