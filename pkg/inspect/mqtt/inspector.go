// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

package mqtt

import (
	"bytes"
	"context"
	"fmt"

	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/edgebird/wsbridge/pkg/handler"
	"github.com/edgebird/wsbridge/pkg/inspect"
)

// Inspector implements inspect.Inspector for MQTT over WebSocket.
// Per the MQTT-over-WebSocket binding, one binary message carries one or
// more complete MQTT control packets; the inspector walks them all.
type Inspector struct{}

var _ inspect.Inspector = (*Inspector)(nil)

// Inspect decodes every MQTT control packet in the payload, authorizes
// it, and re-encodes the possibly modified packets.
// - Upstream (client→backend): extracts auth, authorizes, may modify
// - Downstream (backend→client): filters broker-initiated publishes
func (p *Inspector) Inspect(ctx context.Context, payload []byte, dir inspect.Direction, h handler.Handler, hctx *handler.Context) ([]byte, error) {
	r := bytes.NewReader(payload)
	var out bytes.Buffer

	for r.Len() > 0 {
		pkt, err := packets.ReadPacket(r)
		if err != nil {
			return nil, fmt.Errorf("malformed mqtt packet: %w", err)
		}

		if dir == inspect.Upstream {
			err = p.inspectUpstream(ctx, pkt, h, hctx)
		} else {
			err = p.inspectDownstream(ctx, pkt, h, hctx)
		}
		if err != nil {
			return nil, err
		}

		if err := pkt.Write(&out); err != nil {
			return nil, fmt.Errorf("failed to reencode packet: %w", err)
		}
	}

	return out.Bytes(), nil
}

// inspectUpstream processes client→backend packets.
func (p *Inspector) inspectUpstream(ctx context.Context, pkt packets.ControlPacket, h handler.Handler, hctx *handler.Context) error {
	switch packet := pkt.(type) {
	case *packets.ConnectPacket:
		return p.inspectConnect(ctx, packet, h, hctx)

	case *packets.PublishPacket:
		return p.inspectPublish(ctx, packet, h, hctx)

	case *packets.SubscribePacket:
		return p.inspectSubscribe(ctx, packet, h, hctx)

	case *packets.UnsubscribePacket:
		return p.inspectUnsubscribe(ctx, packet, h, hctx)

	case *packets.DisconnectPacket:
		return h.OnDisconnect(ctx, hctx)

	default:
		// PINGREQ, PUBACK, PUBREC, PUBREL, PUBCOMP, etc. are forwarded as-is
		return nil
	}
}

// inspectDownstream processes backend→client packets. Broker-initiated
// publishes (retained messages, subscription deliveries) run through
// subscribe authorization so the handler can veto or redirect them.
func (p *Inspector) inspectDownstream(ctx context.Context, pkt packets.ControlPacket, h handler.Handler, hctx *handler.Context) error {
	packet, ok := pkt.(*packets.PublishPacket)
	if !ok {
		return nil
	}

	topics := []string{packet.TopicName}
	if err := h.AuthSubscribe(ctx, hctx, &topics); err != nil {
		return err
	}
	if len(topics) > 0 {
		packet.TopicName = topics[0]
	}
	return nil
}

// inspectConnect extracts MQTT credentials and re-authorizes the
// session with them. The upgrade already passed AuthUpgrade with HTTP
// credentials; CONNECT supplies the richer MQTT identity.
func (p *Inspector) inspectConnect(ctx context.Context, packet *packets.ConnectPacket, h handler.Handler, hctx *handler.Context) error {
	hctx.ClientID = packet.ClientIdentifier
	hctx.Username = packet.Username
	hctx.Password = packet.Password
	hctx.Transport = "mqtt"

	if err := h.AuthUpgrade(ctx, hctx); err != nil {
		return fmt.Errorf("connect authorization failed: %w", err)
	}

	// Write back potentially modified credentials
	packet.ClientIdentifier = hctx.ClientID
	packet.Username = hctx.Username
	packet.Password = hctx.Password

	return nil
}

// inspectPublish processes MQTT PUBLISH packets.
func (p *Inspector) inspectPublish(ctx context.Context, packet *packets.PublishPacket, h handler.Handler, hctx *handler.Context) error {
	topic := packet.TopicName
	payload := packet.Payload

	// Authorize publish (allows modification)
	if err := h.AuthPublish(ctx, hctx, &topic, &payload); err != nil {
		return fmt.Errorf("publish authorization failed: %w", err)
	}

	packet.TopicName = topic
	packet.Payload = payload

	// Notification failures are not veto-worthy
	if err := h.OnPublish(ctx, hctx, topic, payload); err != nil {
		return nil
	}

	return nil
}

// inspectSubscribe processes MQTT SUBSCRIBE packets.
func (p *Inspector) inspectSubscribe(ctx context.Context, packet *packets.SubscribePacket, h handler.Handler, hctx *handler.Context) error {
	topics := make([]string, len(packet.Topics))
	copy(topics, packet.Topics)

	// Authorize subscription (allows filtering)
	if err := h.AuthSubscribe(ctx, hctx, &topics); err != nil {
		return fmt.Errorf("subscribe authorization failed: %w", err)
	}

	if len(topics) != len(packet.Topics) {
		// The QoS list must stay in step with the filtered topics.
		packet.Topics = topics
		if len(packet.Qoss) > len(topics) {
			packet.Qoss = packet.Qoss[:len(topics)]
		}
		for len(packet.Qoss) < len(topics) {
			packet.Qoss = append(packet.Qoss, 0)
		}
	} else {
		packet.Topics = topics
	}

	if err := h.OnSubscribe(ctx, hctx, topics); err != nil {
		return nil
	}

	return nil
}

// inspectUnsubscribe processes MQTT UNSUBSCRIBE packets.
func (p *Inspector) inspectUnsubscribe(ctx context.Context, packet *packets.UnsubscribePacket, h handler.Handler, hctx *handler.Context) error {
	topics := make([]string, len(packet.Topics))
	copy(topics, packet.Topics)

	if err := h.OnUnsubscribe(ctx, hctx, topics); err != nil {
		return nil
	}

	return nil
}
