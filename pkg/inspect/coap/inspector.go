// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

package coap

import (
	"context"
	"fmt"
	"strings"

	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/message/pool"
	"github.com/plgd-dev/go-coap/v3/udp/coder"

	"github.com/edgebird/wsbridge/pkg/handler"
	"github.com/edgebird/wsbridge/pkg/inspect"
)

// Inspector implements inspect.Inspector for CoAP carried in WebSocket
// messages, one datagram-framed CoAP message per payload. It extracts
// auth and authorizes operations but forwards payloads unmodified.
type Inspector struct{}

var _ inspect.Inspector = (*Inspector)(nil)

// Inspect decodes the payload as one CoAP message and authorizes it.
// Downstream messages are forwarded as-is.
func (p *Inspector) Inspect(ctx context.Context, payload []byte, dir inspect.Direction, h handler.Handler, hctx *handler.Context) ([]byte, error) {
	if dir == inspect.Downstream {
		return payload, nil
	}

	msg := pool.NewMessage(ctx)
	defer msg.Reset()

	if _, err := msg.UnmarshalWithDecoder(coder.DefaultCoder, payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal coap message: %w", err)
	}

	if err := p.inspectUpstream(ctx, msg, h, hctx); err != nil {
		return nil, err
	}

	return payload, nil
}

// inspectUpstream processes client→backend CoAP messages.
func (p *Inspector) inspectUpstream(ctx context.Context, msg *pool.Message, h handler.Handler, hctx *handler.Context) error {
	hctx.Transport = "coap"

	// Auth rides in a URI-Query option: ?auth=<key>
	if authKey := extractAuthFromQuery(msg); authKey != "" {
		hctx.Password = []byte(authKey)
	}

	path, err := msg.Options().Path()
	if err != nil {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	if err := h.AuthUpgrade(ctx, hctx); err != nil {
		return fmt.Errorf("session authorization failed: %w", err)
	}

	switch msg.Code() {
	case codes.POST, codes.PUT:
		// POST/PUT is treated as publish
		payload, err := msg.ReadBody()
		if err != nil {
			payload = nil
		}
		if err := h.AuthPublish(ctx, hctx, &path, &payload); err != nil {
			return fmt.Errorf("publish authorization failed: %w", err)
		}
		_ = h.OnPublish(ctx, hctx, path, payload)

	case codes.GET:
		// GET with Observe 0 registers a subscription
		obs, err := msg.Options().Observe()
		if err == nil && obs == 0 {
			topics := []string{path}
			if err := h.AuthSubscribe(ctx, hctx, &topics); err != nil {
				return fmt.Errorf("subscribe authorization failed: %w", err)
			}
			_ = h.OnSubscribe(ctx, hctx, topics)
		}
	}

	return nil
}

// extractAuthFromQuery extracts the auth parameter from URI-Query
// options.
func extractAuthFromQuery(msg *pool.Message) string {
	queries, err := msg.Options().Queries()
	if err != nil {
		return ""
	}

	for _, query := range queries {
		if value, ok := strings.CutPrefix(query, "auth="); ok {
			return value
		}
	}

	return ""
}
