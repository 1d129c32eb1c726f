// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc/metadata"
)

const (
	RequestKey = "zaptable-request-id"
)

type RequestID struct{}

func WithUUID(c context.Context) (context.Context, string) {
	if id, ok := c.Value(RequestID{}).(string); ok && id != "" {
		return c, id
	}
	newID := uuid.New().String()
	c = context.WithValue(c, RequestID{}, newID)
	return c, newID
}

func FromUUID(c context.Context, reqID string) context.Context {
	return context.WithValue(c, RequestID{}, reqID)
}

// ID returns the request id carried by c, or "".
func ID(c context.Context) string {
	id, _ := c.Value(RequestID{}).(string)
	return id
}

// Outgoing attaches a request id to the outgoing gRPC metadata of c,
// generating one if c has none.
func Outgoing(c context.Context) context.Context {
	c, id := WithUUID(c)
	return metadata.AppendToOutgoingContext(c, RequestKey, id)
}
