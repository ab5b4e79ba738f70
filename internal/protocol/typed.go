package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/wagiedev/unity-bridge-go/internal/message"
)

// RequestAs sends a request and decodes the Response payload into a T.
func RequestAs[T any](
	ctx context.Context,
	c *Controller,
	channel string,
	typ message.Type,
	data any,
) (T, error) {
	var zero T

	resp, err := c.Request(ctx, channel, typ, data)
	if err != nil {
		return zero, err
	}

	return message.DataAs[T](resp)
}

// HandleRequest adapts a typed function into a Handler.
//
// The request payload is validated against the JSON schema inferred from Req
// and decoded into it. The returned value becomes the Response payload. A
// validation, decode or function error is a handler fault and produces an
// Error reply. When no schema can be inferred for Req, payloads are only
// decoded and the first delivery logs a warning.
func HandleRequest[Req, Resp any](fn func(ctx context.Context, req Req) (Resp, error)) Handler {
	schema, schemaErr := inferSchema[Req]()

	var warnOnce sync.Once

	return HandlerFunc(func(ctx context.Context, h *Handle) error {
		if schemaErr != nil {
			warnOnce.Do(func() {
				h.log.Warn("Request payloads are not validated", "error", schemaErr)
			})
		}

		req, err := decodeRequest[Req](h.Message(), schema)
		if err != nil {
			return err
		}

		resp, err := fn(ctx, req)
		if err != nil {
			return err
		}

		if !h.IsRequest() {
			return nil
		}

		return h.SendResponse(resp)
	})
}

// inferSchema returns the resolved schema for T.
func inferSchema[T any]() (*jsonschema.Resolved, error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("infer schema for %v: %w", reflect.TypeFor[T](), err)
	}

	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve schema for %v: %w", reflect.TypeFor[T](), err)
	}

	return resolved, nil
}

func decodeRequest[T any](msg message.Message, schema *jsonschema.Resolved) (T, error) {
	var req T

	if len(msg.Data) == 0 {
		return req, nil
	}

	if schema != nil {
		var instance any
		if err := json.Unmarshal(msg.Data, &instance); err != nil {
			return req, fmt.Errorf("invalid request data for %q: %w", msg.ID, err)
		}

		if err := schema.Validate(instance); err != nil {
			return req, fmt.Errorf("invalid request data for %q: %w", msg.ID, err)
		}
	}

	return message.DataAs[T](msg)
}
