// Package unitybridge implements a correlated message protocol between a host
// application and an embedded engine that exchange opaque strings.
//
// A wire string that starts with the prefix "@UnityMessage@" carries a JSON
// envelope addressed to a named channel. Anything else is plain text and is
// passed through to plain-text subscribers unchanged. On top of this the
// bridge offers fire-and-forget messages, requests that are answered exactly
// once with a response, an error or a cancellation, and cancellation of
// requests in either direction.
//
// # Basic Usage
//
// Start a bridge to the engine subprocess and issue a request:
//
//	b := unitybridge.NewBridge(
//	    unitybridge.WithEnginePath("/opt/game/engine"),
//	    unitybridge.WithLogger(slog.Default()),
//	)
//	if err := b.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close()
//
//	resp, err := b.Request(ctx, "scene", unitybridge.MessageTypeRequest,
//	    map[string]string{"name": "Level1"})
//
// # Handling Messages
//
// Subscribe before Start so that no early message is missed. A handler that
// returns an error or panics is isolated: the peer gets a single Error reply
// for a request and dispatch continues.
//
//	b.SubscribeFunc("echo", func(ctx context.Context, h *unitybridge.Handle) error {
//	    return h.SendResponse(h.Message().Data)
//	})
//
// Typed handlers validate the payload against a schema inferred from the
// request type:
//
//	b.Subscribe("load", unitybridge.HandleRequest(
//	    func(ctx context.Context, req LoadRequest) (LoadResponse, error) {
//	        return LoadResponse{Loaded: true}, nil
//	    }))
//
// # Cancellation
//
// A request is bound to the context it was issued with. When the context
// ends first, the request settles as cancelled and a Cancel is sent to the
// peer. On the receiving side the handle's context is cancelled; a handler
// that gives up sends a Canceled reply, or gets one sent for it.
//
// # Transports
//
// The engine subprocess speaks one JSON string literal per line over stdio.
// WithWebSocketURL selects a websocket carrying one text frame per wire
// string, and WithTransport injects any Transport, such as one end of
// NewPipe.
//
// # Logging
//
// The bridge uses log/slog. Without WithLogger it is silent.
package unitybridge
