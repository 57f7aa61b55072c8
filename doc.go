// Package bananastore is the Go client SDK for the BananaStore image
// generation backend. It maintains a single persistent WebSocket to the
// backend and multiplexes every request over it, reconnecting with
// backoff whenever the transport drops.
//
// Construct a client with Connect and call the typed action methods:
//
//	client, err := bananastore.Connect(ctx, "wss://example.com/ws")
//	if err != nil { ... }
//	defer client.Close(ctx)
//
//	result, err := client.Generate(ctx, bananastore.GenerateRequest{
//		Provider:    "openai",
//		Description: "a cat",
//		Quality:     "high",
//		Ratio:       "1:1",
//		Format:      "Photo",
//	})
//
// Session tokens are issued by the server on connect and can be cached
// per origin via pkg/tokenstore so a restarted process resumes its
// session.
package bananastore
