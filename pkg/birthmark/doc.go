// Package birthmark is the library API for recording and verifying media
// on a Birthmark ledger. It wraps the internal fingerprint, ledger,
// capture and batch packages behind one Client.
//
// # Backends
//
// The memory backend lives inside the Client's process: records vanish
// when the Client is dropped, and two Clients never see each other's
// records. To share a ledger, run `birthmark serve` and point every
// Client at it with the gateway backend.
//
// # Concurrency
//
// A Client is safe for concurrent use. Record and Capture write media and
// sidecar files atomically; concurrent writes to the same output path
// leave one of them in place.
//
// # Usage
//
//	client, err := birthmark.New(birthmark.Options{
//	    SubmitterID:    "camera_001",
//	    Backend:        "gateway",
//	    BackendOptions: map[string]string{"endpoint": "http://127.0.0.1:8645"},
//	})
//	res, err := client.Capture(ctx, frame, "/photos/IMG_0001.raw", nil)
//
//	// later, anywhere with access to the same ledger
//	v, err := client.Verify(ctx, "/photos/IMG_0001.raw")
//	if v.Authentic { ... }
package birthmark
