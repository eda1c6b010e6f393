// Package testutil provides test doubles and container helpers for semlink tests.
//
// # In-memory doubles
//
// MemoryBroker implements broker.Dialer. Every Dial opens a MemoryConn; publishes are
// routed to every open connection holding a matching subscription, so a manager can be
// driven end to end without a network:
//
//	mem := testutil.NewMemoryBroker()
//	mgr, _ := broker.New(broker.DefaultConfig(), mem)
//	_ = mgr.RegisterHandler(ctx, "a/+", handler)
//	_ = mgr.Connect()
//	mem.Inject("a/b", []byte("hi"))   // server-side delivery
//	mem.Drop(errors.New("reset"))     // server-side connection loss
//
// Failure injection: FailDials, BlockDials/UnblockDials, SetSubscribeError and
// SetPublishError.
//
// MemoryKV is an in-memory key-value server whose Dial has the kvstore.DialFunc
// signature. It supports TTLs against an injectable clock, ping and dial failures, and
// OverlapPages, which makes Scan return keys twice across page boundaries the way a
// rehashing server can.
//
// # Containers
//
// StartNATS, StartMosquitto and StartRedis run real servers with testcontainers-go and
// return their URL, terminating the container on test cleanup. Integration tests call
// them behind testing.Short():
//
//	if testing.Short() {
//	    t.Skip("skipping integration test")
//	}
//	url := testutil.StartNATS(t, testutil.WithJetStream())
//
// All doubles are safe for concurrent use.
package testutil
