package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/NotCoffee418/iec62056_exporter/pkg/iec62056"
	"github.com/NotCoffee418/iec62056_exporter/pkg/interpreter"
	"github.com/NotCoffee418/iec62056_exporter/pkg/session"
	"github.com/NotCoffee418/iec62056_exporter/pkg/transport/transporttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const identification = "ACME5E1\r\n"

var fastRetry = session.RetryPolicy{
	MaxAttempts: 5,
	BaseDelay:   time.Millisecond,
	MaxDelay:    5 * time.Millisecond,
}

var handshakeOps = []string{
	"baud 300",
	`write "/?!\r\n"`,
	"flush",
	`read '/'`,
	`read '\n'`,
}

type recorder struct {
	readings   []interpreter.Reading
	identities []session.Identity
	handshakes []error
	ends       int
}

func (r *recorder) ObserveSessionEnd() {
	r.ends++
}

func (r *recorder) Observe(code, content string) {
	r.readings = append(r.readings, interpreter.Reading{Code: code, Content: content})
}

func (r *recorder) ObserveIdentity(id session.Identity) {
	r.identities = append(r.identities, id)
}

func (r *recorder) ObserveHandshake(s *iec62056.Session, err error) {
	if err == nil && s == nil {
		err = errors.New("nil session without error")
	}
	r.handshakes = append(r.handshakes, err)
}

// run drives the fake until its script is exhausted.
func run(t *testing.T, fake *transporttest.Fake, retry session.RetryPolicy, sinks ...session.Sink) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fake.OnExhausted = cancel

	d := session.NewDriver(fake, iec62056.NewHandshaker(iec62056.Capabilities{}), retry, sinks...)
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("driver did not stop")
		return nil
	}
}

func TestRun_ForwardsReadingsInOrder(t *testing.T) {
	fake := transporttest.New("/", identification,
		"1.8.0(001234.567*kWh)C.7.1(00003)\r\n",
		"C.7.2(00001)\r\n",
	)
	rec := &recorder{}

	err := run(t, fake, fastRetry, rec)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []interpreter.Reading{
		{Code: "1.8.0", Content: "001234.567"},
		{Code: "C.7.1", Content: "00003"},
		{Code: "C.7.2", Content: "00001"},
	}, rec.readings)
}

func TestRun_EndOfSessionTriggersOneHandshake(t *testing.T) {
	fake := transporttest.New("/", identification,
		"1.8.0(001234.567*kWh)\r\n",
		"", // meter goes quiet
		"/", identification,
		"0.0.0(12345678)\r\n",
	)
	rec := &recorder{}

	err := run(t, fake, fastRetry, rec)
	assert.ErrorIs(t, err, context.Canceled)

	// Initial handshake, two data reads, then exactly one handshake before
	// the next data line is requested.
	require.GreaterOrEqual(t, len(fake.Ops), 13)
	assert.Equal(t, handshakeOps, fake.Ops[0:5])
	assert.Equal(t, `read '\n'`, fake.Ops[5])
	assert.Equal(t, `read '\n'`, fake.Ops[6])
	assert.Equal(t, handshakeOps, fake.Ops[7:12])
	assert.Equal(t, `read '\n'`, fake.Ops[12])
	assert.Equal(t, 2, fake.Count(`write "/?!\r\n"`))

	assert.Len(t, rec.handshakes, 2)
	// Once for the quiet meter, once when the run is cancelled.
	assert.Equal(t, 2, rec.ends)
	assert.Equal(t, []interpreter.Reading{
		{Code: "1.8.0", Content: "001234.567"},
		{Code: "0.0.0", Content: "12345678"},
	}, rec.readings)
}

func TestRun_SkipsReadingsWithoutNumber(t *testing.T) {
	fake := transporttest.New("/", identification, "1.8.0(ERR*kWh)C.7.2(00001)\r\n", "vendor noise\r\n")
	rec := &recorder{}

	err := run(t, fake, fastRetry, rec)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []interpreter.Reading{{Code: "C.7.2", Content: "00001"}}, rec.readings)
}

func TestRun_PublishesIdentityOncePerChange(t *testing.T) {
	fake := transporttest.New("/", identification,
		"0.0.0(12345678)\r\n",
		"0.2.1(V1.02)\r\n",
		"0.0.0(12345678)0.2.1(V1.02)\r\n",
		"0.2.1(V1.03)\r\n",
	)
	rec := &recorder{}

	err := run(t, fake, fastRetry, rec)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []session.Identity{
		{Manufacturer: "ACM", Model: "5E1", SerialNumber: "12345678", FirmwareVersion: "V1.02"},
		{Manufacturer: "ACM", Model: "5E1", SerialNumber: "12345678", FirmwareVersion: "V1.03"},
	}, rec.identities)
}

func TestRun_IdentityIsScopedToSession(t *testing.T) {
	fake := transporttest.New("/", identification,
		"0.0.0(12345678)0.2.1(V1.02)\r\n",
		"",
		"/", "LGZ4ZMD120\r\n",
		"0.0.0(12345678)\r\n",
		"0.2.1(V1.02)\r\n",
	)
	rec := &recorder{}

	err := run(t, fake, fastRetry, rec)
	assert.ErrorIs(t, err, context.Canceled)

	require.Len(t, rec.identities, 2)
	assert.Equal(t, "ACM", rec.identities[0].Manufacturer)
	assert.Equal(t, session.Identity{
		Manufacturer:    "LGZ",
		Model:           "ZMD120",
		SerialNumber:    "12345678",
		FirmwareVersion: "V1.02",
	}, rec.identities[1])
}

func TestRun_FailedHandshakeDoesNotEndSession(t *testing.T) {
	fake := transporttest.New()
	rec := &recorder{}
	retry := session.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	d := session.NewDriver(fake, iec62056.NewHandshaker(iec62056.Capabilities{}), retry, rec)
	require.Error(t, d.Run(context.Background()))
	assert.Zero(t, rec.ends)
}

func TestRun_RetriesFailedHandshake(t *testing.T) {
	fake := transporttest.New("/", "AC\r\n", "/", identification, "C.7.1(00002)\r\n")
	rec := &recorder{}

	err := run(t, fake, fastRetry, rec)
	assert.ErrorIs(t, err, context.Canceled)

	require.Len(t, rec.handshakes, 2)
	assert.ErrorIs(t, rec.handshakes[0], iec62056.ErrMalformedIdentification)
	assert.NoError(t, rec.handshakes[1])
	assert.Equal(t, []interpreter.Reading{{Code: "C.7.1", Content: "00002"}}, rec.readings)
}

func TestRun_GivesUpAfterMaxAttempts(t *testing.T) {
	fake := transporttest.New()
	rec := &recorder{}
	retry := session.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	d := session.NewDriver(fake, iec62056.NewHandshaker(iec62056.Capabilities{}), retry, rec)
	err := d.Run(context.Background())

	assert.ErrorIs(t, err, iec62056.ErrMalformedIdentification)
	assert.Equal(t, 3, fake.Count(`write "/?!\r\n"`))
	assert.Len(t, rec.handshakes, 3)
}

func TestRun_CancelDuringBackoff(t *testing.T) {
	fake := transporttest.New()
	retry := session.RetryPolicy{BaseDelay: time.Hour, MaxDelay: time.Hour}

	err := run(t, fake, retry)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, fake.Count(`write "/?!\r\n"`))
}

func TestRun_TransportFaultEndsSession(t *testing.T) {
	fake := transporttest.New("/", identification)
	fake.PushError(errors.New("input/output error"))
	fake.Push("/", identification, "C.7.3(00004)\r\n")
	rec := &recorder{}

	err := run(t, fake, fastRetry, rec)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 2, fake.Count(`write "/?!\r\n"`))
	assert.Equal(t, []interpreter.Reading{{Code: "C.7.3", Content: "00004"}}, rec.readings)
}

func TestRun_PlainSinkNeedsNoOptionalInterfaces(t *testing.T) {
	fake := transporttest.New("/", identification, "0.0.0(1)0.2.1(2)\r\n")
	var codes []string
	sink := sinkFunc(func(code, content string) { codes = append(codes, code) })

	err := run(t, fake, fastRetry, sink)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"0.0.0", "0.2.1"}, codes)
}

type sinkFunc func(code, content string)

func (f sinkFunc) Observe(code, content string) { f(code, content) }

func TestRetryPolicy_Delay(t *testing.T) {
	p := session.RetryPolicy{BaseDelay: 2 * time.Second, MaxDelay: 60 * time.Second}

	assert.Equal(t, 2*time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 32*time.Second, p.Delay(5))
	assert.Equal(t, 60*time.Second, p.Delay(6))
	assert.Equal(t, 60*time.Second, p.Delay(100))
}
