// Package transporttest provides a scripted Transport for tests.
package transporttest

import "fmt"

// Fake answers each ReadUntil call with the next scripted reply and records
// every operation in Ops. An exhausted script behaves like a silent meter.
type Fake struct {
	Ops     []string
	Written []byte
	Baud    int

	// WriteErr fails the next Write and is consumed on use.
	WriteErr error

	// OnExhausted runs every time a read finds the script empty.
	OnExhausted func()

	script []reply
}

type reply struct {
	data []byte
	err  error
}

// New returns a Fake that replies with the given strings in order.
func New(replies ...string) *Fake {
	f := &Fake{}
	f.Push(replies...)
	return f
}

// Push appends replies to the script. An empty string scripts a timeout.
func (f *Fake) Push(replies ...string) {
	for _, r := range replies {
		f.script = append(f.script, reply{data: []byte(r)})
	}
}

// PushError scripts a read that fails with err.
func (f *Fake) PushError(err error) {
	f.script = append(f.script, reply{err: err})
}

// Pending returns how many scripted replies have not been read yet.
func (f *Fake) Pending() int {
	return len(f.script)
}

func (f *Fake) SetBaud(baud int) error {
	f.Baud = baud
	f.Ops = append(f.Ops, fmt.Sprintf("baud %d", baud))
	return nil
}

func (f *Fake) Write(p []byte) (int, error) {
	if err := f.WriteErr; err != nil {
		f.WriteErr = nil
		f.Ops = append(f.Ops, "write error")
		return 0, err
	}
	f.Written = append(f.Written, p...)
	f.Ops = append(f.Ops, fmt.Sprintf("write %q", p))
	return len(p), nil
}

func (f *Fake) Flush() error {
	f.Ops = append(f.Ops, "flush")
	return nil
}

func (f *Fake) ReadUntil(delim byte) ([]byte, error) {
	f.Ops = append(f.Ops, fmt.Sprintf("read %q", delim))
	if len(f.script) == 0 {
		if f.OnExhausted != nil {
			f.OnExhausted()
		}
		return nil, nil
	}
	r := f.script[0]
	f.script = f.script[1:]
	return r.data, r.err
}

// Count returns how many recorded operations equal op.
func (f *Fake) Count(op string) int {
	n := 0
	for _, o := range f.Ops {
		if o == op {
			n++
		}
	}
	return n
}
