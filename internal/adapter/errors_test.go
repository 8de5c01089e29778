package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
)

type fakeNetErr struct{ timeout bool }

func (e fakeNetErr) Error() string   { return "i/o timeout" }
func (e fakeNetErr) Timeout() bool   { return e.timeout }
func (e fakeNetErr) Temporary() bool { return e.timeout }

func TestClassOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Class
	}{
		{"wrapped transient", Errf(Transient, "reset"), Transient},
		{"wrapped protocol", Errf(Protocol, "rejected"), Protocol},
		{"wrapped fatal", Errf(Fatal, "auth"), Fatal},
		{"deeply wrapped", fmt.Errorf("publish: %w", Errf(Protocol, "bad payload")), Protocol},
		{"net error", fakeNetErr{timeout: true}, Transient},
		{"deadline", context.DeadlineExceeded, Transient},
		{"unknown", errors.New("boom"), Fatal},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ClassOf(c.err); got != c.want {
				t.Errorf("ClassOf(%v) = %v, want %v", c.err, got, c.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("broken pipe")
	err := &Error{Class: Transient, Err: inner}
	if !errors.Is(err, inner) {
		t.Error("Error does not unwrap to its cause")
	}
}

func TestClassString(t *testing.T) {
	if Transient.String() != "connection" || Protocol.String() != "protocol" || Fatal.String() != "fatal" {
		t.Errorf("unexpected class names: %v %v %v", Transient, Protocol, Fatal)
	}
}

func TestRegistries(t *testing.T) {
	RegisterQuerier("testq", stubQuerier{})
	defer delete(queriers, "testq")

	q, u, err := QuerierFor("testq://db.example:5432/bench")
	if err != nil {
		t.Fatal(err)
	}
	if q == nil || u.Host != "db.example:5432" {
		t.Errorf("resolved %v %v", q, u)
	}

	if _, _, err := QuerierFor("bogus://x"); err == nil {
		t.Error("QuerierFor() accepted an unregistered scheme")
	}
	if _, _, err := IngestorFor("://"); err == nil {
		t.Error("IngestorFor() accepted an unparsable endpoint")
	}
}

type stubQuerier struct{}

func (stubQuerier) Connect(ctx context.Context, endpoint *url.URL) (QueryConn, error) {
	return nil, nil
}
