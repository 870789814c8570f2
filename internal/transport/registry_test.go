package transport

import (
	"context"
	"strings"
	"testing"
)

type nopProvider struct{}

func (nopProvider) Connect(ctx context.Context, creds Credentials, events chan<- Event) (Handle, error) {
	return nil, nil
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("no-such-driver", Options{})
	if err == nil || !strings.Contains(err.Error(), "no-such-driver") {
		t.Fatalf("err = %v, want unknown-driver error naming the driver", err)
	}
}

func TestRegisterAndOpen(t *testing.T) {
	Register("testdriver", func(opts Options) (Provider, error) {
		return nopProvider{}, nil
	})
	p, err := Open("testdriver", Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := p.(nopProvider); !ok {
		t.Fatalf("provider = %T", p)
	}

	found := false
	for _, name := range Drivers() {
		if name == "testdriver" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Drivers() = %v, missing testdriver", Drivers())
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("duplicate Register did not panic")
		}
	}()
	Register("dupdriver", func(opts Options) (Provider, error) { return nopProvider{}, nil })
	Register("dupdriver", func(opts Options) (Provider, error) { return nopProvider{}, nil })
}
