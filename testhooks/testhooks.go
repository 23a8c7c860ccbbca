// Package testhooks gives node code under test the same call-site surface
// the Rust harness exposes as macros (input!/output!/internal_begin!/
// internal_end!/action_begin!/action_end!), resolving the active server for
// a given auto_name through registry and talking to it the same way a real
// node driver would: over an in-process transport.Conn pair.
package testhooks

import (
	"context"
	"fmt"
	"sync"

	"github.com/sedeve-kit/dtm/action"
	"github.com/sedeve-kit/dtm/driver"
	"github.com/sedeve-kit/dtm/registry"
	"github.com/sedeve-kit/dtm/transport"

	"github.com/sedeve-kit/dtm/coreengine/observability"
)

// NotRegisteredError reports a testhooks call for an auto_name with no
// server currently registered.
type NotRegisteredError struct {
	AutoName string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("testhooks: no server registered under auto_name %q", e.AutoName)
}

var (
	mu      sync.Mutex
	drivers = make(map[string]driver.ActionDriver)
)

// driverFor lazily pairs the registered server for autoName with a fresh
// in-process driver.Driver over a transport.Pipe, caching it so repeated
// calls from the same test reuse one connection.
func driverFor(autoName string) (driver.ActionDriver, error) {
	mu.Lock()
	defer mu.Unlock()

	if d, ok := drivers[autoName]; ok {
		return d, nil
	}

	srv, ok := registry.Default().Get(autoName)
	if !ok {
		return nil, &NotRegisteredError{AutoName: autoName}
	}

	nodeConn, serverConn := transport.Pipe()
	srv.HandleConn(context.Background(), serverConn)
	d := driver.NewActionDriver(nodeConn, observability.NoopLogger())
	drivers[autoName] = d
	return d, nil
}

// Forget drops the cached driver for autoName, if any, so a later Init under
// the same name starts from a fresh connection.
func Forget(autoName string) {
	mu.Lock()
	defer mu.Unlock()
	delete(drivers, autoName)
}

// ActionBegin issues the Begin bracket of an action and blocks for its ack.
func ActionBegin(autoName string, typ action.Type, source, dest string, payload any) error {
	d, err := driverFor(autoName)
	if err != nil {
		return err
	}
	return d.Action(context.Background(), typ, action.Begin, source, dest, payload)
}

// ActionEnd issues the End bracket of an action and blocks for its ack.
func ActionEnd(autoName string, typ action.Type, source, dest string, payload any) error {
	d, err := driverFor(autoName)
	if err != nil {
		return err
	}
	return d.Action(context.Background(), typ, action.End, source, dest, payload)
}

// InternalBegin is sugar for ActionBegin with type Internal.
func InternalBegin(autoName string, source, dest string, payload any) error {
	return ActionBegin(autoName, action.Internal, source, dest, payload)
}

// InternalEnd is sugar for ActionEnd with type Internal.
func InternalEnd(autoName string, source, dest string, payload any) error {
	return ActionEnd(autoName, action.Internal, source, dest, payload)
}

// Input brackets a single-shot Input action: Begin immediately followed by
// End, matching the Rust input! macro.
func Input(autoName string, source, dest string, payload any) error {
	if err := ActionBegin(autoName, action.Input, source, dest, payload); err != nil {
		return err
	}
	return ActionEnd(autoName, action.Input, source, dest, payload)
}

// Output brackets a single-shot Output action: Begin immediately followed
// by End, matching the Rust output! macro.
func Output(autoName string, source, dest string, payload any) error {
	if err := ActionBegin(autoName, action.Output, source, dest, payload); err != nil {
		return err
	}
	return ActionEnd(autoName, action.Output, source, dest, payload)
}
