package agent

import (
	"context"
	"errors"
)

// ErrNoAgentHost means no agent host has attached a real Starter yet.
var ErrNoAgentHost = errors.New("no agent host attached")

// UnattachedStarter is the Starter used before an agent host attaches.
// Every call fails with ErrNoAgentHost so jobs that need an agent report
// a clear cause instead of silently doing nothing.
type UnattachedStarter struct{}

var _ Starter = &UnattachedStarter{}

func (*UnattachedStarter) Start(context.Context, Target, StartRequest) error {
	return ErrNoAgentHost
}

func (*UnattachedStarter) Continue(context.Context, Target, string) error {
	return ErrNoAgentHost
}

func (*UnattachedStarter) SendInput(context.Context, Target, string) error {
	return ErrNoAgentHost
}
