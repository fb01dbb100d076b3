package realtime

import "time"

// Hard limits. Configurable knobs live in Config.
const (
	// Max bytes per websocket frame read. Inbound events are small; the
	// largest is create_session with its filter list.
	maxFrameBytes = 16 << 10 // 16 KiB

	minSendQueueSize = 32

	closeGrace      = 1 * time.Second
	maxPingFailures = 3
)

const (
	defaultHeartbeatInterval = 25 * time.Second
	defaultHeartbeatTimeout  = 5 * time.Second

	// Per-connection flood guard (events per window), independent of the
	// per-operation budgets in package ratelimit.
	defaultFloodEvents = 120
	defaultFloodWindow = 10 * time.Second

	// Failed join and reconnect attempts are answered after a uniform delay
	// in [min, max) so timing does not reveal which check failed.
	defaultJoinDelayMin = 150 * time.Millisecond
	defaultJoinDelayMax = 400 * time.Millisecond
)
