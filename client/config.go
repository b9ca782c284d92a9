package client

import "time"

// Config configures Connection behaviour. Fields left at their zero
// value are filled from DefaultConfig by mergo when the Connection is
// constructed (grounded on the teacher's Config/DefaultConfig/mergo.Merge
// trio; see DESIGN.md).
type Config struct {
	// Password, if non-empty, is sent via AUTH during Connect.
	Password string
	// Database, if non-nil, is selected via SELECT during Connect.
	Database *int

	// ConnectTimeout bounds dialing and the AUTH/SELECT handshake.
	ConnectTimeout time.Duration
	// CommandTimeout is the default per-command deadline used by Send
	// and Pipeline when the caller does not supply one via context.
	CommandTimeout time.Duration

	// PingInterval is the liveness-check cadence while connected
	// (spec.md §4.4 "Liveness"). Zero is filled from DefaultConfig like
	// any other unset field; a negative value disables liveness pings.
	PingInterval time.Duration

	// TLS configures transport-layer security. A nil value means plain
	// TCP.
	TLS *TLSConfig

	// InitialParserBufferSize seeds the incremental parser's starting
	// buffer capacity (spec.md §4.3).
	InitialParserBufferSize int

	// PendingQueueCompactionThreshold is the head-index value at which
	// the pending-waiter queue discards its consumed prefix (spec.md
	// §4.4 "Queue compaction").
	PendingQueueCompactionThreshold int
}

// TLSConfig carries the transport-layer security options named in
// spec.md §6.
type TLSConfig struct {
	Enabled            bool
	InsecureSkipVerify bool
	CACert             []byte
	ClientCert         []byte
	ClientKey          []byte
}

// DefaultConfig supplies the baseline every Config is merged over.
var DefaultConfig = &Config{
	ConnectTimeout:                  5 * time.Second,
	CommandTimeout:                  2 * time.Second,
	PingInterval:                    30 * time.Second,
	InitialParserBufferSize:         64 * 1024,
	PendingQueueCompactionThreshold: 1024,
}
