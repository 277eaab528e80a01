// Package rmesh is the public entry point to the client: Connect a
// Config, obtain Database/Subscriber/Server views, and Execute Messages
// through whichever bridge the server-selection strategy picks. It wires
// internal/selector, internal/endpoint, internal/pubsub, and internal/txn
// together behind the one contract spec.md 4.F describes. Grounded on
// src/ron.Ron's owns-the-relay-tree role (one object that owns every
// downstream connection and dispatches by topology) and
// src/meshage.Node's public Send/Receive surface over an internal
// connection table.
package rmesh

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sandia-minimega/redimux/internal/bridge"
	"github.com/sandia-minimega/redimux/internal/mlog"
	"github.com/sandia-minimega/redimux/internal/selector"
	"github.com/sandia-minimega/redimux/pkg/rerror"
)

// Topology selects the server-selection strategy's routing mode.
type Topology = selector.Mode

const (
	TopologyStandalone     = selector.ModeStandalone
	TopologyPrimaryReplica = selector.ModePrimaryReplica
	TopologyCluster        = selector.ModeCluster
)

// SentinelConfig configures the optional sentinel sub-multiplexer
// (spec.md 4.E "Sentinel"): it connects to a set of sentinel endpoints,
// subscribes to +switch-master/+odown, and triggers reconfiguration of the
// data multiplexer on event.
type SentinelConfig struct {
	Endpoints  []string
	MasterName string
}

// Config is the public connection configuration (spec.md 6 "Configuration
// options").
type Config struct {
	Topology Topology
	Seeds    []string

	Username   string
	Password   string
	ClientName string
	LibName    string
	LibVer     string
	DB         int
	WantRESP3  bool

	// Dial opens the transport connection to each endpoint. A TLS-enabled
	// deployment supplies a Dial that performs the handshake itself and
	// returns the upgraded net.Conn; this client never performs the
	// handshake (spec.md 1).
	Dial bridge.DialFunc

	BacklogCap        int
	HighWatermark     int
	Admission         bridge.AdmissionPolicy
	HeartbeatInterval time.Duration
	SyncTimeout       time.Duration
	ConnectRetry      int

	ReconfigInterval time.Duration

	Sentinel *SentinelConfig

	MetricsPrefix string
	// Registry, if set, receives this Multiplexer's prometheus metrics;
	// left nil, metrics are still collected internally but never exposed.
	Registry *prometheus.Registry
	Logger   *mlog.Facade

	PubSubWorkers   int
	PubSubQueueSize int
}

func (c Config) withDefaults() Config {
	if c.ReconfigInterval <= 0 {
		c.ReconfigInterval = 30 * time.Second
	}
	if c.ConnectRetry <= 0 {
		c.ConnectRetry = 3
	}
	if c.MetricsPrefix == "" {
		c.MetricsPrefix = "redimux"
	}
	if c.Logger == nil {
		c.Logger = mlog.Named("rmesh")
	}
	if c.PubSubWorkers <= 0 {
		c.PubSubWorkers = 4
	}
	if c.PubSubQueueSize <= 0 {
		c.PubSubQueueSize = 256
	}
	return c
}

func (c Config) validate() error {
	if len(c.Seeds) == 0 {
		return &rerror.ConfigurationError{Field: "Seeds", Reason: "at least one seed endpoint is required"}
	}
	if c.Topology == TopologyCluster && c.Sentinel != nil {
		return &rerror.ConfigurationError{Field: "Sentinel", Reason: "sentinel management is only meaningful for primary/replica topology"}
	}
	if c.Sentinel != nil && len(c.Sentinel.Endpoints) == 0 {
		return &rerror.ConfigurationError{Field: "Sentinel.Endpoints", Reason: "sentinel config requires at least one sentinel endpoint"}
	}
	return nil
}

func (c Config) bridgeConfig() bridge.Config {
	return bridge.Config{
		Username:          c.Username,
		Password:          c.Password,
		ClientName:        c.ClientName,
		LibName:           c.LibName,
		LibVer:            c.LibVer,
		DB:                c.DB,
		WantRESP3:         c.WantRESP3,
		Dial:              c.Dial,
		BacklogCap:        c.BacklogCap,
		HighWatermark:     c.HighWatermark,
		Admission:         c.Admission,
		HeartbeatInterval: c.HeartbeatInterval,
		SyncTimeout:       c.SyncTimeout,
	}
}
