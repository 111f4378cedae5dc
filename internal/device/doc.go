// Package device provides the Device Registry for RemoteLink Core.
//
// The Device Registry is the authoritative catalogue of every television
// the core has seen on the local network, together with its session
// lifecycle state. Discovery, pairing, connection supervision and command
// dispatch all read devices from here and request mutations through
// registry operations; none of them keeps a private copy it mutates.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────────────┐
//	│                          Device Registry                          │
//	│                                                                   │
//	│  ┌──────────────────┐    ┌──────────────────┐    ┌─────────────┐  │
//	│  │     Registry     │    │    Repository    │    │   Errors    │  │
//	│  │   (registry.go)  │───▶│  (repository.go) │    │ (errors.go) │  │
//	│  │                  │    │                  │    │             │  │
//	│  │ • Lifecycle FSM  │    │ • Memory store   │    │ • 8 kinds   │  │
//	│  │ • In-memory cache│    │ • SQLite queries │    │ • Context   │  │
//	│  │ • Per-device lock│    │ • JSON columns   │    │   fields    │  │
//	│  └──────────────────┘    └──────────────────┘    └─────────────┘  │
//	│           │                                                       │
//	└───────────│───────────────────────────────────────────────────────┘
//	            ▼
//	   Observers (MQTT state publisher, WebSocket hub, metrics)
//
// # Lifecycle
//
//	discovered ──PAIR──▶ paired ──CONNECT──▶ connected
//	     ▲                 │  ▲                  │
//	     └─────UNPAIR──────┘  └────DISCONNECT────┘
//
// PAIR requires the device to be online. UNPAIR of an offline device purges
// it from the registry instead of returning it to discovered.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	unlock, err := registry.Lock(ctx, id)
//	if err != nil {
//	    return err
//	}
//	defer unlock()
//
//	dev, err := registry.Transition(ctx, id, device.EventPair)
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. Mutations for a single
// device ID are serialised; different IDs never wait on each other. Lock
// provides a second, caller-held lock for multi-step sequences.
package device
