package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/AaronLay10/xyzplot/internal/config"
	"github.com/AaronLay10/xyzplot/internal/engine"
	"github.com/AaronLay10/xyzplot/internal/events"
	"github.com/AaronLay10/xyzplot/internal/mqtt"
	"github.com/AaronLay10/xyzplot/internal/storage"
	"github.com/AaronLay10/xyzplot/internal/storage/postgres"
	"github.com/AaronLay10/xyzplot/internal/storage/sqlite"
	"github.com/AaronLay10/xyzplot/internal/sweep"
)

// openEventStore installs the configured event store. The returned func
// closes it.
func openEventStore(cfg *config.Config) (func(), error) {
	var store events.Store
	switch cfg.EventStore() {
	case config.StoreNone:
		return func() {}, nil
	case config.StorePostgres:
		c, err := postgres.New(cfg.InstanceID())
		if err != nil {
			return nil, fmt.Errorf("open postgres event store: %w", err)
		}
		store = c
	case config.StoreSQLite:
		s, err := sqlite.Open(cfg.SQLitePath(), cfg.InstanceID())
		if err != nil {
			return nil, fmt.Errorf("open sqlite event store: %w", err)
		}
		store = s
	default:
		return nil, fmt.Errorf("unknown event store %q", cfg.Events.Store)
	}
	events.SetStore(store)
	return func() {
		events.SetStore(nil)
		if err := store.Close(); err != nil {
			log.Printf("close event store: %v", err)
		}
	}, nil
}

// openOutput opens the output root, creating it when missing.
func openOutput(dir string) (*storage.FolderStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return storage.NewFolderStore(osfs.New(dir)), nil
}

// executor is a sweep executor plus whatever must be torn down with it.
type executor struct {
	sweep.Executor
	broker *mqtt.Client // nil for the HTTP engine
	reply  string
}

func (e *executor) Close() {
	if e.broker == nil {
		return
	}
	if err := e.broker.Unsubscribe(e.reply); err != nil {
		log.Printf("mqtt: %v", err)
	}
	e.broker.Disconnect()
}

func buildExecutor(cfg *config.Config) (*executor, error) {
	switch cfg.EngineKind() {
	case config.EngineHTTP:
		c, err := engine.New(cfg.EngineURL(), engine.Options{
			ClientID:     cfg.ClientID(),
			PollInterval: cfg.Engine.PollInterval,
			Timeout:      cfg.Engine.Timeout,
			Retries:      cfg.Engine.Retries,
		})
		if err != nil {
			return nil, err
		}
		return &executor{Executor: c}, nil

	case config.EngineMQTT:
		client := mqtt.NewClient(cfg.MQTTBroker(), cfg.ClientID())
		if !client.ConnectLogged() {
			return nil, fmt.Errorf("mqtt broker %s unreachable", client.Broker())
		}
		exec := mqtt.NewExecutor(client, cfg.MQTT.TopicPrefix, cfg.ClientID(), cfg.Engine.Timeout)
		if err := exec.Start(); err != nil {
			client.Disconnect()
			return nil, err
		}
		return &executor{Executor: exec, broker: client, reply: exec.ReplyTopic()}, nil
	}
	return nil, fmt.Errorf("unknown engine kind %q", cfg.Engine.Kind)
}
