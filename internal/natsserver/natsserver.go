// Package natsserver runs an in-process NATS server with JetStream enabled.
// The daemon uses it for the reminder event bus and as the default state store.
package natsserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const readyTimeout = 10 * time.Second

// Config holds settings for the embedded server.
type Config struct {
	DataDir string
	// Host is left empty to keep the server reachable only in-process.
	Host  string
	Port  int
	Token string
}

// Server is a running embedded NATS server plus the daemon's own client connection.
type Server struct {
	ns        *server.Server
	nc        *nats.Conn
	js        jetstream.JetStream
	token     string
	inProcess bool
	logger    zerolog.Logger
}

// Start boots the server and blocks until it accepts connections.
func Start(cfg Config, logger zerolog.Logger) (*Server, error) {
	opts := &server.Options{
		ServerName: "calremindd",
		JetStream:  true,
		StoreDir:   cfg.DataDir,
		DontListen: cfg.Host == "",
		Host:       cfg.Host,
		Port:       cfg.Port,
		NoLog:      true,
		NoSigs:     true,
	}
	if cfg.Token != "" {
		opts.Authorization = cfg.Token
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}
	ns.SetLoggerV2(newLogAdapter(logger), false, false, false)
	go ns.Start()

	if !ns.ReadyForConnections(readyTimeout) {
		ns.Shutdown()
		return nil, errors.New("nats server not ready")
	}

	s := &Server{ns: ns, token: cfg.Token, inProcess: opts.DontListen, logger: logger}

	nc, err := nats.Connect(ns.ClientURL(), s.ConnectOptions()...)
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("connect to embedded nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, fmt.Errorf("init jetstream: %w", err)
	}
	s.nc, s.js = nc, js

	logger.Info().
		Str("client_url", ns.ClientURL()).
		Bool("in_process", opts.DontListen).
		Msg("embedded NATS started")
	return s, nil
}

// ConnectOptions returns the options another client in this process needs
// to reach the server.
func (s *Server) ConnectOptions() []nats.Option {
	var opts []nats.Option
	if s.inProcess {
		opts = append(opts, nats.InProcessServer(s.ns))
	}
	if s.token != "" {
		opts = append(opts, nats.Token(s.token))
	}
	return opts
}

func (s *Server) Conn() *nats.Conn               { return s.nc }
func (s *Server) JetStream() jetstream.JetStream { return s.js }
func (s *Server) ClientURL() string              { return s.ns.ClientURL() }

// Shutdown drains the daemon connection and stops the server.
func (s *Server) Shutdown() {
	s.logger.Info().Msg("stopping embedded NATS")
	if s.nc != nil {
		s.nc.Drain()
	}
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
}
