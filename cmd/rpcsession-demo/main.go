// Command rpcsession-demo is a minimal client/server peer exercising
// rpcsession.Session end-to-end over a Unix domain socket, wired against
// the statemachine package's reflection-based command dispatch the way
// danmuck-edgectl's cmd/seedctl wires internal/config and internal/seed
// together: load config, configure logging, run.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/hashicorp/go-uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/binderpc/rpcsession"
	"github.com/binderpc/rpcsession/statemachine"
)

// EchoArgs/EchoReply are the demo's one registered command: code 1 echoes
// Message back with its length, so both peers exercise Transact's full
// round trip (argument marshal, dispatch, reply marshal) without pulling
// in a real application protocol.
type EchoArgs struct {
	Message string
}

type EchoReply struct {
	Message string
	Length  int
}

const echoCode uint32 = 1

func main() {
	rpcsession.ConfigureLogging()

	var (
		mode       = flag.String("mode", "client", "client or server")
		addr       = flag.String("addr", "/tmp/rpcsession-demo.sock", "unix domain socket path")
		configPath = flag.String("config", "", "optional TOML config file (rpcsession.Config)")
		maxThreads = flag.Int("max-threads", 2, "incoming worker pool size")
		message    = flag.String("message", "hello", "client mode: message to send with the echo call")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	registry := statemachine.NewRegistry()
	if err := registry.Register(echoCode, func(a EchoArgs, r *EchoReply) error {
		r.Message = a.Message
		r.Length = len(a.Message)
		return nil
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to register echo handler")
	}
	machine := statemachine.NewMachine(registry).SetRoot("demo-root")
	if err := machine.Validate(); err != nil {
		log.Fatal().Err(err).Msg("handler registration invalid")
	}

	switch strings.ToLower(*mode) {
	case "server":
		if err := runServer(*addr, *maxThreads, &cfg, machine); err != nil {
			log.Fatal().Err(err).Msg("server stopped")
		}
	case "client":
		if err := runClient(*addr, *maxThreads, &cfg, machine, *message); err != nil {
			log.Fatal().Err(err).Msg("client stopped")
		}
	default:
		log.Fatal().Str("mode", *mode).Msg("mode must be client or server")
	}
}

// loadConfig layers viper's environment overrides (RPCSESSION_DEMO_*) over a base
// rpcsession.Config, the way go-i2p's lib/config.InitConfig layers viper
// defaults over a base router config. A TOML file, when given, seeds the
// base via rpcsession.LoadConfig; otherwise rpcsession.DefaultConfig is
// the base.
func loadConfig(path string) (rpcsession.Config, error) {
	base := rpcsession.DefaultConfig()
	if path != "" {
		loaded, err := rpcsession.LoadConfig(path)
		if err != nil {
			return rpcsession.Config{}, err
		}
		base = loaded
	}

	v := viper.New()
	v.SetEnvPrefix("RPCSESSION_DEMO")
	v.AutomaticEnv()
	v.SetDefault("connect_retry_max", base.ConnectRetryMax)
	v.SetDefault("connect_retry_backoff", base.ConnectRetryBackoff)
	v.SetDefault("dial_timeout", base.DialTimeout)

	base.ConnectRetryMax = v.GetInt("connect_retry_max")
	base.ConnectRetryBackoff = v.GetDuration("connect_retry_backoff")
	base.DialTimeout = v.GetDuration("dial_timeout")

	if err := base.Validate(); err != nil {
		return rpcsession.Config{}, err
	}
	return base, nil
}

func runClient(addr string, maxThreads int, cfg *rpcsession.Config, machine *statemachine.Machine, message string) error {
	s := rpcsession.Make()
	s.SetConfig(cfg)
	s.SetStateMachine(machine)
	if err := s.SetMaxThreads(maxThreads); err != nil {
		return err
	}
	if err := s.SetupUnixDomainClient(addr); err != nil {
		return fmt.Errorf("setup client: %w", err)
	}
	defer func() { _ = s.ShutdownAndWait(true) }()

	root, err := s.GetRootObject(context.Background())
	if err != nil {
		return fmt.Errorf("get root object: %w", err)
	}
	log.Info().Interface("root", root).Msg("negotiated root object")

	payload := fmt.Sprintf(`{"Message":%q}`, message)
	reply, err := s.Transact(context.Background(), root, echoCode, []byte(payload), 0)
	if err != nil {
		return fmt.Errorf("transact: %w", err)
	}
	fmt.Println(string(reply))
	return nil
}

// runServer accepts connections for exactly one peer session: the first
// accepted connection seeds the Session via rpcsession.AcceptSeedConnection,
// every connection after that joins its incoming pool via
// AddIncomingConnection, matching spec.md §4.5's client/server symmetry.
func runServer(addr string, maxThreads int, cfg *rpcsession.Config, machine *statemachine.Machine) error {
	_ = os.Remove(addr)
	ln, err := net.Listen("unix", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	defer ln.Close()
	log.Info().Str("addr", addr).Msg("rpcsession-demo server listening")

	s := rpcsession.Make()
	s.SetConfig(cfg)
	s.SetStateMachine(machine)
	if err := s.SetMaxThreads(maxThreads); err != nil {
		return err
	}

	sessionID, err := randomSessionID()
	if err != nil {
		return err
	}

	first := true
	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("accept: %w", err)
		}
		if first {
			first = false
			if err := rpcsession.AcceptSeedConnection(context.Background(), s, conn, sessionID); err != nil {
				log.Warn().Err(err).Msg("seed connection setup failed")
			}
			continue
		}
		if err := s.AddIncomingConnection(conn); err != nil {
			log.Warn().Err(err).Msg("rejecting additional incoming connection")
			_ = conn.Close()
		}
	}
}

func randomSessionID() (rpcsession.SessionID, error) {
	var id rpcsession.SessionID
	raw, err := uuid.GenerateRandomBytes(len(id))
	if err != nil {
		return id, err
	}
	copy(id[:], raw)
	return id, nil
}
