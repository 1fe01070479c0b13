package main

import (
	"errors"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/ardanlabs/conf/v3"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/fractalchain/node/foundation/blockchain/database"
	"github.com/fractalchain/node/foundation/blockchain/peer"
	"github.com/fractalchain/node/foundation/blockchain/state"
	"github.com/fractalchain/node/foundation/blockchain/worker"
	"github.com/fractalchain/node/foundation/events"
	"github.com/fractalchain/node/foundation/logger"
	"github.com/fractalchain/node/foundation/nameservice"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Web struct {
			DebugHost string `conf:"default:0.0.0.0:7080"`
		}
		State struct {
			MinerName     string   `conf:"default:miner1"`
			Host          string   `conf:"default:0.0.0.0:9080"`
			DBPath        string   `conf:"default:zblock/blocks.db"`
			GenesisPath   string   `conf:"default:zblock/genesis.json"`
			KnownPeers    []string `conf:"default:0.0.0.0:9180"`
			MiningEnabled bool     `conf:"default:true"`
		}
		NameService struct {
			Folder string `conf:"default:zblock/accounts/"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "FractalChain node",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	fmt.Println(` _____               _         _  ____ _           _       `)
	fmt.Println(`|  ___| __ __ _  ___| |_ __ _ | |/ ___| |__   __ _(_)_ __  `)
	fmt.Println(`| |_ | '__/ _' |/ __| __/ _' || | |   | '_ \ / _' | | '_ \ `)
	fmt.Println(`|  _|| | | (_| | (__| || (_| || | |___| | | | (_| | | | | |`)
	fmt.Println(`|_|  |_|  \__,_|\___|\__\__,_||_|\____|_| |_|\__,_|_|_| |_|`)
	fmt.Print("\n")

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Name Service Support

	// The nameservice package resolves account ids back to the short names
	// of the key files under the accounts folder, purely for log readability.
	ns, err := nameservice.New(cfg.NameService.Folder)
	if err != nil {
		return fmt.Errorf("unable to load account name service: %w", err)
	}

	for accountID, name := range ns.Copy() {
		log.Infow("startup", "status", "nameservice", "name", name, "account", accountID)
	}

	// =========================================================================
	// Blockchain Support

	// Load the private key for the configured miner so the account can be
	// credited with the coinbase reward and transaction fees.
	path := fmt.Sprintf("%s%s.ecdsa", cfg.NameService.Folder, cfg.State.MinerName)
	privateKey, err := crypto.LoadECDSA(path)
	if err != nil {
		return fmt.Errorf("unable to load private key for node: %w", err)
	}
	beneficiaryID := database.PublicKeyToAccountID(privateKey.PublicKey)

	// A peer set is a collection of known nodes in the network so blocks and
	// transactions can be gossiped.
	peerSet := peer.NewPeerSet()
	for _, host := range cfg.State.KnownPeers {
		peerSet.Add(peer.New(host))
	}

	// Raw event strings are logged and also fanned out to any connected
	// websocket client through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Send(s)
	}

	// The state value represents the blockchain node and manages the
	// blockchain database and provides an API for application support.
	st, err := state.New(state.Config{
		BeneficiaryID: beneficiaryID,
		Host:          cfg.State.Host,
		DBPath:        cfg.State.DBPath,
		GenesisPath:   cfg.State.GenesisPath,
		KnownPeers:    peerSet,
		EvHandler:     ev,
	})
	if err != nil {
		return err
	}
	defer st.Shutdown()

	// The worker package implements the mining, transaction sharing, and
	// peer update workflows. The worker registers itself with the state.
	worker.Run(st, ev)

	if cfg.State.MiningEnabled {
		st.EnableMining(beneficiaryID)
		st.Worker.SignalStartMining()
	}

	// Accept inbound peer connections on the p2p listen address.
	ln, err := st.Listen(cfg.State.Host)
	if err != nil {
		return fmt.Errorf("starting p2p listener: %w", err)
	}
	defer ln.Close()
	log.Infow("startup", "status", "p2p listener started", "host", cfg.State.Host)

	// =========================================================================
	// Start Debug Service

	// Debug endpoints never carry domain traffic, so they ride on the
	// standard library's own mux: pprof and expvar register themselves on
	// http.DefaultServeMux through their blank imports.
	expvar.Publish("chain_height", expvar.Func(func() any { return st.Height() }))

	log.Infow("startup", "status", "debug router started", "host", cfg.Web.DebugHost)
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, http.DefaultServeMux); err != nil {
			log.Errorw("shutdown", "status", "debug router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Shutdown

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	sig := <-shutdown
	log.Infow("shutdown", "status", "shutdown started", "signal", sig)
	defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

	log.Infow("shutdown", "status", "shutdown web socket channels")
	evts.Shutdown()

	return nil
}
