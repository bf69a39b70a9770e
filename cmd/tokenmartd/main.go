package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tokenmart/config"
	"tokenmart/core/events"
	"tokenmart/core/state"
	"tokenmart/native/assets"
	"tokenmart/native/market"
	"tokenmart/observability/logging"
	"tokenmart/rpc"
	"tokenmart/storage"
	"tokenmart/storage/trie"
)

const moduleVersion = "v1"

// stateRootKey locates the latest committed trie root in the sidecar store.
// The daemon reopens the trie at this root on startup so offers, escrow and
// the operator designation survive restarts.
var stateRootKey = []byte("state/root")

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("TOKENMART_ENV"))
	logger := logging.Setup("tokenmart", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	eventStore, err := storage.NewLevelKV(filepath.Join(cfg.DataDir, "events"))
	if err != nil {
		panic(fmt.Sprintf("Failed to open event store: %v", err))
	}
	defer eventStore.Close()

	var root []byte
	if stored, err := eventStore.Get(stateRootKey); err == nil {
		root = stored
	}
	stateTrie, err := trie.NewTrie(db, root)
	if err != nil {
		logger.Error("Failed to open state trie", slog.Any("error", err))
		os.Exit(1)
	}
	manager := state.NewManager(stateTrie)
	recorder := events.NewRecorder(eventStore)

	registry := assets.NewRegistry(manager)

	module := market.NewModule(moduleVersion)
	module.SetState(manager)
	module.SetRegistry(registry)
	module.SetEmitter(recorder)

	proxy := market.NewProxy(stateTrie)
	proxy.SetEmitter(recorder)
	proxy.SetCommitHook(func(root common.Hash) error {
		return eventStore.Put(stateRootKey, root.Bytes())
	})
	registry.RegisterReceiver(market.ProxyAddress(), proxy.OnAssetReceived)

	var initData []byte
	operator, err := cfg.Operator()
	if err != nil {
		logger.Error("Failed to parse operator", slog.Any("error", err))
		os.Exit(1)
	}
	initialized, err := module.Initialized()
	if err != nil {
		logger.Error("Failed to read init state", slog.Any("error", err))
		os.Exit(1)
	}
	if !initialized && operator != ([20]byte{}) {
		initData = operator[:]
	}
	if err := proxy.Install(module, initData); err != nil {
		logger.Error("Failed to install marketplace module", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("marketplace module installed",
		slog.String("version", proxy.Version()),
		slog.String("network", cfg.NetworkName))

	if addr := strings.TrimSpace(cfg.MetricsAddress); addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("Metrics server stopped", slog.Any("error", err))
			}
		}()
	}

	server := rpc.NewServer(proxy, recorder, logger)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
