package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ayaproj/aya/internal/adapters/mqttserver"
	"github.com/ayaproj/aya/internal/ayad"
	audioplayer "github.com/ayaproj/aya/internal/modules/audio_player"
	embeddedmqtt "github.com/ayaproj/aya/internal/modules/embedded_mqtt"
	mediasource "github.com/ayaproj/aya/internal/modules/media_source"
	newslettersource "github.com/ayaproj/aya/internal/modules/newsletter_source"
	scripturesource "github.com/ayaproj/aya/internal/modules/scripture_source"
	trackslibrary "github.com/ayaproj/aya/internal/modules/tracks_library"
	"github.com/ayaproj/aya/pkg/aya"
)

// Default node identities for single daemon deployments.
const (
	defaultMusicPlayerID = "aya:player:music"
	defaultVersePlayerID = "aya:player:verse"
	defaultScriptureID   = "aya:source:scripture"
	defaultMediaID       = "aya:source:media"
	defaultNewsletterID  = "aya:source:newsletter"
	defaultTracksID      = "aya:library:tracks"
)

func main() {
	var (
		configPath  string
		broker      string
		identity    string
		topicBase   string
		logLevel    string
		logFormat   string
		logOutput   string
		printConfig bool
		dryRun      bool
		moduleOnly  string
	)

	defaultConfig, err := ayad.DefaultConfigPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	flag.StringVar(&configPath, "config", defaultConfig, "config file path")
	flag.StringVar(&broker, "broker", "", "MQTT broker URL override")
	flag.StringVar(&identity, "identity", "", "server identity override")
	flag.StringVar(&topicBase, "topic-base", "", "topic base override")
	flag.StringVar(&logLevel, "log-level", "", "log level override")
	flag.StringVar(&logFormat, "log-format", "", "log format override (text|json)")
	flag.StringVar(&logOutput, "log-output", "", "log output override (stdout|stderr)")
	flag.StringVar(&moduleOnly, "module", "", "limit to a single module")
	flag.BoolVar(&printConfig, "print-config", false, "print resolved config and exit")
	flag.BoolVar(&dryRun, "dry-run", false, "validate config and exit")
	flag.Parse()

	cfg, err := ayad.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyOverrides(&cfg, broker, identity, topicBase, logLevel, logFormat, logOutput)

	if printConfig {
		printResolvedConfig(cfg)
		return
	}
	if dryRun {
		return
	}

	logCfg := ayad.LogConfig{
		Level:  cfg.Server.LogLevel,
		Format: cfg.Server.LogFormat,
		Output: cfg.Server.LogOutput,
	}
	logger := ayad.NewLogger(logCfg)
	moduleLogger := ayad.NewModuleLogger(logCfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	embeddedURL := embeddedBrokerURL(cfg)
	skipEmbedded := false

	if moduleOnly != "embedded_mqtt" && cfg.Modules.EmbeddedMQTT.Enabled && cfg.Server.Broker == embeddedURL {
		if err := startEmbeddedBroker(ctx, cfg, moduleLogger, logger, cancel); err != nil {
			logger.Error("embedded mqtt failed", "error", err)
			os.Exit(1)
		}
		skipEmbedded = true
	}

	if cfg.Server.Broker == "" && !(moduleOnly == "embedded_mqtt" && cfg.Modules.EmbeddedMQTT.Enabled) {
		logger.Error("broker is required")
		os.Exit(1)
	}
	logger.Info("ayad starting",
		"broker", cfg.Server.Broker,
		"identity", cfg.Server.Identity,
		"topic_base", cfg.Server.TopicBase,
		"log_level", cfg.Server.LogLevel,
		"modules", enabledModules(cfg),
	)

	var client *mqttserver.Client
	if moduleOnly != "embedded_mqtt" {
		var err error
		client, err = mqttserver.NewClient(mqttserver.Options{
			BrokerURL: cfg.Server.Broker,
			ClientID:  fmt.Sprintf("ayad-%d", time.Now().UnixNano()),
			Username:  cfg.Server.Auth.User,
			Password:  cfg.Server.Auth.Pass,
			TLSCA:     cfg.Server.TLS.CA,
			TLSCert:   cfg.Server.TLS.Cert,
			TLSKey:    cfg.Server.TLS.Key,
			Timeout:   2 * time.Second,
		})
		if err != nil {
			logger.Error("mqtt connection failed", "error", err)
			os.Exit(1)
		}
	}

	modules, err := buildModules(cfg, client, moduleLogger, moduleOnly, skipEmbedded)
	if err != nil {
		logger.Error("failed to build modules", "error", err)
		os.Exit(1)
	}

	supervisor := ayad.Supervisor{Logger: logger}
	if err := supervisor.Run(ctx, modules); err != nil {
		logger.Error("supervisor error", "error", err)
		os.Exit(1)
	}
}

func applyOverrides(cfg *ayad.Config, broker string, identity string, topicBase string, logLevel string, logFormat string, logOutput string) {
	if broker != "" {
		cfg.Server.Broker = broker
	}
	if identity != "" {
		cfg.Server.Identity = identity
	}
	if topicBase != "" {
		cfg.Server.TopicBase = topicBase
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.Server.LogFormat = logFormat
	}
	if logOutput != "" {
		cfg.Server.LogOutput = logOutput
	}
	if cfg.Server.TopicBase == "" {
		cfg.Server.TopicBase = aya.BaseTopic
	}
	if cfg.Server.Broker == "" && cfg.Modules.EmbeddedMQTT.Enabled {
		cfg.Server.Broker = embeddedBrokerURL(*cfg)
	}
}

func buildModules(cfg ayad.Config, client *mqttserver.Client, logger *zap.Logger, moduleOnly string, skipEmbedded bool) ([]ayad.ModuleRunner, error) {
	modules := []ayad.ModuleRunner{}
	include := func(name string) bool {
		return moduleOnly == "" || moduleOnly == name
	}

	if cfg.Modules.EmbeddedMQTT.Enabled && !skipEmbedded && include("embedded_mqtt") {
		mod, err := embeddedmqtt.NewModule(logger.With(zap.String("module", "embedded_mqtt")), embeddedmqtt.Config{
			Listen:         cfg.Modules.EmbeddedMQTT.Listen,
			AllowAnonymous: cfg.Modules.EmbeddedMQTT.AllowAnonymous,
			Username:       cfg.Modules.EmbeddedMQTT.Username,
			Password:       cfg.Modules.EmbeddedMQTT.Password,
			TLSCA:          cfg.Modules.EmbeddedMQTT.TLSCA,
			TLSCert:        cfg.Modules.EmbeddedMQTT.TLSCert,
			TLSKey:         cfg.Modules.EmbeddedMQTT.TLSKey,
		})
		if err != nil {
			return nil, err
		}
		modules = append(modules, ayad.ModuleRunner{Name: "embedded_mqtt", Run: mod.Run})
	}

	tracksID := withDefault(cfg.Modules.Tracks.NodeID, defaultTracksID)
	scriptureID := withDefault(cfg.Modules.Scripture.NodeID, defaultScriptureID)

	if cfg.Modules.Tracks.Enabled && include("tracks_library") {
		mod, err := trackslibrary.NewModule(logger.With(zap.String("module", "tracks_library")), client, trackslibrary.Config{
			NodeID:     tracksID,
			TopicBase:  cfg.Server.TopicBase,
			Roots:      cfg.Modules.Tracks.Roots,
			HTTPListen: cfg.Modules.Tracks.Listen,
			IndexPath:  stateFile(cfg.Server.StateDir, "tracks_index.json"),
		})
		if err != nil {
			return nil, err
		}
		modules = append(modules, ayad.ModuleRunner{Name: "tracks_library", Run: mod.Run})
	}

	if cfg.Modules.Scripture.Enabled && include("scripture_source") {
		mod, err := scripturesource.NewModule(logger.With(zap.String("module", "scripture_source")), client, scripturesource.Config{
			NodeID:     scriptureID,
			TopicBase:  cfg.Server.TopicBase,
			CorpusPath: cfg.Modules.Scripture.CorpusPath,
			ReciterURL: cfg.Modules.Scripture.ReciterURL,
		})
		if err != nil {
			return nil, err
		}
		modules = append(modules, ayad.ModuleRunner{Name: "scripture_source", Run: mod.Run})
	}

	if cfg.Modules.Media.Enabled && include("media_source") {
		mod, err := mediasource.NewModule(logger.With(zap.String("module", "media_source")), client, mediasource.Config{
			NodeID:    withDefault(cfg.Modules.Media.NodeID, defaultMediaID),
			TopicBase: cfg.Server.TopicBase,
			IndexPath: cfg.Modules.Media.IndexPath,
		})
		if err != nil {
			return nil, err
		}
		modules = append(modules, ayad.ModuleRunner{Name: "media_source", Run: mod.Run})
	}

	if cfg.Modules.Newsletter.Enabled && include("newsletter_source") {
		cachePath := cfg.Modules.Newsletter.CachePath
		if cachePath == "" {
			cachePath = stateFile(cfg.Server.StateDir, "newsletter_cache.json")
		}
		mod, err := newslettersource.NewModule(logger.With(zap.String("module", "newsletter_source")), client, newslettersource.Config{
			NodeID:          withDefault(cfg.Modules.Newsletter.NodeID, defaultNewsletterID),
			TopicBase:       cfg.Server.TopicBase,
			FeedURL:         cfg.Modules.Newsletter.FeedURL,
			CachePath:       cachePath,
			RefreshInterval: time.Duration(cfg.Modules.Newsletter.RefreshMinutes) * time.Minute,
		})
		if err != nil {
			return nil, err
		}
		modules = append(modules, ayad.ModuleRunner{Name: "newsletter_source", Run: mod.Run})
	}

	if cfg.Modules.PlayerMusic.Enabled && include("player_music") {
		mod, err := audioplayer.NewModule(logger.With(zap.String("module", "player_music")), client, audioplayer.Config{
			NodeID:    withDefault(cfg.Modules.PlayerMusic.NodeID, defaultMusicPlayerID),
			TopicBase: cfg.Server.TopicBase,
			Role:      audioplayer.RoleMusic,
			MPVSocket: cfg.Modules.PlayerMusic.MPVSocket,
			MPVBinary: cfg.Modules.PlayerMusic.MPVBinary,
			LibraryID: tracksID,
			StateDir:  cfg.Server.StateDir,
		})
		if err != nil {
			return nil, err
		}
		modules = append(modules, ayad.ModuleRunner{Name: "player_music", Run: mod.Run})
	}

	if cfg.Modules.PlayerVerse.Enabled && include("player_verse") {
		mod, err := audioplayer.NewModule(logger.With(zap.String("module", "player_verse")), client, audioplayer.Config{
			NodeID:      withDefault(cfg.Modules.PlayerVerse.NodeID, defaultVersePlayerID),
			TopicBase:   cfg.Server.TopicBase,
			Role:        audioplayer.RoleVerse,
			MPVSocket:   cfg.Modules.PlayerVerse.MPVSocket,
			MPVBinary:   cfg.Modules.PlayerVerse.MPVBinary,
			ScriptureID: scriptureID,
			StateDir:    cfg.Server.StateDir,
		})
		if err != nil {
			return nil, err
		}
		modules = append(modules, ayad.ModuleRunner{Name: "player_verse", Run: mod.Run})
	}

	if moduleOnly != "" && len(modules) == 0 {
		return nil, errors.New("no modules enabled")
	}
	return modules, nil
}

func enabledModules(cfg ayad.Config) []string {
	out := []string{}
	if cfg.Modules.EmbeddedMQTT.Enabled {
		out = append(out, "embedded_mqtt")
	}
	if cfg.Modules.Tracks.Enabled {
		out = append(out, "tracks_library")
	}
	if cfg.Modules.Scripture.Enabled {
		out = append(out, "scripture_source")
	}
	if cfg.Modules.Media.Enabled {
		out = append(out, "media_source")
	}
	if cfg.Modules.Newsletter.Enabled {
		out = append(out, "newsletter_source")
	}
	if cfg.Modules.PlayerMusic.Enabled {
		out = append(out, "player_music")
	}
	if cfg.Modules.PlayerVerse.Enabled {
		out = append(out, "player_verse")
	}
	return out
}

func withDefault(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func stateFile(stateDir string, name string) string {
	if stateDir == "" {
		return ""
	}
	return filepath.Join(stateDir, name)
}

func printResolvedConfig(cfg ayad.Config) {
	fmt.Fprintf(os.Stdout,
		"broker=%s identity=%s topic_base=%s log_level=%s log_format=%s log_output=%s state_dir=%s\n",
		cfg.Server.Broker,
		cfg.Server.Identity,
		cfg.Server.TopicBase,
		cfg.Server.LogLevel,
		cfg.Server.LogFormat,
		cfg.Server.LogOutput,
		cfg.Server.StateDir,
	)
}

func embeddedBrokerURL(cfg ayad.Config) string {
	listen := cfg.Modules.EmbeddedMQTT.Listen
	if listen == "" {
		listen = "127.0.0.1:1883"
	}
	tlsEnabled := cfg.Modules.EmbeddedMQTT.TLSCert != "" || cfg.Modules.EmbeddedMQTT.TLSKey != "" || cfg.Modules.EmbeddedMQTT.TLSCA != ""
	return embeddedmqtt.BrokerURL(listen, tlsEnabled)
}

func startEmbeddedBroker(ctx context.Context, cfg ayad.Config, moduleLogger *zap.Logger, logger *slog.Logger, cancel context.CancelFunc) error {
	mod, err := embeddedmqtt.NewModule(moduleLogger.With(zap.String("module", "embedded_mqtt")), embeddedmqtt.Config{
		Listen:         cfg.Modules.EmbeddedMQTT.Listen,
		AllowAnonymous: cfg.Modules.EmbeddedMQTT.AllowAnonymous,
		Username:       cfg.Modules.EmbeddedMQTT.Username,
		Password:       cfg.Modules.EmbeddedMQTT.Password,
		TLSCA:          cfg.Modules.EmbeddedMQTT.TLSCA,
		TLSCert:        cfg.Modules.EmbeddedMQTT.TLSCert,
		TLSKey:         cfg.Modules.EmbeddedMQTT.TLSKey,
	})
	if err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- mod.Run(ctx)
	}()
	go func() {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("embedded mqtt exited", "error", err)
			cancel()
		}
	}()

	listen := cfg.Modules.EmbeddedMQTT.Listen
	if listen == "" {
		listen = "127.0.0.1:1883"
	}
	return waitForListen(listen, 3*time.Second)
}

func waitForListen(listen string, timeout time.Duration) error {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return err
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	addr := net.JoinHostPort(host, port)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("embedded mqtt not ready at %s", addr)
}
