package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/antoniostano/coachroom/internal/catalog"
	"github.com/antoniostano/coachroom/internal/config"
	"github.com/antoniostano/coachroom/internal/logging"
)

func main() {
	app := kingpin.New("coachroom", "Coaching discussion rooms with browser microphone capture.")
	logLevel := app.Flag("log.level", "Log level (debug, info, warn, error). Overrides LOG_LEVEL.").String()
	logFormat := app.Flag("log.format", "Log format (text, json). Overrides LOG_FORMAT.").Enum("text", "json")
	catalogFile := app.Flag("catalog", "Expert catalog YAML file. Overrides CATALOG_FILE.").String()

	serveCmd := app.Command("serve", "Run the HTTP service.").Default()
	bind := serveCmd.Flag("bind", "Listen address. Overrides APP_BIND_ADDR.").String()
	databaseURL := serveCmd.Flag("database-url", "Postgres URL for the room store. Overrides DATABASE_URL.").String()

	expertsCmd := app.Command("experts", "List coaching options and expert personas.")

	micCmd := app.Command("mic-check", "Record from a local PulseAudio source and report silence signals.")
	micSource := micCmd.Flag("source", "PulseAudio source name; empty uses the default source.").String()
	micDuration := micCmd.Flag("duration", "How long to record.").Default("10s").Duration()
	micOut := micCmd.Flag("out", "Write the recording to this WAV file.").String()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}
	override(&cfg.LogLevel, *logLevel)
	override(&cfg.LogFormat, *logFormat)
	override(&cfg.CatalogFile, *catalogFile)
	override(&cfg.BindAddr, *bind)
	override(&cfg.DatabaseURL, *databaseURL)

	rt, err := logging.New(logging.Options{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		File:      cfg.LogFile,
		MaxSizeMB: cfg.LogMaxSizeMB,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging error: %v\n", err)
		os.Exit(2)
	}
	defer rt.Close()
	logger := rt.Logger
	slog.SetDefault(logger)

	cat, err := loadCatalog(cfg.CatalogFile, logger)
	if err != nil {
		logger.Error("catalog load failed", "error", err)
		os.Exit(1)
	}

	switch command {
	case serveCmd.FullCommand():
		err = serve(cfg, cat, logger)
	case expertsCmd.FullCommand():
		err = listExperts(os.Stdout, cat)
	case micCmd.FullCommand():
		err = micCheck(cfg, *micSource, *micDuration, *micOut, logger)
	}
	if err != nil {
		logger.Error("command failed", "command", command, "error", err)
		rt.Close()
		os.Exit(1)
	}
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func loadCatalog(path string, logger *slog.Logger) (*catalog.Catalog, error) {
	var (
		cat *catalog.Catalog
		err error
	)
	if path == "" {
		cat, err = catalog.Default()
	} else {
		cat, err = catalog.Load(path)
	}
	if err != nil {
		return nil, err
	}
	for _, dup := range cat.Duplicates() {
		logger.Warn("duplicate catalog name; first entry wins", "entry", dup)
	}
	logger.Debug("catalog loaded", "options", len(cat.Options), "experts", len(cat.Experts))
	return cat, nil
}

