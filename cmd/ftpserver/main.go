// ftpserver is the server daemon: it loads the INI configuration and the
// user store, then serves FTP sessions until SIGINT/SIGTERM.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	log "github.com/fclairamb/go-log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"

	"github.com/wasu-code/basic-ftp/config"
	"github.com/wasu-code/basic-ftp/ftpserver"
	"github.com/wasu-code/basic-ftp/log/gokit"
	"github.com/wasu-code/basic-ftp/metrics"
	"github.com/wasu-code/basic-ftp/userstore"
)

func main() {
	var confFile, usersFile string

	flag.StringVar(&confFile, "conf", "ftpserver.conf", "Configuration file")
	flag.StringVar(&usersFile, "users", "users.json", "User store file")
	flag.Parse()

	cfg, err := config.Load(confFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	fs := afero.NewOsFs()

	store, err := userstore.Open(fs, usersFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading user store: %v\n", err)
		os.Exit(1)
	}

	if err := store.Bootstrap(cfg.RootDirectory); err != nil {
		fmt.Fprintf(os.Stderr, "error bootstrapping user store: %v\n", err)
		os.Exit(1)
	}

	logger := gokit.NewGKLoggerStdout().With(
		"ts", gokit.GKDefaultTimestampUTC,
		"caller", gokit.GKDefaultCaller,
	)

	server := ftpserver.NewFtpServerWithFs(cfg, store, fs)
	server.Logger = logger.With("component", "server")

	if cfg.Metrics.Enabled {
		server.Collector = metrics.NewPrometheusCollector(prometheus.DefaultRegisterer)

		go func() {
			http.Handle("/metrics", promhttp.Handler())

			if errMetrics := http.ListenAndServe(cfg.Metrics.Address, nil); errMetrics != nil {
				logger.Error("Metrics endpoint failed", "err", errMetrics)
			}
		}()
	}

	go signalHandler(server, logger)

	if err := server.ListenAndServe(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func signalHandler(server *ftpserver.FtpServer, logger log.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)

	<-ch

	logger.Info("Shutting down...")

	if err := server.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "error during shutdown: %v\n", err)
	}
}
