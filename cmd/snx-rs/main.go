package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kardianos/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ancwrd1/snx-rs-sub001/internal/config"
	"github.com/ancwrd1/snx-rs-sub001/internal/connector"
	"github.com/ancwrd1/snx-rs-sub001/internal/model"
	"github.com/ancwrd1/snx-rs-sub001/internal/platform"
	"github.com/ancwrd1/snx-rs-sub001/internal/statusapi"
	"github.com/ancwrd1/snx-rs-sub001/internal/supervisor"
)

var (
	Version = "dev"
	cfgFile string
	listen  string
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

var rootCmd = &cobra.Command{
	Use:     "snx-rs",
	Short:   "snx-rs - Check Point SNX VPN client core",
	Long:    `snx-rs drives the SSL or IPsec data plane of a Check Point SNX-compatible gateway and exposes a local status/control API.`,
	Version: Version,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the tunnel supervisor in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSupervisor(cmd.Context())
	},
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install snx-rs as a system service",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return fmt.Errorf("create service: %w", err)
		}
		if err := svc.Install(); err != nil {
			return fmt.Errorf("install service: %w", err)
		}
		log.Info().Msg("service installed")
		return nil
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall the snx-rs service",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return fmt.Errorf("create service: %w", err)
		}
		if err := svc.Uninstall(); err != nil {
			return fmt.Errorf("uninstall service: %w", err)
		}
		log.Info().Msg("service uninstalled")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query the running supervisor's connection status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return queryStatus(cmd.Context())
	},
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Request the running supervisor to connect",
	RunE: func(cmd *cobra.Command, args []string) error {
		return postAction(cmd.Context(), "/api/connect")
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Request the running supervisor to disconnect",
	RunE: func(cmd *cobra.Command, args []string) error {
		return postAction(cmd.Context(), "/api/disconnect")
	},
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (properties format)")
	rootCmd.PersistentFlags().StringVar(&listen, "listen", "127.0.0.1:7779", "status API listen address")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(startCmd, installCmd, uninstallCmd, statusCmd, connectCmd, disconnectCmd)
}

func initLogging() {
	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func loadParams() (*model.TunnelParams, error) {
	return config.Load(viper.GetViper(), cfgFile)
}

func buildConnector(params *model.TunnelParams) connector.TunnelConnector {
	if params.TunnelType == model.TunnelIPsec {
		return connector.NewIPsecConnector(params)
	}
	return connector.NewSSLConnector(params)
}

// runSupervisor loads config, acquires the single-instance lock, and
// serves the status API until interrupted.
func runSupervisor(ctx context.Context) error {
	params, err := loadParams()
	if err != nil {
		return err
	}

	lock, err := platform.AcquireSingleInstanceLock("/var/run/snx-rs.lock")
	if err != nil {
		return err
	}
	defer lock.Release()

	sup := supervisor.New(params, buildConnector(params))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	statusapi.New(sup).RegisterRoutes(e)

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(listen)
	}()

	log.Info().Str("listen", listen).Str("server", params.ServerName).Str("tunnel_type", string(params.TunnelType)).Msg("snx-rs listening")

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("status api: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newService() (service.Service, error) {
	svcConfig := &service.Config{
		Name:        "snx-rs",
		DisplayName: "snx-rs VPN tunnel service",
		Description: "Maintains an SSL or IPsec tunnel to a Check Point SNX gateway",
	}
	return service.New(&serviceProgram{}, svcConfig)
}

type serviceProgram struct {
	cancel context.CancelFunc
}

func (p *serviceProgram) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go func() {
		if err := runSupervisor(ctx); err != nil {
			log.Error().Err(err).Msg("supervisor exited with error")
		}
	}()
	return nil
}

func (p *serviceProgram) Stop(s service.Service) error {
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

func queryStatus(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+listen+"/api/status", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("status api unreachable (is snx-rs running with --listen %s?): %w", listen, err)
	}
	defer resp.Body.Close()

	var status model.ConnectionStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("decode status response: %w", err)
	}

	fmt.Printf("state:  %s\n", status.Kind)
	if status.Connection != nil {
		fmt.Printf("mode:   %s\n", status.Connection.Mode)
		fmt.Printf("since:  %s\n", time.UnixMilli(status.Connection.SinceUnixMillis).Format(time.RFC3339))
		fmt.Printf("data:   %s in / %s out\n",
			humanize.Bytes(status.Connection.BytesIn), humanize.Bytes(status.Connection.BytesOut))
	}
	if status.Challenge != nil {
		fmt.Printf("prompt: %s\n", status.Challenge.Prompt)
	}
	if status.Error != "" {
		fmt.Printf("error:  %s\n", status.Error)
	}
	return nil
}

func postAction(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+listen+path, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("status api unreachable (is snx-rs running with --listen %s?): %w", listen, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("%s: %s", path, body["error"])
	}
	return nil
}
