// loractl is a command-line tool for driving a Seeed LoRa-E5 modem
// directly: join a network, send an uplink, watch for downlinks, inspect
// the audit history. Adapted from the teacher's cmd/agsys-controller
// (YAML config) and cmd/agsys-db (cobra subcommand tree, tabwriter
// output) entry points.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	lorae5 "github.com/agsys/lora-e5-driver"
	"github.com/agsys/lora-e5-driver/internal/history"
	"github.com/agsys/lora-e5-driver/internal/monitor"
	"github.com/agsys/lora-e5-driver/internal/serialtransport"
	"github.com/agsys/lora-e5-driver/internal/zmqexport"
)

// fileConfig is the on-disk loractl.yaml shape.
type fileConfig struct {
	Serial struct {
		Port     string `yaml:"port"`
		BaudRate int    `yaml:"baud_rate"`
	} `yaml:"serial"`

	Identity struct {
		DevEUI string `yaml:"dev_eui"`
		AppEUI string `yaml:"app_eui"`
		AppKey string `yaml:"app_key"`
		Region string `yaml:"region"`
		Class  string `yaml:"class"`
	} `yaml:"identity"`

	History struct {
		Path string `yaml:"path"`
	} `yaml:"history"`

	Export struct {
		ZMQEndpoint string `yaml:"zmq_endpoint"`
		MonitorAddr string `yaml:"monitor_addr"`
	} `yaml:"export"`
}

func defaultFileConfig() fileConfig {
	var c fileConfig
	c.Serial.Port = "/dev/ttyUSB0"
	c.Serial.BaudRate = 9600
	c.Identity.Region = "EU868"
	c.Identity.Class = "A"
	c.History.Path = "loractl.db"
	return c
}

var (
	cfgPath string
	cfg     = defaultFileConfig()

	rootCmd = &cobra.Command{
		Use:   "loractl",
		Short: "Command-line driver for a Seeed LoRa-E5 modem",
	}

	joinCmd = &cobra.Command{
		Use:   "join",
		Short: "Configure identity and join OTAA, waiting for the result",
		RunE:  runJoin,
	}

	sendCmd = &cobra.Command{
		Use:   "send [hex-payload]",
		Short: "Send an uplink on the given port",
		Args:  cobra.ExactArgs(1),
		RunE:  runSend,
	}

	recvCmd = &cobra.Command{
		Use:   "recv",
		Short: "Wait for and print the next downlink",
		RunE:  runRecv,
	}

	monitorCmd = &cobra.Command{
		Use:   "monitor",
		Short: "Serve a WebSocket feed of driver events and export over ZeroMQ",
		RunE:  runMonitor,
	}

	historyCmd = &cobra.Command{
		Use:       "history <join|uplink|downlink|errors>",
		Short:     "Show recent entries from the audit log",
		Args:      cobra.ExactValidArgs(1),
		ValidArgs: []string{"join", "uplink", "downlink", "errors"},
		RunE:      runHistory,
	}

	sendPort      uint8
	sendConfirmed bool
	sendRetries   uint8
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "loractl.yaml", "path to loractl.yaml")
	sendCmd.Flags().Uint8Var(&sendPort, "port", 1, "application port")
	sendCmd.Flags().BoolVar(&sendConfirmed, "confirmed", false, "send as a confirmed uplink")
	sendCmd.Flags().Uint8Var(&sendRetries, "retries", 0, "retransmission/repeat count")

	rootCmd.AddCommand(joinCmd, sendCmd, recvCmd, monitorCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() error {
	data, err := os.ReadFile(cfgPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", cfgPath, err)
	}
	return yaml.Unmarshal(data, &cfg)
}

func openClient(ctx context.Context) (*lorae5.Client, *serialtransport.Port, error) {
	if err := loadConfig(); err != nil {
		return nil, nil, err
	}
	port, err := serialtransport.Open(serialtransport.Config{
		Port: cfg.Serial.Port, BaudRate: cfg.Serial.BaudRate,
	})
	if err != nil {
		return nil, nil, err
	}
	client, err := lorae5.New(ctx, port, lorae5.DefaultConfig())
	if err != nil {
		port.Close()
		return nil, nil, err
	}
	return client, port, nil
}

// recordErr logs an arbiter failure (Timeout, Parse, CustomCode, ...)
// against the command name that produced it, best-effort: a failure to
// open the history store here must never mask the original error.
func recordErr(command string, err error) {
	store, openErr := history.Open(cfg.History.Path)
	if openErr != nil {
		return
	}
	defer store.Close()
	_ = store.RecordError(command, err)
}

func runJoin(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, port, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer port.Close()
	defer client.Close()

	if devEui, err := lorae5.ParseEUI64(cfg.Identity.DevEUI); err == nil {
		if err := client.DevEuiSet(ctx, devEui); err != nil {
			recordErr("DevEui", err)
			return fmt.Errorf("set dev eui: %w", err)
		}
	}
	if appEui, err := lorae5.ParseEUI64(cfg.Identity.AppEUI); err == nil {
		if err := client.AppEuiSet(ctx, appEui); err != nil {
			recordErr("AppEui", err)
			return fmt.Errorf("set app eui: %w", err)
		}
	}
	if b, err := hex.DecodeString(cfg.Identity.AppKey); err == nil && len(b) == 16 {
		var key lorae5.AppKey
		copy(key[:], b)
		if err := client.AppKeySet(ctx, key); err != nil {
			recordErr("KEY", err)
			return fmt.Errorf("set app key: %w", err)
		}
	}
	if err := client.JoinModeSet(ctx, lorae5.ModeOTAA); err != nil {
		recordErr("MODE", err)
		return fmt.Errorf("set mode: %w", err)
	}

	status, err := client.LoraJoinOtaaAndWaitForResult(ctx)
	if err != nil {
		recordErr("JOIN", err)
		return fmt.Errorf("join: %w", err)
	}

	if store, err := history.Open(cfg.History.Path); err == nil {
		snap, _ := client.Bus().JoinStatus.TryValue()
		snap.Status = status
		_ = store.RecordJoin(snap)
		store.Close()
	}

	fmt.Printf("client %s: join result: %s\n", client.ID(), status)
	return nil
}

func runSend(cmd *cobra.Command, args []string) error {
	payload, err := hex.DecodeString(args[0])
	if err != nil {
		return fmt.Errorf("decode hex payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, port, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer port.Close()
	defer client.Close()

	client.ConfirmSendSet(sendConfirmed)
	if err := client.Send(ctx, sendRetries, sendPort, payload); err != nil {
		recordErr("MSGHEX", err)
		return fmt.Errorf("send: %w", err)
	}

	if store, err := history.Open(cfg.History.Path); err == nil {
		_ = store.RecordUplink(sendPort, len(payload), sendConfirmed)
		store.Close()
	}

	fmt.Println("sent")
	return nil
}

func runRecv(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, port, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer port.Close()
	defer client.Close()

	payload, stats, err := client.Receive(ctx)
	if err != nil {
		recordErr("MSG", err)
		return fmt.Errorf("receive: %w", err)
	}

	if store, err := history.Open(cfg.History.Path); err == nil {
		_ = store.RecordDownlink(payload, stats)
		store.Close()
	}

	fmt.Printf("port=%d length=%d payload=%x rxwin=%d rssi=%d snr=%.1f\n",
		payload.Port, payload.Length, payload.Bytes(), stats.Rxwin, stats.Rssi, stats.Snr)
	return nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, port, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer port.Close()
	defer client.Close()

	stop := make(chan struct{})
	mon := monitor.New(monitor.DefaultConfig())
	go mon.Run(stop, client.Bus())

	var exporter *zmqexport.Exporter
	if cfg.Export.ZMQEndpoint != "" {
		exporter, err = zmqexport.Listen(cfg.Export.ZMQEndpoint)
		if err != nil {
			return fmt.Errorf("zmq export: %w", err)
		}
		defer exporter.Close()
		go exporter.Run(ctx, client.Bus())
	}

	addr := cfg.Export.MonitorAddr
	if addr == "" {
		addr = ":8787"
	}
	srv := &http.Server{Addr: addr, Handler: mon}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "monitor: %v\n", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	close(stop)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	switch args[0] {
	case "join":
		events, err := store.RecentJoins(20)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "STATUS\tNET ID\tDEV ADDR\tWHEN")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Status, e.NetID, e.DevAddr, e.OccurredAt.Format(time.RFC3339))
		}

	case "uplink":
		events, err := store.RecentUplinks(20)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "PORT\tLENGTH\tCONFIRMED\tWHEN")
		for _, e := range events {
			fmt.Fprintf(w, "%d\t%d\t%t\t%s\n", e.Port, e.Length, e.Confirmed, e.OccurredAt.Format(time.RFC3339))
		}

	case "downlink":
		events, err := store.RecentDownlinks(20)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "PORT\tLENGTH\tRXWIN\tRSSI\tSNR\tWHEN")
		for _, e := range events {
			fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%.1f\t%s\n",
				e.Port, e.Length, e.Rxwin.Int64, e.Rssi.Int64, e.Snr.Float64, e.OccurredAt.Format(time.RFC3339))
		}

	case "errors":
		events, err := store.RecentErrors(20)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "KIND\tCOMMAND\tCODE\tWHEN")
		for _, e := range events {
			code := "-"
			if e.Code.Valid {
				code = fmt.Sprintf("%d", e.Code.Int64)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Kind, e.Command, code, e.OccurredAt.Format(time.RFC3339))
		}
	}
	return w.Flush()
}
