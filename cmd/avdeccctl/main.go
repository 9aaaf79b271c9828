// Command avdeccctl is a small smoke-test CLI for the avdecc package:
// discover whatever AVDECC entities are reachable on an interface and
// print what came back.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jdkoftinoff/go-avdecc"
	"github.com/jdkoftinoff/go-avdecc/rawnet"
)

var log = logrus.New()

func main() {
	root := &cobra.Command{
		Use:   "avdeccctl",
		Short: "discover and enumerate AVDECC entities on a network interface",
	}
	root.PersistentFlags().String("iface", "eth0", "network interface to bind the raw AVTP socket to")
	root.PersistentFlags().String("log-level", "info", "error|warning|notice|info|debug|verbose")
	viper.BindPFlag("iface", root.PersistentFlags().Lookup("iface"))
	viper.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))
	viper.SetEnvPrefix("AVDECCCTL")
	viper.AutomaticEnv()

	root.AddCommand(discoverCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func discoverCmd() *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "send ENTITY_DISCOVER and print every entity seen within a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(viper.GetString("iface"), parseLevel(viper.GetString("log-level")), duration)
		},
	}
	cmd.Flags().DurationVar(&duration, "for", 5*time.Second, "how long to listen before reporting")
	return cmd
}

func parseLevel(s string) avdecc.LogLevel {
	switch s {
	case "error":
		return avdecc.LogError
	case "warning":
		return avdecc.LogWarning
	case "notice":
		return avdecc.LogNotice
	case "debug":
		return avdecc.LogDebug
	case "verbose":
		return avdecc.LogVerbose
	default:
		return avdecc.LogInfo
	}
}

func runDiscover(iface string, level avdecc.LogLevel, duration time.Duration) error {
	sock, err := rawnet.Open(iface)
	if err != nil {
		return err
	}
	defer sock.Close()

	ctrl := avdecc.NewController(avdecc.Config{
		Transport: sock,
		LogLevel:  level,
		LogCB: func(ev avdecc.LogEvent) {
			log.WithField("level", ev.Level).Info(ev.Message)
		},
		NotifyCB: func(n avdecc.Notification) {
			log.WithFields(logrus.Fields{
				"kind":      n.Kind,
				"entity_id": n.EntityID,
			}).Info("notification")
		},
	})

	go func() {
		for {
			frame, err := sock.Recv()
			if err != nil {
				return
			}
			ctrl.HandleFrame(frame)
		}
	}()

	if err := ctrl.Discover(0); err != nil {
		return err
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		<-ticker.C
		ctrl.Tick()
	}

	fmt.Printf("%d entities discovered on %s:\n", ctrl.GetEndStationCount(), iface)
	for i := 0; i < ctrl.GetEndStationCount(); i++ {
		e := ctrl.GetEndStationByIndex(i)
		fmt.Printf("  %s  %s  descriptors=%d  status=%s\n", e.EntityID, e.MAC, e.DescriptorCount(), e.ConnectionStatus)
	}
	return nil
}
