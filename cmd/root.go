package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	nostr "github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"

	"github.com/spf13/cobra"

	"github.com/shugur-labs/relaycore/internal/config"
	"github.com/shugur-labs/relaycore/internal/logger"
	"github.com/shugur-labs/relaycore/internal/metrics"
	"github.com/shugur-labs/relaycore/nip26"
	"github.com/shugur-labs/relaycore/relay"
)

var (
	cfgFile string         // Path to custom config file (optional)
	cfg     *config.Config // Global reference to loaded configuration
)

// rootCmd defines the main CLI command for relayctl.
var rootCmd = &cobra.Command{
	Use:   "relayctl",
	Short: "relayctl drives a supervised Nostr relay connection pool",
	Long:  `A small client library CLI for connecting to relays, building NIP-26 delegation tags, and publishing events.`,
	Example: `
  relayctl connect --config /path/to/config.yaml
  relayctl delegate --delegator-key <hex-secret> --delegatee <hex-pubkey> --kind 1
  relayctl send --relay wss://relay.example.com --event event.json`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch cmd.Name() {
		case "version", "delegate", "send":
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile, nil)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		if err := cmd.Help(); err != nil {
			fmt.Fprintf(os.Stderr, "Error displaying help: %v\n", err)
		}
	},
}

// Execute runs the root command with the provided context.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to custom config file (optional)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of relayctl",
		Run: func(cmd *cobra.Command, args []string) {
			if detailed, _ := cmd.Flags().GetBool("detailed"); detailed {
				fmt.Println(GetFullVersionInfo())
			} else {
				fmt.Println(GetVersionWithPrefix())
			}
		},
	})
	versionCmd := rootCmd.Commands()[len(rootCmd.Commands())-1]
	versionCmd.Flags().BoolP("detailed", "d", false, "Show detailed version information")

	rootCmd.AddCommand(newConnectCmd())
	rootCmd.AddCommand(newDelegateCmd())
	rootCmd.AddCommand(newSendCmd())
}

// newConnectCmd supervises every relay configured in the config file,
// logging inbound relay messages until the process is interrupted.
func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect to every configured relay and stream inbound messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if cfg.Metrics.Enabled {
				go func() {
					addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
					if err := metrics.Serve(ctx, addr); err != nil {
						logger.Error("metrics server exited", zap.Error(err))
					}
				}()
			}

			inbound := relay.NewChanInbound(256)
			relays := make([]*relay.Relay, 0, len(cfg.Relays))
			for _, rc := range cfg.Relays {
				r := relay.New(rc.URL, rc.Proxy, inbound, nil)
				r.SetIntervals(cfg.Supervisor.TickInterval, cfg.Supervisor.PingInterval)
				r.Connect(ctx, false)
				relays = append(relays, r)
				logger.Info("supervising relay", zap.String("url", rc.URL))
			}

			go func() {
				for msg := range inbound {
					data, _ := msg.Envelope.MarshalJSON()
					logger.Info("received relay message",
						zap.String("relay_url", msg.RelayURL),
						zap.ByteString("envelope", data))
				}
			}()

			<-ctx.Done()
			for _, r := range relays {
				_ = r.Terminate()
			}
			return nil
		},
	}
}

// newDelegateCmd builds and prints a NIP-26 delegation tag.
func newDelegateCmd() *cobra.Command {
	var delegatorKeyHex, delegateeHex string
	var kind int64
	var createdAfter, createdBefore int64

	cmd := &cobra.Command{
		Use:   "delegate",
		Short: "Sign a NIP-26 delegation tag",
		RunE: func(cmd *cobra.Command, args []string) error {
			skBytes, err := hex.DecodeString(delegatorKeyHex)
			if err != nil || len(skBytes) != 32 {
				return fmt.Errorf("delegator-key must be 64 hex characters")
			}
			sk, _ := btcec.PrivKeyFromBytes(skBytes)

			pkBytes, err := hex.DecodeString(delegateeHex)
			if err != nil || len(pkBytes) != 32 {
				return fmt.Errorf("delegatee must be 64 hex characters")
			}
			var delegateePk [32]byte
			copy(delegateePk[:], pkBytes)

			var conditions nip26.Conditions
			if cmd.Flags().Changed("kind") {
				conditions = append(conditions, nip26.Condition{Kind: nip26.ConditionKindKind, Value: uint64(kind)})
			}
			if cmd.Flags().Changed("created-after") {
				conditions = append(conditions, nip26.Condition{Kind: nip26.ConditionKindCreatedAfter, Value: uint64(createdAfter)})
			}
			if cmd.Flags().Changed("created-before") {
				conditions = append(conditions, nip26.Condition{Kind: nip26.ConditionKindCreatedBefore, Value: uint64(createdBefore)})
			}

			tag, err := nip26.NewDelegationTag(sk, delegateePk, conditions)
			if err != nil {
				return fmt.Errorf("sign delegation: %w", err)
			}
			out, err := tag.AsJSON()
			if err != nil {
				return fmt.Errorf("marshal delegation tag: %w", err)
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&delegatorKeyHex, "delegator-key", "", "delegator secret key, 64 hex characters")
	cmd.Flags().StringVar(&delegateeHex, "delegatee", "", "delegatee x-only public key, 64 hex characters")
	cmd.Flags().Int64Var(&kind, "kind", 0, "restrict delegation to this event kind")
	cmd.Flags().Int64Var(&createdAfter, "created-after", 0, "restrict delegation to events created after this unix time")
	cmd.Flags().Int64Var(&createdBefore, "created-before", 0, "restrict delegation to events created before this unix time")
	_ = cmd.MarkFlagRequired("delegator-key")
	_ = cmd.MarkFlagRequired("delegatee")

	return cmd
}

// newSendCmd publishes a single event, read from a JSON file, to one
// ad-hoc relay (outside the configured pool), waiting briefly for the
// relay's OK response.
func newSendCmd() *cobra.Command {
	var relayURL, eventPath, secretKeyHex string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Publish one event to a relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(filepath.Clean(eventPath))
			if err != nil {
				return fmt.Errorf("read event file: %w", err)
			}
			var evt nostr.Event
			if err := json.Unmarshal(raw, &evt); err != nil {
				return fmt.Errorf("parse event JSON: %w", err)
			}

			if secretKeyHex != "" {
				skBytes, err := hex.DecodeString(secretKeyHex)
				if err != nil || len(skBytes) != 32 {
					return fmt.Errorf("secret-key must be 64 hex characters")
				}
				sk, _ := btcec.PrivKeyFromBytes(skBytes)
				sig, err := schnorr.Sign(sk, eventIDHash(&evt))
				if err != nil {
					return fmt.Errorf("sign event: %w", err)
				}
				evt.Sig = hex.EncodeToString(sig.Serialize())
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			inbound := relay.NewChanInbound(16)
			r := relay.New(relayURL, "", inbound, nil)
			r.Connect(ctx, true)
			if r.Status() != relay.Connected {
				return fmt.Errorf("could not connect to %s", relayURL)
			}

			env := &nostr.EventEnvelope{Event: evt}
			if err := r.SendMsg(env); err != nil {
				return fmt.Errorf("send event: %w", err)
			}
			logger.Info("event sent", zap.String("relay_url", relayURL), zap.String("event_id", evt.ID))

			select {
			case msg := <-inbound:
				data, _ := msg.Envelope.MarshalJSON()
				logger.Info("relay response", zap.ByteString("envelope", data))
			case <-ctx.Done():
			}

			_ = r.Terminate()
			return nil
		},
	}

	cmd.Flags().StringVar(&relayURL, "relay", "", "relay URL, ws:// or wss://")
	cmd.Flags().StringVar(&eventPath, "event", "", "path to a JSON-encoded event")
	cmd.Flags().StringVar(&secretKeyHex, "secret-key", "", "optional: sign the event with this secret key before sending")
	_ = cmd.MarkFlagRequired("relay")
	_ = cmd.MarkFlagRequired("event")

	return cmd
}

// eventIDHash mirrors the event-id preimage used by go-nostr's own
// Event.Sign, so send can attach a fresh signature without depending
// on the whole go-nostr signing path for one field.
func eventIDHash(evt *nostr.Event) []byte {
	evt.ID = evt.GetID()
	idBytes, _ := hex.DecodeString(evt.ID)
	return idBytes
}

