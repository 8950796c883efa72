// Command keyledger-cli manages a Key Ledger contract deployed on a Neo
// blockchain: deploys it, registers/rotates/revokes keys of the local wallet
// account and reads key histories of arbitrary owners.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/core/state"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/actor"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/invoker"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"github.com/nspcc-dev/neo-go/pkg/vm/vmstate"
	"github.com/nspcc-dev/neo-go/pkg/wallet"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/keyledger/keyledger-contract/deploy"
	"github.com/keyledger/keyledger-contract/internal/config"
	"github.com/keyledger/keyledger-contract/rpc/keyledger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	root := &cobra.Command{
		Use:           "keyledger-cli",
		Short:         "Key Ledger contract management tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfg.RPC.Endpoint, "rpc-endpoint", cfg.RPC.Endpoint, "Neo RPC node address")
	root.PersistentFlags().StringVar(&cfg.Wallet.Path, "wallet", cfg.Wallet.Path, "path to NEP-6 wallet")
	root.PersistentFlags().StringVar(&cfg.Wallet.Password, "password", cfg.Wallet.Password, "wallet account password")
	root.PersistentFlags().StringVar(&cfg.Contract.Address, "contract", cfg.Contract.Address, "Key Ledger contract address")

	root.AddCommand(
		deployCommand(cfg),
		registerCommand(cfg),
		rotateCommand(cfg),
		revokeCommand(cfg),
		countCommand(cfg),
		keyCommand(cfg),
		activeCommand(cfg),
		historyCommand(cfg),
	)

	return root.Execute()
}

func deployCommand(cfg *config.Config) *cobra.Command {
	var nefPath, manifestPath string

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the Key Ledger contract from compiled artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			nefBytes, err := os.ReadFile(nefPath)
			if err != nil {
				return fmt.Errorf("read NEF file: %w", err)
			}
			manifestBytes, err := os.ReadFile(manifestPath)
			if err != nil {
				return fmt.Errorf("read manifest file: %w", err)
			}
			nefFile, m, err := deploy.ReadArtifacts(nefBytes, manifestBytes)
			if err != nil {
				return err
			}

			c, err := connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			acc, err := openAccount(cfg)
			if err != nil {
				return err
			}
			logger, err := buildLogger(cfg.Log.Level)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			contractAddress, err := deploy.Deploy(cmd.Context(), deploy.Prm{
				Logger:       logger,
				Blockchain:   c,
				LocalAccount: acc,
				NEF:          nefFile,
				Manifest:     m,
			})
			if err != nil {
				return err
			}

			fmt.Println(address.Uint160ToString(contractAddress))
			return nil
		},
	}

	cmd.Flags().StringVar(&nefPath, "nef", "keyledger.nef", "path to compiled contract NEF")
	cmd.Flags().StringVar(&manifestPath, "manifest", "keyledger.manifest.json", "path to contract manifest")

	return cmd
}

func registerCommand(cfg *config.Config) *cobra.Command {
	var expiresAt int64

	cmd := &cobra.Command{
		Use:   "register <public-key-hex> <alg>",
		Short: "Append a new key to the history of the wallet account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			publicKey, err := hex.DecodeString(args[0])
			if err != nil {
				return fmt.Errorf("invalid public key hex: %w", err)
			}

			ctr, act, err := contractWriter(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			txHash, vub, err := ctr.RegisterKey(publicKey, args[1], big.NewInt(expiresAt))
			res, err := await(act, txHash, vub, err)
			if err != nil {
				return err
			}

			for _, e := range res.Events {
				if e.Name != "KeyRegistered" {
					continue
				}
				var ev keyledger.KeyRegisteredEvent
				if err := ev.FromStackItem(e.Item); err != nil {
					return fmt.Errorf("decode KeyRegistered event: %w", err)
				}
				fmt.Printf("registered key #%d of %s\n", ev.Index, address.Uint160ToString(ev.Owner))
				return nil
			}
			return errors.New("transaction accepted, but no KeyRegistered event found")
		},
	}

	cmd.Flags().Int64Var(&expiresAt, "expires-at", 0, "expiration timestamp, ms since Unix epoch (0 = never)")

	return cmd
}

func rotateCommand(cfg *config.Config) *cobra.Command {
	var expiresAt int64

	cmd := &cobra.Command{
		Use:   "rotate <public-key-hex> <alg>",
		Short: "Register a new key and report which one it supersedes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			publicKey, err := hex.DecodeString(args[0])
			if err != nil {
				return fmt.Errorf("invalid public key hex: %w", err)
			}

			ctr, act, err := contractWriter(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			txHash, vub, err := ctr.RotateKey(publicKey, args[1], big.NewInt(expiresAt))
			res, err := await(act, txHash, vub, err)
			if err != nil {
				return err
			}

			for _, e := range res.Events {
				if e.Name != "KeyRotated" {
					continue
				}
				var ev keyledger.KeyRotatedEvent
				if err := ev.FromStackItem(e.Item); err != nil {
					return fmt.Errorf("decode KeyRotated event: %w", err)
				}
				if ev.OldIndex.Sign() < 0 {
					fmt.Printf("rotated to key #%d (no previous key)\n", ev.NewIndex)
				} else {
					fmt.Printf("rotated from key #%d to key #%d\n", ev.OldIndex, ev.NewIndex)
				}
				return nil
			}
			return errors.New("transaction accepted, but no KeyRotated event found")
		},
	}

	cmd.Flags().Int64Var(&expiresAt, "expires-at", 0, "expiration timestamp, ms since Unix epoch (0 = never)")

	return cmd
}

func revokeCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <index>",
		Short: "Permanently revoke a key of the wallet account by history index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, ok := new(big.Int).SetString(args[0], 10)
			if !ok {
				return fmt.Errorf("invalid index %q", args[0])
			}

			ctr, act, err := contractWriter(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			txHash, vub, err := ctr.RevokeKey(index)
			if _, err := await(act, txHash, vub, err); err != nil {
				return err
			}

			fmt.Printf("revoked key #%s\n", index)
			return nil
		},
	}
}

func countCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "count <owner>",
		Short: "Print the number of keys ever registered by the owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := parseOwner(args[0])
			if err != nil {
				return err
			}
			reader, _, err := contractReader(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			n, err := reader.GetHistoryCount(owner)
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
}

func keyCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "key <owner> <index>",
		Short: "Print a single history entry of the owner",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := parseOwner(args[0])
			if err != nil {
				return err
			}
			index, ok := new(big.Int).SetString(args[1], 10)
			if !ok {
				return fmt.Errorf("invalid index %q", args[1])
			}
			reader, _, err := contractReader(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			entry, err := reader.GetKey(owner, index)
			if err != nil {
				return err
			}
			return printJSON(keyEntryOutput{
				PublicKey:    hex.EncodeToString(entry.PublicKey),
				Alg:          entry.Alg,
				RegisteredAt: entry.RegisteredAt.Int64(),
				ExpiresAt:    entry.ExpiresAt.Int64(),
				Revoked:      entry.Revoked,
			})
		},
	}
}

func activeCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "active <owner>",
		Short: "Print the most recent usable key of the owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := parseOwner(args[0])
			if err != nil {
				return err
			}
			reader, _, err := contractReader(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			active, err := reader.GetActiveKey(owner)
			if err != nil {
				return err
			}
			if !active.Found {
				return errors.New("owner has no active key")
			}
			return printJSON(keyEntryOutput{
				PublicKey:    hex.EncodeToString(active.PublicKey),
				Alg:          active.Alg,
				RegisteredAt: active.RegisteredAt.Int64(),
				ExpiresAt:    active.ExpiresAt.Int64(),
				Revoked:      active.Revoked,
			})
		},
	}
}

func historyCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "history <owner>",
		Short: "Print the full key history of the owner in registration order",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := parseOwner(args[0])
			if err != nil {
				return err
			}
			reader, inv, err := contractReader(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			items, err := iterateHistory(reader, inv, owner)
			if err != nil {
				return err
			}

			out := make([]keyEntryOutput, 0, len(items))
			for i := range items {
				var entry keyledger.KeyledgerKeyEntry
				if err := entry.FromStackItem(items[i]); err != nil {
					return fmt.Errorf("decode history entry #%d: %w", i, err)
				}
				out = append(out, keyEntryOutput{
					Index:        i,
					PublicKey:    hex.EncodeToString(entry.PublicKey),
					Alg:          entry.Alg,
					RegisteredAt: entry.RegisteredAt.Int64(),
					ExpiresAt:    entry.ExpiresAt.Int64(),
					Revoked:      entry.Revoked,
				})
			}
			return printJSON(out)
		},
		Args: cobra.ExactArgs(1),
	}
}

// iterateHistory traverses the history iterator via a server session falling
// back to in-script expansion when the server has sessions disabled.
func iterateHistory(reader *keyledger.ContractReader, inv *invoker.Invoker, owner util.Uint160) ([]stackitem.Item, error) {
	const pageSize = 100

	sessionID, iter, err := reader.IterateHistory(owner)
	if err != nil {
		return reader.IterateHistoryExpanded(owner, pageSize)
	}
	defer inv.TerminateSession(sessionID) //nolint:errcheck

	var items []stackitem.Item
	for {
		page, err := inv.TraverseIterator(sessionID, &iter, pageSize)
		if err != nil {
			return nil, fmt.Errorf("traverse history iterator: %w", err)
		}
		items = append(items, page...)
		if len(page) < pageSize {
			return items, nil
		}
	}
}

type keyEntryOutput struct {
	Index        int    `json:"index,omitempty"`
	PublicKey    string `json:"publicKey"`
	Alg          string `json:"alg"`
	RegisteredAt int64  `json:"registeredAt"`
	ExpiresAt    int64  `json:"expiresAt"`
	Revoked      bool   `json:"revoked"`
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func connect(ctx context.Context, cfg *config.Config) (*rpcclient.Client, error) {
	c, err := rpcclient.New(ctx, cfg.RPC.Endpoint, rpcclient.Options{DialTimeout: cfg.RPC.DialTimeout})
	if err != nil {
		return nil, fmt.Errorf("create RPC client: %w", err)
	}
	if err := c.Init(); err != nil {
		return nil, fmt.Errorf("init RPC client: %w", err)
	}
	return c, nil
}

func openAccount(cfg *config.Config) (*wallet.Account, error) {
	w, err := wallet.NewWalletFromFile(cfg.Wallet.Path)
	if err != nil {
		return nil, fmt.Errorf("open wallet: %w", err)
	}
	if len(w.Accounts) == 0 {
		return nil, errors.New("wallet has no accounts")
	}
	acc := w.Accounts[0]
	if err := acc.Decrypt(cfg.Wallet.Password, w.Scrypt); err != nil {
		return nil, fmt.Errorf("unlock wallet account %s: %w", acc.Address, err)
	}
	return acc, nil
}

func contractReader(ctx context.Context, cfg *config.Config) (*keyledger.ContractReader, *invoker.Invoker, error) {
	contractHash, err := cfg.Contract.Hash()
	if err != nil {
		return nil, nil, err
	}
	c, err := connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	inv := invoker.New(c, nil)
	return keyledger.NewReader(inv, contractHash), inv, nil
}

func contractWriter(ctx context.Context, cfg *config.Config) (*keyledger.Contract, *actor.Actor, error) {
	contractHash, err := cfg.Contract.Hash()
	if err != nil {
		return nil, nil, err
	}
	c, err := connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	acc, err := openAccount(cfg)
	if err != nil {
		return nil, nil, err
	}
	act, err := actor.NewSimple(c, acc)
	if err != nil {
		return nil, nil, fmt.Errorf("init transaction sender: %w", err)
	}
	return keyledger.New(act, contractHash), act, nil
}

// await waits for the sent transaction to be accepted and checks its
// execution result.
func await(act *actor.Actor, txHash util.Uint256, vub uint32, err error) (*state.AppExecResult, error) {
	res, err := act.Wait(txHash, vub, err)
	if err != nil {
		return nil, fmt.Errorf("wait for transaction to be accepted: %w", err)
	}
	if res.VMState != vmstate.Halt {
		return nil, fmt.Errorf("transaction %s failed: %s", txHash, res.FaultException)
	}
	return res, nil
}

func parseOwner(s string) (util.Uint160, error) {
	owner, err := address.StringToUint160(s)
	if err == nil {
		return owner, nil
	}
	owner, err = util.Uint160DecodeStringLE(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return util.Uint160{}, fmt.Errorf("invalid owner %q: expected Neo address or script hash", s)
	}
	return owner, nil
}

func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = lvl
	}
	return cfg.Build()
}
