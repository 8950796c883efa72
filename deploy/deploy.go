// Package deploy provides Key Ledger contract deployment routine.
package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/core/state"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/actor"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/management"
	"github.com/nspcc-dev/neo-go/pkg/smartcontract/manifest"
	"github.com/nspcc-dev/neo-go/pkg/smartcontract/nef"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/vmstate"
	"github.com/nspcc-dev/neo-go/pkg/wallet"
	"go.uber.org/zap"
)

// Blockchain groups services provided by particular Neo blockchain network
// that are required for Key Ledger contract deployment.
type Blockchain interface {
	// RPCActor groups functions needed to compose and send transactions to the
	// blockchain.
	actor.RPCActor

	// GetContractStateByHash returns network state of the smart contract by its
	// address. GetContractStateByHash returns error with 'Unknown contract'
	// substring if requested contract is missing.
	GetContractStateByHash(util.Uint160) (*state.Contract, error)
}

// Prm groups parameters of the Key Ledger contract deployment procedure.
type Prm struct {
	// Writes progress into the log.
	Logger *zap.Logger

	// Particular Neo blockchain instance the contract is deployed to.
	Blockchain Blockchain

	// Local process account used for transaction signing (must be unlocked).
	// The contract address is a function of this account, so repeated calls
	// with the same account and compiled artifacts are idempotent.
	LocalAccount *wallet.Account

	// Compiled contract artifacts.
	NEF      nef.File
	Manifest manifest.Manifest

	// Optional data passed to the _deploy method.
	DeployData any
}

// Deploy deploys Key Ledger contract represented by given Prm artifacts into
// the given Prm.Blockchain and returns its on-chain address. If the contract
// deployed from Prm.LocalAccount is already on the chain, Deploy does nothing
// and returns its address, so the procedure may be safely re-run after any
// interruption.
func Deploy(ctx context.Context, prm Prm) (util.Uint160, error) {
	expectedAddress := state.CreateContractHash(prm.LocalAccount.ScriptHash(), prm.NEF.Checksum, prm.Manifest.Name)

	stateOnChain, err := prm.Blockchain.GetContractStateByHash(expectedAddress)
	if err == nil {
		prm.Logger.Info("contract is already on the chain, nothing to do",
			zap.Stringer("address", stateOnChain.Hash))
		return stateOnChain.Hash, nil
	} else if !strings.Contains(err.Error(), "Unknown contract") {
		return util.Uint160{}, fmt.Errorf("read on-chain state of the contract by address: %w", err)
	}

	if ctx.Err() != nil {
		return util.Uint160{}, ctx.Err()
	}

	localActor, err := actor.NewSimple(prm.Blockchain, prm.LocalAccount)
	if err != nil {
		return util.Uint160{}, fmt.Errorf("init transaction sender from local account: %w", err)
	}

	prm.Logger.Info("contract is missing on the chain, deploying...",
		zap.String("name", prm.Manifest.Name), zap.Stringer("address", expectedAddress))

	txHash, vub, err := management.New(localActor).Deploy(&prm.NEF, &prm.Manifest, prm.DeployData)
	if err != nil {
		return util.Uint160{}, fmt.Errorf("send transaction deploying the contract: %w", err)
	}

	prm.Logger.Info("transaction deploying the contract has been successfully sent, waiting for one to be accepted...",
		zap.Stringer("tx", txHash), zap.Uint32("vub", vub))

	res, err := localActor.Wait(txHash, vub, nil)
	if err != nil {
		return util.Uint160{}, fmt.Errorf("wait for deploy transaction %s to be accepted: %w", txHash, err)
	}

	if res.VMState != vmstate.Halt {
		return util.Uint160{}, fmt.Errorf("deploy transaction %s failed: %s", txHash, res.FaultException)
	}

	prm.Logger.Info("the contract has been successfully deployed", zap.Stringer("address", expectedAddress))

	return expectedAddress, nil
}

// Update sends a transaction updating on-chain contract at the given address
// with the given artifacts and waits for it to be accepted. The transaction
// must be witnessed by the network committee, so Prm.LocalAccount has to be
// a committee account for single-node setups.
func Update(ctx context.Context, prm Prm, onChainAddress util.Uint160) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	localActor, err := actor.NewSimple(prm.Blockchain, prm.LocalAccount)
	if err != nil {
		return fmt.Errorf("init transaction sender from local account: %w", err)
	}

	nefBytes, err := prm.NEF.Bytes()
	if err != nil {
		return fmt.Errorf("encode NEF into binary: %w", err)
	}

	manifestBytes, err := json.Marshal(prm.Manifest)
	if err != nil {
		return fmt.Errorf("encode manifest into JSON: %w", err)
	}

	txHash, vub, err := localActor.SendCall(onChainAddress, "update", nefBytes, manifestBytes, prm.DeployData)
	if err != nil {
		if strings.Contains(err.Error(), "contract version mismatch") {
			prm.Logger.Info("contract is already updated, nothing to do", zap.Stringer("address", onChainAddress))
			return nil
		}
		return fmt.Errorf("send transaction updating the contract: %w", err)
	}

	res, err := localActor.Wait(txHash, vub, nil)
	if err != nil {
		return fmt.Errorf("wait for update transaction %s to be accepted: %w", txHash, err)
	}

	if res.VMState != vmstate.Halt {
		return fmt.Errorf("update transaction %s failed: %s", txHash, res.FaultException)
	}

	prm.Logger.Info("the contract has been successfully updated", zap.Stringer("address", onChainAddress))

	return nil
}

// ReadArtifacts reads compiled contract NEF and manifest from the given raw
// binary and JSON encodings correspondingly.
func ReadArtifacts(nefBytes, manifestBytes []byte) (nef.File, manifest.Manifest, error) {
	var (
		n nef.File
		m manifest.Manifest
	)

	if len(nefBytes) == 0 {
		return n, m, errors.New("empty NEF")
	}

	n, err := nef.FileFromBytes(nefBytes)
	if err != nil {
		return n, m, fmt.Errorf("decode NEF from binary: %w", err)
	}

	err = json.Unmarshal(manifestBytes, &m)
	if err != nil {
		return n, m, fmt.Errorf("decode manifest from JSON: %w", err)
	}

	return n, m, nil
}
