package common

import (
	"github.com/nspcc-dev/neo-go/pkg/interop"
	"github.com/nspcc-dev/neo-go/pkg/interop/contract"
	"github.com/nspcc-dev/neo-go/pkg/interop/native/neo"
	"github.com/nspcc-dev/neo-go/pkg/interop/runtime"
)

// CommitteeAddress returns the M = N/2+1 multi-signature account address of
// the network committee.
func CommitteeAddress() interop.Hash160 {
	committee := neo.GetCommittee()
	threshold := len(committee)/2 + 1

	return contract.CreateMultisigAccount(threshold, committee)
}

// HasUpdateAccess returns true if the contract can be updated.
func HasUpdateAccess() bool {
	return runtime.CheckWitness(CommitteeAddress())
}
