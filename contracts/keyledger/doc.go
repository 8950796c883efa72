/*
Package keyledger implements Key Ledger contract.

Key Ledger contract maintains an append-only history of cryptographic public
keys per owner account. Owners register new keys, rotate them (append a
replacement without touching the superseded entry) and revoke compromised
entries; anyone can query any owner's history or resolve the owner's current
active key. The contract treats key material as opaque bytes, it neither
derives nor verifies keys.

History entries are never deleted or reordered, only appended or flagged
revoked, so an entry index handed out once stays valid for the lifetime of
the contract. The active key of an owner is the most recently appended entry
that is not revoked and not expired at the current block timestamp.

All mutating methods operate on the history of the transaction sender, read
methods take an explicit owner parameter.

# Contract notifications

KeyRegistered notification. This notification is produced when an owner
appends a new key via RegisterKey method. It carries enough data for
off-chain observers to rebuild the history without querying the contract.

	KeyRegistered:
	  - name: owner
	    type: Hash160
	  - name: index
	    type: Integer
	  - name: publicKey
	    type: ByteArray
	  - name: alg
	    type: String
	  - name: expiresAt
	    type: Integer

KeyRotated notification. This notification is produced when an owner appends
a replacement key via RotateKey method. oldIndex is -1 if the history was
empty before the call.

	KeyRotated:
	  - name: owner
	    type: Hash160
	  - name: oldIndex
	    type: Integer
	  - name: newIndex
	    type: Integer
	  - name: publicKey
	    type: ByteArray
	  - name: alg
	    type: String
	  - name: expiresAt
	    type: Integer

KeyRevoked notification. This notification is produced when an owner revokes
a history entry via RevokeKey method.

	KeyRevoked:
	  - name: owner
	    type: Hash160
	  - name: index
	    type: Integer
*/
package keyledger

/*
Contract storage model.

# Summary
Key-value storage format:
 - 'c<owner>' -> int
   number of key entries ever registered by the owner (20-byte script hash)
 - 'k<owner><index>' -> std.Serialize(KeyEntry)
   key history entry of the owner, index is encoded as 4-byte BE integer
   counted from 0 (where KeyEntry is a structure defined in current package)

# Key histories
Contract stores per-owner sequences of registered public keys. Histories only
grow: registration and rotation append exactly one entry, revocation flips
the entry's flag in place, nothing is ever removed.
*/
