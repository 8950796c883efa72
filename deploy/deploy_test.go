package deploy

import (
	"encoding/json"
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/smartcontract/manifest"
	"github.com/nspcc-dev/neo-go/pkg/smartcontract/nef"
	"github.com/stretchr/testify/require"
)

func TestReadArtifacts(t *testing.T) {
	n, err := nef.NewFile([]byte{0x01, 0x02, 0x03})
	require.NoError(t, err)

	nefBytes, err := n.Bytes()
	require.NoError(t, err)

	m := manifest.NewManifest("Key Ledger")

	manifestBytes, err := json.Marshal(m)
	require.NoError(t, err)

	gotNEF, gotManifest, err := ReadArtifacts(nefBytes, manifestBytes)
	require.NoError(t, err)
	require.Equal(t, n.Checksum, gotNEF.Checksum)
	require.Equal(t, m.Name, gotManifest.Name)

	_, _, err = ReadArtifacts(nil, manifestBytes)
	require.Error(t, err)

	_, _, err = ReadArtifacts([]byte("definitely not a NEF"), manifestBytes)
	require.Error(t, err)

	_, _, err = ReadArtifacts(nefBytes, []byte("{"))
	require.Error(t, err)
}
