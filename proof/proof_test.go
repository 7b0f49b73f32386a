package proof

import (
	"reflect"
	"testing"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"github.com/ethereum/go-ethereum/core/rawdb"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/nullspace/types"
)

func testKey(i int) types.Key {
	return types.Key(crypto.Keccak256Hash([]byte{byte(i >> 8), byte(i)}))
}

func buildTrie(t *testing.T, n int) *gethtrie.Trie {
	t.Helper()
	db := triedb.NewDatabase(rawdb.NewDatabase(memorydb.New()), triedb.HashDefaults)
	tr, err := gethtrie.New(gethtrie.TrieID(gethtypes.EmptyRootHash), db)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		k := testKey(i)
		require.NoError(t, tr.Update(k[:], []byte{byte(i), 1, 2, 3}))
	}
	return tr
}

func TestBuildVerify_Inclusion(t *testing.T) {
	tr := buildTrie(t, 50)
	root := types.Hash(tr.Hash())
	keys := []types.Key{testKey(3), testKey(17)}
	values := [][]byte{{3, 1, 2, 3}, {17, 1, 2, 3}}

	p, err := Build(tr, 5, keys)
	require.NoError(t, err)
	require.Equal(t, root, p.Root)
	require.Equal(t, uint64(5), p.Height)
	require.True(t, Verify(p, 5, root, keys, values))

	// Wrong value, wrong root, wrong height, wrong version.
	require.False(t, Verify(p, 5, root, keys, [][]byte{{3, 1, 2, 4}, values[1]}))
	require.False(t, Verify(p, 5, types.Hash{1}, keys, values))
	require.False(t, Verify(p, 4, root, keys, values))
	p.Height ^= 1
	require.False(t, Verify(p, 5, root, keys, values))
	p.Height ^= 1
	p.Version = 9
	require.False(t, Verify(p, 5, root, keys, values))
}

func TestBuildVerify_Absence(t *testing.T) {
	tr := buildTrie(t, 20)
	root := types.Hash(tr.Hash())
	missing := testKey(999)

	p, err := Build(tr, 1, []types.Key{missing})
	require.NoError(t, err)
	require.True(t, Verify(p, 1, root, []types.Key{missing}, [][]byte{nil}))
	require.False(t, Verify(p, 1, root, []types.Key{missing}, [][]byte{{1}}))
}

func TestVerify_SingleBitMutation(t *testing.T) {
	tr := buildTrie(t, 30)
	root := types.Hash(tr.Hash())
	keys := []types.Key{testKey(7)}
	values := [][]byte{{7, 1, 2, 3}}

	p, err := Build(tr, 5, keys)
	require.NoError(t, err)
	require.True(t, Verify(p, 5, root, keys, values))

	// Every bit of the encoded proof: a flip either fails to decode or
	// decodes to a different proof that no longer verifies.
	enc, err := cramberry.Marshal(*p)
	require.NoError(t, err)
	for b := range enc {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), enc...)
			mutated[b] ^= 1 << bit
			var decoded types.Proof
			if err := cramberry.Unmarshal(mutated, &decoded); err != nil {
				continue
			}
			if reflect.DeepEqual(decoded, *p) {
				continue
			}
			require.False(t, Verify(&decoded, 5, root, keys, values), "byte %d bit %d", b, bit)
		}
	}
	for b := range root {
		r := root
		r[b] ^= 0x01
		require.False(t, Verify(p, 5, r, keys, values))
	}
}

func TestVerify_Limits(t *testing.T) {
	tr := buildTrie(t, 10)
	root := types.Hash(tr.Hash())

	tooMany := make([]types.Key, MaxProofKeys+1)
	_, err := Build(tr, 0, tooMany)
	require.ErrorIs(t, err, ErrTooManyKeys)

	p, err := Build(tr, 0, []types.Key{testKey(1)})
	require.NoError(t, err)
	require.False(t, Verify(p, 0, root, tooMany, make([][]byte, len(tooMany))))
	require.False(t, Verify(p, 0, root, []types.Key{testKey(1)}, nil))
	require.False(t, Verify(nil, 0, root, []types.Key{testKey(1)}, [][]byte{nil}))

	oversized := clone(p)
	oversized.Nodes = append(oversized.Nodes, make([]byte, MaxNodeSize+1))
	require.False(t, Verify(oversized, 0, root, []types.Key{testKey(1)}, [][]byte{{1, 1, 2, 3}}))

	flooded := clone(p)
	for len(flooded.Nodes) <= MaxProofNodes {
		flooded.Nodes = append(flooded.Nodes, []byte{0x80})
	}
	require.False(t, Verify(flooded, 0, root, []types.Key{testKey(1)}, [][]byte{{1, 1, 2, 3}}))

	empty := clone(p)
	empty.Nodes = nil
	require.False(t, Verify(empty, 0, root, []types.Key{testKey(1)}, [][]byte{{1, 1, 2, 3}}))
}

func TestBuild_RefusesEmptyTrie(t *testing.T) {
	tr := buildTrie(t, 0)
	require.Equal(t, gethtypes.EmptyRootHash, tr.Hash())

	_, err := Build(tr, 0, []types.Key{testKey(1)})
	require.ErrorIs(t, err, ErrEmptyTrie)
}

func TestBuild_Deterministic(t *testing.T) {
	keys := []types.Key{testKey(4), testKey(2), testKey(40)}
	a, err := Build(buildTrie(t, 64), 3, keys)
	require.NoError(t, err)
	b, err := Build(buildTrie(t, 64), 3, keys)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestRange_TamperedLeafFails(t *testing.T) {
	tr := buildTrie(t, 40)
	root := types.Hash(tr.Hash())

	nodeIt, err := tr.NodeIterator(nil)
	require.NoError(t, err)
	it := gethtrie.NewIterator(nodeIt)
	var keys, values [][]byte
	for it.Next() && len(keys) < 10 {
		keys = append(keys, append([]byte(nil), it.Key...))
		values = append(values, append([]byte(nil), it.Value...))
	}
	require.NoError(t, it.Err)

	origin := make([]byte, 32)
	rp, err := BuildRange(tr, 0, origin, keys, values)
	require.NoError(t, err)
	more, ok := VerifyRange(rp, root, origin)
	require.True(t, ok)
	require.True(t, more)

	rp.Values[4] = []byte{0xFF}
	_, ok = VerifyRange(rp, root, origin)
	require.False(t, ok)
}

func clone(p *types.Proof) *types.Proof {
	out := *p
	out.Nodes = make([][]byte, len(p.Nodes))
	for i, n := range p.Nodes {
		out.Nodes[i] = append([]byte(nil), n...)
	}
	return &out
}
