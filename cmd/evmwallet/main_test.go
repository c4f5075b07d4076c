package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testAddress  = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(""))
	err := root.Execute()
	return out.String(), err
}

// node is a minimal Sepolia node for the CLI tests.
type node struct {
	mu      sync.Mutex
	methods []string
	raw     []byte
}

func startNode(t *testing.T) *node {
	t.Helper()
	n := &node{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		n.mu.Lock()
		n.methods = append(n.methods, req.Method)
		n.mu.Unlock()

		var result string
		switch req.Method {
		case "eth_chainId":
			result = `"0xaa36a7"`
		case "eth_gasPrice":
			result = `"0x3b9aca00"`
		case "eth_getBalance":
			result = `"0xde0b6b3a7640000"`
		case "eth_getTransactionCount":
			result = `"0x0"`
		case "eth_sendRawTransaction":
			var hexRaw string
			_ = json.Unmarshal(req.Params[0], &hexRaw)
			raw, err := hexutil.Decode(hexRaw)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			n.mu.Lock()
			n.raw = raw
			n.mu.Unlock()
			result = `"` + crypto.Keccak256Hash(raw).Hex() + `"`
		case "eth_getTransactionReceipt":
			result = `{"status":"0x1","blockNumber":"0x42","gasUsed":"0x5208"}`
		default:
			result = "null"
		}
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":`+result+`}`)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("EVM_TESTNET_RPC_URL", srv.URL)
	return n
}

func TestAddressCommand(t *testing.T) {
	t.Setenv(MnemonicEnv, testMnemonic)

	out, err := run(t, "address")
	require.NoError(t, err)
	assert.Contains(t, out, testAddress)
	assert.Contains(t, out, "m/44'/60'/0'/0/0")
	assert.Contains(t, out, "Public key: 0x04")

	out, err = run(t, "address", "--index", "1")
	require.NoError(t, err)
	assert.NotContains(t, out, testAddress)
	assert.Contains(t, out, "m/44'/60'/0'/0/1")
}

func TestAddressCommand_ConfiguredPath(t *testing.T) {
	t.Setenv(MnemonicEnv, testMnemonic)
	t.Setenv("EVM_DERIVATION_PATH", "m/44'/60'/0'/0/1")

	out, err := run(t, "address")
	require.NoError(t, err)
	assert.Contains(t, out, "Path:       m/44'/60'/0'/0/1")

	indexed, err := run(t, "address", "--index", "1")
	require.NoError(t, err)
	assert.Equal(t, indexed, out)
}

func TestAddressCommand_InvalidMnemonic(t *testing.T) {
	t.Setenv(MnemonicEnv, "abandon abandon abandon")

	_, err := run(t, "address")
	assert.ErrorContains(t, err, "invalid mnemonic")
}

func TestAddressCommand_NoMnemonic(t *testing.T) {
	t.Setenv(MnemonicEnv, "")

	_, err := run(t, "address")
	assert.ErrorContains(t, err, MnemonicEnv)
}

func TestAddressCommand_NormalizesMnemonic(t *testing.T) {
	t.Setenv(MnemonicEnv, "  "+strings.ToUpper(testMnemonic)+"\n")

	out, err := run(t, "address")
	require.NoError(t, err)
	assert.Contains(t, out, testAddress)
}

func TestBalanceCommand(t *testing.T) {
	startNode(t)

	out, err := run(t, "--testnet", "balance", testAddress)
	require.NoError(t, err)
	assert.Equal(t, "1.000000 ETH\n", out)

	_, err = run(t, "--testnet", "balance", "0x1234")
	assert.Error(t, err)
}

func TestSendCommand_Wait(t *testing.T) {
	n := startNode(t)
	t.Setenv(MnemonicEnv, testMnemonic)
	t.Setenv("EVM_EXPECTED_CHAIN_ID", "11155111")

	out, err := run(t, "--testnet", "send", "--to", "0x3535353535353535353535353535353535353535", "--amount", "0.5", "--wait")
	require.NoError(t, err)

	assert.Contains(t, out, "Tx hash:   "+crypto.Keccak256Hash(n.raw).Hex())
	assert.Contains(t, out, "Value:     0.500000 ETH")
	assert.Contains(t, out, "Status:    success (0x1)")
	assert.Contains(t, n.methods, "eth_getTransactionCount")
	assert.Equal(t, "eth_getTransactionReceipt", n.methods[len(n.methods)-1])
}

func TestSendCommand_InvalidInput(t *testing.T) {
	startNode(t)
	t.Setenv(MnemonicEnv, testMnemonic)

	_, err := run(t, "--testnet", "send", "--to", "0x1234", "--amount", "1")
	assert.Error(t, err)

	_, err = run(t, "--testnet", "send", "--to", testAddress, "--amount", "-1")
	assert.Error(t, err)
}

func TestSendCommand_NoIdempotencyFlag(t *testing.T) {
	startNode(t)
	t.Setenv(MnemonicEnv, testMnemonic)

	_, err := run(t, "--testnet", "send", "--to", testAddress, "--amount", "1", "--idempotency-key", "k")
	assert.ErrorContains(t, err, "unknown flag")
}

func TestWaitCommand(t *testing.T) {
	startNode(t)

	out, err := run(t, "--testnet", "wait", "0xabc")
	require.NoError(t, err)
	assert.Contains(t, out, "Block:     0x42")
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := run(t, "--log-level", "loud", "address")
	assert.ErrorContains(t, err, "log-level")
}
