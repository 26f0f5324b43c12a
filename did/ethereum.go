package did

import (
	"context"
	"encoding/json"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/sage-x-project/dwn-agent-core/errs"
	"github.com/sage-x-project/dwn-agent-core/resilience"
	"github.com/sage-x-project/dwn-agent-core/types"
)

// registryABI is the single read method an EthereumResolver needs: a
// registry contract mapping a DID URI to its JSON-encoded DID Document.
const registryABI = `[{
	"constant": true,
	"inputs": [{"name": "didUri", "type": "string"}],
	"name": "getDocument",
	"outputs": [{"name": "document", "type": "string"}],
	"type": "function"
}]`

// EthereumResolver resolves DID Documents published to an on-chain
// registry contract, reached via raw eth_call rather than a generated
// binding (there is no bound contract for this registry in the pack).
// bind.ContractCaller is the same narrow interface go-ethereum's own
// generated bindings call through — *ethclient.Client satisfies it
// directly.
type EthereumResolver struct {
	client   bind.ContractCaller
	registry common.Address
	abi      abi.ABI
}

func NewEthereumResolver(client bind.ContractCaller, registry common.Address) (*EthereumResolver, error) {
	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, err
	}
	return &EthereumResolver{client: client, registry: registry, abi: parsed}, nil
}

func (r *EthereumResolver) Resolve(ctx context.Context, didURI string) (*types.DIDDocument, error) {
	input, err := r.abi.Pack("getDocument", didURI)
	if err != nil {
		return nil, err
	}

	call := ethereum.CallMsg{To: &r.registry, Data: input}
	var out []byte
	retryErr := resilience.RetryWithConfig(ctx, resilience.DefaultRetryConfig(), func() error {
		var callErr error
		out, callErr = r.client.CallContract(ctx, call, nil)
		return callErr
	})
	if retryErr != nil {
		return nil, errs.ErrResolutionFailed
	}

	results, err := r.abi.Unpack("getDocument", out)
	if err != nil || len(results) != 1 {
		return nil, errs.ErrResolutionFailed
	}
	docJSON, ok := results[0].(string)
	if !ok || docJSON == "" {
		return nil, errs.ErrResolutionFailed
	}

	var doc types.DIDDocument
	if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
		return nil, errs.ErrResolutionFailed
	}
	return &doc, nil
}
