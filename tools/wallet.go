package tools

import (
	"github.com/DevWeb3Jogja/batch-5-fe/core"
)

// WalletToolDefinitions returns the read tools hosted by the managed wallet
// service. Transactions are not exposed here: vault writes go through the
// orchestrator, which signs with execute_contract_call itself.
func WalletToolDefinitions() []core.ToolDefinition {
	return []core.ToolDefinition{
		{
			ToolName:        "get_wallet_profile",
			ToolDescription: "Get the managed wallet's address and the networks it can sign on.",
			InputSchema:     BuildSchemaWithThought(map[string]interface{}{}, false),
		},
		{
			ToolName: "get_transactions",
			ToolDescription: "Get the wallet's recent on-chain transactions, including vault approvals, " +
				"deposits, mints, redeems and withdrawals.",
			InputSchema: BuildSchemaWithThought(map[string]interface{}{
				"limit":    IntegerProperty("Number of transactions to return (default: 10)"),
				"chain_id": IntegerProperty("Optional: only transactions on this chain"),
			}, false),
		},
	}
}

// WalletTools creates Tool instances for the wallet service reads.
func WalletTools(executor core.ToolExecutor) []core.Tool {
	definitions := WalletToolDefinitions()
	tools := make([]core.Tool, len(definitions))
	for i, def := range definitions {
		tools[i] = core.NewExecutorTool(def, executor)
	}
	return tools
}
