// Package oracle provides epoch and stake-state oracles for the stake pool
// engine.
//
// The engine never observes a blockchain directly. It asks an Oracle for the
// current epoch and for the realized balance and activation state of the two
// stake accounts it holds per validator: the validator stake account and the
// transient stake account used for in-flight moves.
//
// # Implementations
//
// Memory is a deterministic oracle for tests and simulations. Rewards and
// settlement are driven explicitly:
//
//	orc := oracle.NewMemory(1)
//	orc.AddRewards(vote, 1_000) // paid at the next boundary
//	orc.AdvanceEpoch()
//
// RPC queries a Solana-compatible JSON-RPC cluster:
//
//	cfg := oracle.DefaultRPCConfig()
//	cfg.Endpoints = []string{"https://rpc.mainnet.x1.xyz"}
//	orc, err := oracle.NewRPC(cfg)
//
// Stake account addresses are program-derived from the pool address, the
// validator vote account and, for transient accounts, the record's transient
// seed. Activation states that cannot change again within an epoch are
// cached per epoch.
//
// # Endpoint Pool
//
// RPC requests rotate over a Pool of endpoints. SimplePool provides
// round-robin selection that skips endpoints marked unhealthy after a failed
// request.
package oracle
