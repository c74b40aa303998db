/*
Package offchain defines the interfaces shared by the channel packages: account
addresses, key value storage and the logging context.

Two parties keep a replica of a channel each. Channel transactions are
proposed by one side, verified by the other and applied by both. Transactions
that change collateral are settled on an external ledger, everything else is
resolved between the parties. State changes are expressed as change sets that
can be merged deterministically, see the changeset package.
*/
package offchain
