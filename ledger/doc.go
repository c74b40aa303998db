/*
Package ledger is the chain side of the channel protocol. It keeps account
balances, the records of opened channels with their settled resources,
deployed modules and a receipt for every delivered transaction.

Travel transactions of a channel are settled here. The confirmed channel
transaction carries the witness of all off chain changes since the last
settlement, the ledger merges it with the transaction output and applies the
result to the channel resources it holds. Collateral moves between accounts
and channel resources, gas is always charged to the proposer.
*/
package ledger
