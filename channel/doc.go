/*
Package channel defines the channel replica one participant keeps for a
counterparty and the transactions both parties exchange to change it.

A transaction starts as a Request signed by its proposer. The counterparty
derives the same output on its own replica, confirms the request by adding
its signature and both sides apply the confirmed Txn. Open, deposit and
withdraw are travel transactions, they are settled on the chain. Transfer
and script execution stay off chain and accumulate in the channel witness
until the next travel transaction.
*/
package channel
