// Package actledger implements an append-only ledger of parental-involvement
// activity entries with verification and dispute lifecycle state.
//
// Entries are identified by a sequential log id assigned from 1 and are never
// removed. Two bounded secondary indexes (by submitter, by subject) track the
// ids belonging to each party. A type registry gates which activity types may
// be logged, and a global pause switch halts all ledger mutation.
//
// Two implementations of the Ledger interface are provided:
//   - MemoryLedger: in-process, for testing and single-node deployments.
//   - PostgresLedger: durable, for production use.
package actledger
