// Package custody and its sub-packages implement a custodial wallet service for EVM networks.
/*
The service keeps one custodial wallet per owner. It generates the keypair, stores the private key for signing and
only a one-way hash of the recovery phrase, and tracks the wallet balance.

Services

1) a wallet service (package wallet) that implements a RESTful API for owner requests such as creating a wallet,
checking balances, sending transfers and listing address histories. The same API receives the signed notifications of
the chain data provider and reconciles the status of recorded transfers.

2) an explorer service (package explorer) that re-queries the transfers still pending at an interval, for the cases
where a notification never arrives.

Both are run by the wallet binary (cmd/wallet) as the serve and explore commands.

Architecture

A chain data layer (package lib/block) abstracts the providers: a full capability one that can generate keys, sign and
broadcast (lib/block/ethereum), a read only history index (lib/block/etherscan) and a bare node (lib/block/node). A
provider only implementing part of the capability set fails the rest with ErrNotImplemented.

Persistence is layered behind a database product agnostic interface (package lib/store) with mongodb, postgresql and
in-memory implementations. Balance updates and transfer records are written in a single atomic scope.

Transfers and status changes are published as events to a message broker (package lib/msg), and transfers of the same
owner are serialized with a lock (package lib/lock) that can be shared by instances through redis.

Configuration is read from a JSON file and OS ENV variables (package lib/config).
*/
package custody
