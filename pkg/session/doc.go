/*
Package session implements session management and persistence orchestration.

Hosts that keep conversations server-side load a snapshot, run one turn and
save the result. The Manager makes that cycle atomic per session id, locally
through reference-counted mutexes and across replicas through an optional
ports.DistributedLocker.
*/
package session
