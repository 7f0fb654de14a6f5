// Package game holds the peer-replicated trivia state machine.
//
// Every participant runs its own Engine around its own Session
// replica. There is no server-side authority: a local action is
// applied to the local replica immediately and broadcast over the
// room's data channel, and every remote message is replayed through
// the same reducer, so replicas converge as long as messages arrive.
// The one order-sensitive decision, picking a buzz winner, is handled
// by time-boxing the race and broadcasting the result instead of
// relying on message ordering.
package game
