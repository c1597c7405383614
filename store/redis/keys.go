package redis

// Redis key naming conventions for procession data.
// All keys are prefixed with "procession:" to avoid collisions.

const keyPrefix = "procession:"

// ── Session keys ──

// sessionKey returns the key for a wizard session: procession:session:{id}
func sessionKey(id string) string { return keyPrefix + "session:" + id }

// ── Process keys ──

// processKey returns the key for a process record: procession:process:{id}
func processKey(id string) string { return keyPrefix + "process:" + id }

// processIDsKey is the Set tracking all process IDs for enumeration.
const processIDsKey = keyPrefix + "process_ids"

// outcomesKey returns the Hash key holding a process's step outcomes,
// one field per (step, status) pair: procession:outcomes:{processID}
func outcomesKey(processID string) string { return keyPrefix + "outcomes:" + processID }

// ── Event keys ──

// eventKey returns the key for an event entity: procession:event:{id}
func eventKey(id string) string { return keyPrefix + "event:" + id }

// eventStreamKey returns the Stream key for an event name: procession:events:{name}
func eventStreamKey(name string) string { return keyPrefix + "events:" + name }

// ── Inventory keys ──

// entityKey returns the key for an inventory entity: procession:entity:{id}
func entityKey(id string) string { return keyPrefix + "entity:" + id }

// entityIDsKey is the Set tracking all entity IDs for enumeration.
const entityIDsKey = keyPrefix + "entity_ids"
