// Package ratelimit holds per-operation token-bucket budgets keyed by origin.
//
// Budgets never touch session state. A denied check reports how long the
// caller should wait. Failed join and reconnect attempts additionally draw on
// a stricter per-origin penalty budget that successful operations never touch.
package ratelimit
