// Package matching decides elimination and consensus for swipe decisions.
//
// The engine is stateless. Every call operates on a session the caller has
// locked through session.Store.With, so a decision is read, evaluated and
// applied without interleaving with other events for the same session.
package matching
