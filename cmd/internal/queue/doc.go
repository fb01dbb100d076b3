// Package queue grows a session's candidate queue by progressively widening
// the search radius.
//
// Expansion never holds a session lock across the candidate-source call. The
// session's expanding marker serializes concurrent expansions instead, and the
// fetched items are merged in a second locked step.
package queue
