// Package model adapts heterogeneous LLM backends to one provider
// contract and applies the turn loop's generation conventions on top:
// reasoning-block priming, stop-sequence containment, and
// near-deterministic sampling when tools are bound.
package model
