// Package merge turns divergent branch frontiers into a single frontier
// by proving, pair by pair, which cross-branch events can be reordered
// freely and asking the reducer to order the rest.
//
// The evaluation is deliberately quadratic: for branches carrying n and
// m divergent events it runs up to n*m commutation checks. That cost
// buys a strong guarantee: the merged order is total, deterministic,
// and reproducible from the merge event alone, so later replays never
// re-run the analysis.
//
// A merge either completes atomically (one merge event admitted, new
// frontier returned) or fails with the graph untouched. There is no
// partial merge.
package merge
