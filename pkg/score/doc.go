// Package score computes the lower bound of the Wilson score interval for
// a binomial proportion given counts of positive and negative observations.
// It exposes [Calculator], [LowerBound], [ZScore] and the shared [Compat]
// calculator used by the table transform and the SQL function.
package score
