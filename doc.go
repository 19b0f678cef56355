// Package memocache memoizes function calls and caches derived values on
// objects, recomputing them only when the values they depend on change.
//
// Components:
//   - Store: named map from content hash to value with a critical section
//     per key. ScopeProcess stores are shared process-wide; ScopeThread
//     stores live in a scope attached to a context with WithThreadScope.
//   - Call / Memoize0..3 / MemoizeNew1..2: run a function or constructor at
//     most once per distinct argument list (keys from package contenthash).
//   - Property: a value cached on a host that embeds PropertyCache, valid
//     while the hash of its dependency values is unchanged.
//   - PersistentProperty: a Property written through to a provider.Provider
//     (files by default) as a framed record, loaded on the next run.
//   - ConditionalProperty: a Property held back until all dependencies are set.
//
// Keys:
//
//	call:     contenthash.Sum(bound arguments)
//	ctor:     contenthash.SumArgs(nil, args...)
//	property: contenthash.Sum(name), snapshot = contenthash.Sum(dependency values)
//
// Property pattern:
//
//	var total = memocache.MustProperty("Total",
//		func(ctx context.Context, r *Report) (int, error) { return sum(r.Rows), nil },
//		memocache.Field[*Report]("Rows"))
//
//	n, err := total.Get(ctx, report) // computed once, until report.Rows changes
//
// Nested Gets pass their context down: it carries the held locks and the
// recursion depth, so a computation must use the ctx it was given.
package memocache
