// Package criteria expands multi-valued where clauses into exact-match combinations.
//
// A where clause maps field names to either a single value or a list of
// candidate values ("field IN (...)"). Stores that only support exact-match
// lookups can serve such a clause by issuing one lookup per combination:
//
//	criteria.ObjectProduct(map[string]any{
//	    "a": []int{1, 2},
//	    "b": "xyz",
//	})
//	// [{a:1 b:xyz} {a:2 b:xyz}]
//
// The first key (in sorted order) varies slowest and the last key varies
// fastest. A scalar value never multiplies the output, and an empty clause
// expands to exactly one empty combination.
package criteria
