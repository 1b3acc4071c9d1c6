// Package fmtstr interprets the short textual format-string DSL used
// to build and destructure variant.Value trees from a heterogeneous
// argument list: a type string plus four sigils — "@T" (insert/
// extract a *variant.Value verbatim, typed T), "*"/"?"/"r" (any/any-
// basic/any-tuple wildcards), "&..." (borrow bytes without copying,
// permitted only for strings and fixed-width primitives or arrays
// thereof), and "^as"/"^a&s" (a null-terminated string list, built
// from or destructured into a Go []string).
package fmtstr
