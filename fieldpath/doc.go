// Package fieldpath addresses fields inside a virtual tree of form state.
//
// A path is a plain string such as "user.address.city" or "rows[2].price".
// Parse splits it into segments; dots separate named segments and brackets
// delimit a segment, so "a.b[2]", "a.b.2" and "a[b][2]" all yield the same
// segments. Segments are NFC-normalised so canonically equivalent keys compare
// equal.
//
// Parsing is hot (the same literal path is parsed many times per second by
// selectors and watchers), so Codec keeps a bounded least-recently-used cache
// of parsed paths. Each store owns its own Codec; there is no process-wide
// cache.
//
// Get, Set and Update read and write nested map[string]any / []any trees with
// structural sharing: only the nodes along the path are cloned, and a write
// that changes nothing returns the original root.
//
// SameValue is the equality used throughout the module. It follows the
// semantics of JavaScript's Object.is: NaN equals NaN, +0 does not equal -0,
// and reference types compare by identity.
package fieldpath
