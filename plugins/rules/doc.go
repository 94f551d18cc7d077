// Package rules builds field validators from declarative rules.
//
// Two rule languages are supported:
//
//   - CUE constraints: the field value is encoded as a CUE value and unified
//     with the constraint; the value passes when the result is concrete and
//     free of conflicts.
//   - expr expressions: a boolean expression evaluated against
//     {value, path, touched, dirty}.
//
// Rules can be attached to a store directly (store.WithValidator,
// Store.AddValidator), bundled into a store.Plugin with Plugin, or described
// in a CUE form schema and loaded with LoadSchema.
//
// Example:
//
//	email, _ := rules.CUE("email", `=~"@"`, "must contain @")
//	s := store.New(store.WithPlugins(rules.Plugin("rules", map[string][]*store.Validator{
//	    "user.email": {email},
//	})))
package rules
