// Package harness runs scripted scenarios against a field store.
//
// A scenario registers fields, subscribes and watches, applies a sequence of
// store operations, and then checks the final field state and delivery
// counts. Every observable store event is recorded in a trace, which can be
// compared against a golden file.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: signup_flow
//	description: "Email is validated after the user types"
//	schema: schemas/signup.cue        # optional, see rules.LoadSchema
//	fields:
//	  - path: newsletter
//	    mode: controlled
//	    initial: false
//	subscriptions:
//	  - name: email_error
//	    select: error                 # value, touched, dirty or error
//	    path: user.email
//	watches:
//	  - name: prices
//	    pattern: rows.*.price
//	steps:
//	  - set: { path: user.email, value: "nope" }
//	  - touch: user.email
//	  - validate: user.email
//	    result: { ok: false, message: "must contain @" }
//	  - read: { bio: "hello" }
//	  - flush: true
//	expect:
//	  fields:
//	    - path: user.email
//	      value: "nope"
//	      dirty: true
//	      error: "must contain @"
//	  deliveries:
//	    email_error: 2
//
// Each step holds exactly one of register, unregister, touch, dirty, set,
// read, validate, validate_form or flush. A read step supplies the values
// the read accessor returns; paths it omits keep their current value.
//
// # Deterministic Testing
//
// Each run uses a fresh store with a manual scheduler and a step clock, so
// notifications are delivered only at flush steps (and after the last
// step) and traces are identical across runs. Validate steps wait for
// asynchronous validators, draining the scheduler while they do.
package harness
