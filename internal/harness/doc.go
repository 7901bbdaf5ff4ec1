// Package harness runs transaction-block scenarios described in YAML.
//
// A scenario seeds an in-memory object store, registers package manifests,
// then executes its steps through a session exactly as an application
// would: resolve the referenced objects, build the block, submit it, record
// the trace entry and classify the created objects. Each step states what
// it expects; the run fails on the first mismatch of each step but keeps
// going so that one report shows every problem.
//
// # Scenario Format
//
//	name: fund_flow
//	description: Create a pool, deposit into it, open a position
//	manifests:
//	  - ../manifests            # directories of .cue files, relative to this file
//	accounts:
//	  alice: "0xa11ce"
//	  bob: "0xb0b"
//	sender: alice
//	clock_ms: 1700000000000     # seeds the 0x6 clock object
//	flow_token: fund            # flow of steps that do not name one
//	coins:
//	  - name: gas
//	    owner: alice
//	    amount: 1000
//	objects:
//	  - name: vault
//	    id: "0xfeed"
//	    type: "0xcafe::vault::Vault"
//	    owner: alice
//	steps:
//	  - label: create pool
//	    inputs:
//	      - type: address
//	        value: bob
//	    commands:
//	      - invoke:
//	          target: "0xcafe::fund::create_pool"
//	      - transfer:
//	          objects: ["Result(0, 0)"]
//	          to: "Input(0)"
//	    expect:
//	      created_min: 2
//	    capture:
//	      pool: shared
//	      cap: "type:AdminCap"
//	  - label: deposit
//	    inputs:
//	      - object: $pool
//	        mode: SharedMut
//	      - type: u64
//	        value: 250
//	    commands:
//	      - invoke:
//	          target: "0xcafe::fund::deposit"
//	          args: ["Input(0)", "Input(1)"]
//	  - label: deposit again
//	    resubmit: deposit
//	    expect:
//	      rejected: stale
//	assertions:
//	  - type: trace_order
//	    labels: [create pool, deposit]
//	  - type: final_state
//	    object: $cap
//	    owner: bob
//
// Addresses may be written as hex, as an account name, or as $name for an
// object captured or seeded earlier. Inputs without a version take the
// latest snapshot at the time the step runs; an explicit version pins an
// older one.
//
// Expectations default to success. A step may instead expect a failed
// execution (success: false with error_kind and abort_code) or a rejection
// before submission: "not_found" and "stale" for resolution errors, or a
// construction error code such as "E_FORWARD_REF".
//
// Captures map a name to a classifier hint ("first", "shared", "owned",
// "type:Name"). Later steps refer to the captured object as $name.
package harness
