// Package harness runs storage scenarios: scripted sequences of store
// operations with expectations, executed against any storage.Storage.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	resource:
//	  name: contact
//	  unique_fields: [phone]
//	tenant: alice
//	clock: 1000
//	ids: [a, b, c]
//	steps:
//	  - op: create
//	    record: { phone: "0606" }
//	    expect:
//	      record: { id: a, last_modified: 1000 }
//	  - op: get_all
//	    query:
//	      filters:
//	        - { field: phone, op: eq, value: "0606" }
//	      sort: [-last_modified]
//	    expect:
//	      ids: [a]
//	      total: 1
//
// # Operations
//
//   - create, update, delete, get: single-record operations (id where needed)
//   - get_all: runs query; expect ids (tombstones included) and total
//   - timestamp: the collection timestamp; expect timestamp
//   - flush: empties the store
//   - clock: moves the wall clock to at (ms), forwards or backwards
//
// Any step may expect an error kind instead: not_found, unicity (with the
// conflicting field), invalid_query, unavailable or rejected.
//
// # Deterministic Testing
//
// The wall clock is frozen at the scenario's clock value and ids come from
// the scenario's ids list, so every backend must produce the same trace.
// The trace is compared against testdata/golden/<name>.golden.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/unicity.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := harness.Run(ctx, scenario, func(opts storage.Options) (storage.Storage, error) {
//	    return memory.New(opts), nil
//	})
//	if !result.Pass {
//	    for _, err := range result.Errors {
//	        log.Println(err)
//	    }
//	}
package harness
