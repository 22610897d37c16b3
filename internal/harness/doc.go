// Package harness runs ingestion scenarios end to end.
//
// A scenario wires the real ingestion loop, classifier and reconciler to a
// fake GitHub API and a fresh fact store, executes one or more runs and
// checks the outcome. Scenarios are YAML files:
//
//	name: issue_lifecycle
//	description: "Issue events become facts; the watermark moves"
//	run_id: run-1
//	repositories:
//	  - { id: 42, name: yegor256/judges }
//	github:
//	  pulls:
//	    - repository: 42
//	      pull: { number: 7, user: { id: 8 }, additions: 3 }
//	runs:
//	  - events:
//	      - id: 101
//	        type: IssuesEvent
//	        repository: 42
//	        actor: { id: 8, login: yegor256 }
//	        at: "2024-08-05T10:00:00Z"
//	        payload: { action: opened, issue: { number: 11 } }
//	assertions:
//	  - type: fact_count
//	    what: issue-was-opened
//	    count: 1
//	  - type: watermark
//	    repository: 42
//	    latest: 101
//
// Fixture objects under github: use GitHub's REST field names and are
// decoded into the internal/github types.
//
// # Assertion Types
//
//   - fact_count: number of facts of a kind, optionally per repository and issue
//   - fact_exists: a fact whose attributes include the given ones
//   - watermark: the final watermark of a repository
//   - run_stats: scan statistics of one repository in one run
//   - call_count: number of GitHub calls with a given prefix
//
// # Deterministic Testing
//
// The store clock starts at Epoch and steps one second per write, the run
// id is fixed, and the fake API is fully scripted. Snapshots leave out fact
// ids and timestamps and are compared against testdata/golden with goldie.
package harness
