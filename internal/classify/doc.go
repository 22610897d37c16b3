// Package classify turns raw GitHub events into facts.
//
// Classifier implements engine.Classifier. Each event payload is routed to
// one method of Handler; the method returns engine.Derive with a fully
// built fact, or engine.Discard with a reason.
//
// Dispatch:
//
//	PushEvent                always discarded
//	PullRequestEvent         closed -> pull-was-merged / pull-was-closed
//	PullRequestReviewEvent   created, submitted -> pull-was-reviewed
//	IssuesEvent              opened, closed -> issue-was-opened / issue-was-closed
//	IssueCommentEvent        created -> comment-was-posted
//	ReleaseEvent             published -> release-published
//	CreateEvent              ref_type tag -> tag-was-created
//	anything else            discarded
//
// Self-authored reviews and comments are discarded, as are repeated reviews
// of one pull request by the same reviewer.
//
// When enrichment reports that the pull request is gone, the classifier
// retracts every fact about it through the reconciler and discards.
package classify
