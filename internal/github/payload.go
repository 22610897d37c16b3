package github

import (
	"context"
	"encoding/json"
	"fmt"
)

// Event types understood by Decode.
const (
	TypePush              = "PushEvent"
	TypePullRequest       = "PullRequestEvent"
	TypePullRequestReview = "PullRequestReviewEvent"
	TypeIssues            = "IssuesEvent"
	TypeIssueComment      = "IssueCommentEvent"
	TypeRelease           = "ReleaseEvent"
	TypeCreate            = "CreateEvent"
)

// Payload is the decoded, typed payload of an event.
//
// This is a sealed interface - only types in this package implement it.
type Payload interface {
	payloadNode() // Marker method - seals interface to this package
}

// PushPayload is the payload of a PushEvent.
type PushPayload struct {
	Ref  string `json:"ref"`
	Size int    `json:"size"`
}

// PullRequestPayload is the payload of a PullRequestEvent.
type PullRequestPayload struct {
	Action      string      `json:"action"`
	Number      int64       `json:"number"`
	PullRequest PullRequest `json:"pull_request"`
}

// PullRequestReviewPayload is the payload of a PullRequestReviewEvent.
type PullRequestReviewPayload struct {
	Action      string      `json:"action"`
	Review      Review      `json:"review"`
	PullRequest PullRequest `json:"pull_request"`
}

// IssuesPayload is the payload of an IssuesEvent.
type IssuesPayload struct {
	Action string `json:"action"`
	Issue  Issue  `json:"issue"`
}

// IssueCommentPayload is the payload of an IssueCommentEvent.
type IssueCommentPayload struct {
	Action  string  `json:"action"`
	Issue   Issue   `json:"issue"`
	Comment Comment `json:"comment"`
}

// ReleasePayload is the payload of a ReleaseEvent.
type ReleasePayload struct {
	Action  string  `json:"action"`
	Release Release `json:"release"`
}

// CreatePayload is the payload of a CreateEvent.
type CreatePayload struct {
	Ref     string `json:"ref"`
	RefType string `json:"ref_type"`
}

// UnknownPayload carries any event type without a dedicated variant.
type UnknownPayload struct {
	Type string
	Raw  json.RawMessage
}

func (PushPayload) payloadNode()              {}
func (PullRequestPayload) payloadNode()       {}
func (PullRequestReviewPayload) payloadNode() {}
func (IssuesPayload) payloadNode()            {}
func (IssueCommentPayload) payloadNode()      {}
func (ReleasePayload) payloadNode()           {}
func (CreatePayload) payloadNode()            {}
func (UnknownPayload) payloadNode()           {}

// Decode parses the event payload into its typed variant.
// Unrecognized types decode to UnknownPayload without error.
func (e Event) Decode() (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch e.Type {
	case TypePush:
		p, err = decodeAs[PushPayload](e.Payload)
	case TypePullRequest:
		p, err = decodeAs[PullRequestPayload](e.Payload)
	case TypePullRequestReview:
		p, err = decodeAs[PullRequestReviewPayload](e.Payload)
	case TypeIssues:
		p, err = decodeAs[IssuesPayload](e.Payload)
	case TypeIssueComment:
		p, err = decodeAs[IssueCommentPayload](e.Payload)
	case TypeRelease:
		p, err = decodeAs[ReleasePayload](e.Payload)
	case TypeCreate:
		p, err = decodeAs[CreatePayload](e.Payload)
	default:
		return UnknownPayload{Type: e.Type, Raw: e.Payload}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s %d: %w", e.Type, e.ID, err)
	}
	return p, nil
}

func decodeAs[T Payload](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}

// Handler has one method per payload variant.
// Adding a variant means adding a method here, so every implementation
// stops compiling until it handles the new kind.
type Handler[T any] interface {
	Push(ctx context.Context, ev Event, p PushPayload) (T, error)
	PullRequest(ctx context.Context, ev Event, p PullRequestPayload) (T, error)
	PullRequestReview(ctx context.Context, ev Event, p PullRequestReviewPayload) (T, error)
	Issues(ctx context.Context, ev Event, p IssuesPayload) (T, error)
	IssueComment(ctx context.Context, ev Event, p IssueCommentPayload) (T, error)
	Release(ctx context.Context, ev Event, p ReleasePayload) (T, error)
	Create(ctx context.Context, ev Event, p CreatePayload) (T, error)
	Unknown(ctx context.Context, ev Event, p UnknownPayload) (T, error)
}

// Dispatch routes a payload to the matching handler method.
func Dispatch[T any](ctx context.Context, ev Event, p Payload, h Handler[T]) (T, error) {
	switch pl := p.(type) {
	case PushPayload:
		return h.Push(ctx, ev, pl)
	case PullRequestPayload:
		return h.PullRequest(ctx, ev, pl)
	case PullRequestReviewPayload:
		return h.PullRequestReview(ctx, ev, pl)
	case IssuesPayload:
		return h.Issues(ctx, ev, pl)
	case IssueCommentPayload:
		return h.IssueComment(ctx, ev, pl)
	case ReleasePayload:
		return h.Release(ctx, ev, pl)
	case CreatePayload:
		return h.Create(ctx, ev, pl)
	case UnknownPayload:
		return h.Unknown(ctx, ev, pl)
	default:
		var zero T
		return zero, fmt.Errorf("unsupported payload type: %T", p)
	}
}
