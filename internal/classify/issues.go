package classify

import (
	"context"
	"fmt"

	"github.com/roach88/factmirror/internal/engine"
	"github.com/roach88/factmirror/internal/fact"
	"github.com/roach88/factmirror/internal/github"
)

func (h handler) Push(_ context.Context, ev github.Event, p github.PushPayload) (engine.Result, error) {
	return engine.Discardf("push to %s carries no signal", p.Ref), nil
}

func (h handler) Issues(_ context.Context, ev github.Event, p github.IssuesPayload) (engine.Result, error) {
	var what string
	switch p.Action {
	case "opened":
		what = fact.KindIssueOpened
	case "closed":
		what = fact.KindIssueClosed
	default:
		return engine.Discardf("issue action %q", p.Action), nil
	}
	f := newFact(ev, what)
	f.Issue = p.Issue.Number
	f.Set("details", fact.String(fmt.Sprintf("The issue %s#%d has been %s by %s.",
		ev.Repo.Name, p.Issue.Number, p.Action, mention(ev.Actor))))
	return engine.Derive(f), nil
}

func (h handler) IssueComment(_ context.Context, ev github.Event, p github.IssueCommentPayload) (engine.Result, error) {
	if p.Action != "created" {
		return engine.Discardf("comment action %q", p.Action), nil
	}
	if p.Comment.User.ID == p.Issue.User.ID {
		return engine.Discard("comment by the issue author"), nil
	}
	f := newFact(ev, fact.KindCommentPosted)
	f.Issue = p.Issue.Number
	f.Set("who", fact.Int(p.Comment.User.ID)).
		Set("comment_id", fact.Int(p.Comment.ID)).
		Set("comment_body", fact.String(p.Comment.Body)).
		Set("details", fact.String(fmt.Sprintf("A new comment #%d has been posted to %s#%d by %s.",
			p.Comment.ID, ev.Repo.Name, p.Issue.Number, mention(p.Comment.User))))
	return engine.Derive(f), nil
}

func (h handler) Create(_ context.Context, ev github.Event, p github.CreatePayload) (engine.Result, error) {
	if p.RefType != "tag" {
		return engine.Discardf("created %s, not a tag", p.RefType), nil
	}
	f := newFact(ev, fact.KindTagCreated)
	f.Set("tag", fact.String(p.Ref)).
		Set("details", fact.String(fmt.Sprintf("A new tag '%s' has been created in %s by %s.",
			p.Ref, ev.Repo.Name, mention(ev.Actor))))
	return engine.Derive(f), nil
}

func (h handler) Unknown(_ context.Context, ev github.Event, p github.UnknownPayload) (engine.Result, error) {
	return engine.Discardf("%s is not tracked", p.Type), nil
}
