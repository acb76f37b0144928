package domain

import "errors"

type Status string

const (
	StatusDraft     Status = "Draft"
	StatusForwarded Status = "ForwardedToDealDesk"
	StatusEscalated Status = "EscalateForApproval"
	StatusApproved  Status = "Approved"
	StatusDeclined  Status = "Declined"
	StatusCancelled Status = "Cancelled"
)

type Action string

const (
	ActionForward  Action = "forward"
	ActionEscalate Action = "escalate"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionCancel   Action = "cancel"
	ActionReopen   Action = "reopen"
)

var ErrInvalidTransition = errors.New("invalid_status_transition")

type transition struct {
	from []Status
	to   Status
}

// Draft is only ever left through forward, reject or cancel, so there is no
// path from Draft to Approved that skips the deal desk and the approvers.
var transitions = map[Action]transition{
	ActionForward:  {from: []Status{StatusDraft, StatusEscalated}, to: StatusForwarded},
	ActionEscalate: {from: []Status{StatusForwarded}, to: StatusEscalated},
	ActionApprove:  {from: []Status{StatusEscalated}, to: StatusApproved},
	ActionReject:   {from: []Status{StatusDraft, StatusForwarded, StatusEscalated}, to: StatusDeclined},
	ActionCancel:   {from: []Status{StatusDraft, StatusForwarded, StatusEscalated}, to: StatusCancelled},
	ActionReopen:   {from: []Status{StatusForwarded, StatusEscalated, StatusDeclined, StatusCancelled}, to: StatusDraft},
}

// Next returns the status action leads to from current.
func Next(current Status, action Action) (Status, error) {
	t, ok := transitions[action]
	if !ok {
		return "", ErrInvalidTransition
	}
	for _, from := range t.from {
		if from == current {
			return t.to, nil
		}
	}
	return "", ErrInvalidTransition
}

func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusDeclined, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusForwarded, StatusEscalated, StatusApproved, StatusDeclined, StatusCancelled:
		return true
	default:
		return false
	}
}
