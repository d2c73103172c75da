package conversation

import (
	"testing"

	"orderdesk_backend/internal/conversation/planner"
	"orderdesk_backend/internal/conversation/repository"
)

func TestClearOutcome(t *testing.T) {
	cases := []struct {
		action        planner.Action
		addressNeeded bool
		addressOK     bool
		want          bool
	}{
		{planner.ActionConfirm, false, false, true},
		{planner.ActionConfirm, true, true, true},
		{planner.ActionConfirm, true, false, false},
		{planner.ActionCancel, false, false, false}, // cancellations always stay for review
		{planner.ActionCancel, true, true, false},
		{planner.ActionAskChoice, false, false, false},
		{planner.ActionRequestLocation, false, true, false},
	}

	for _, tc := range cases {
		got := clearOutcome(tc.action, tc.addressNeeded, tc.addressOK)
		if got != tc.want {
			t.Fatalf("clearOutcome(%s, needed=%v, ok=%v) = %v, want %v",
				tc.action, tc.addressNeeded, tc.addressOK, got, tc.want)
		}
	}
}

func TestApplyPlan_ConfirmWithSettledAddress(t *testing.T) {
	step := applyPlan(planner.Plan{Action: planner.ActionConfirm}, false, false, LocaleFrench)

	if step.state != repository.StateConfirmed {
		t.Fatalf("state = %q", step.state)
	}
	if !step.removable || !step.close {
		t.Fatalf("removable=%v close=%v", step.removable, step.close)
	}
	if step.decision == nil || step.decision.Status != "processing" || step.decision.Result != "confirmed" {
		t.Fatalf("decision = %+v", step.decision)
	}
}

func TestApplyPlan_ConfirmKeepsJobWhenAddressUnsettled(t *testing.T) {
	step := applyPlan(planner.Plan{Action: planner.ActionConfirm}, true, false, LocaleFrench)

	// The conversation still closes confirmed; only the queue job stays open
	// so a human can chase the missing address.
	if step.state != repository.StateConfirmed || !step.close {
		t.Fatalf("state=%q close=%v", step.state, step.close)
	}
	if step.removable {
		t.Fatal("confirm with unsettled address must not retire the job")
	}
	if step.decision == nil || step.decision.Result != "confirmed" {
		t.Fatalf("decision = %+v", step.decision)
	}
}

func TestApplyPlan_RequestLocationArmsAddressGate(t *testing.T) {
	step := applyPlan(planner.Plan{Action: planner.ActionRequestLocation}, false, false, LocaleFrench)

	if step.state != repository.StateAddressChange {
		t.Fatalf("state = %q", step.state)
	}
	if !step.needAddress {
		t.Fatal("request_location must mark the address as needed")
	}
	if step.close || step.removable {
		t.Fatalf("close=%v removable=%v", step.close, step.removable)
	}
}

// A location request in one turn must gate the confirm in a later turn until
// the customer actually provides an address.
func TestApplyPlan_ConfirmAfterLocationRequest(t *testing.T) {
	asked := applyPlan(planner.Plan{Action: planner.ActionRequestLocation}, false, false, LocaleFrench)
	if !asked.needAddress {
		t.Fatal("request_location did not arm the gate")
	}

	// The persisted flag from the first turn feeds the next one.
	unsettled := applyPlan(planner.Plan{Action: planner.ActionConfirm}, true, false, LocaleFrench)
	if unsettled.removable {
		t.Fatal("confirm retired the job while the requested address was still missing")
	}

	settled := applyPlan(planner.Plan{Action: planner.ActionConfirm}, true, true, LocaleFrench)
	if !settled.removable {
		t.Fatal("confirm with a settled address must retire the job")
	}
}

func TestApplyPlan_Cancel(t *testing.T) {
	step := applyPlan(planner.Plan{Action: planner.ActionCancel}, false, false, LocaleFrench)

	if step.state != repository.StateCancelled || !step.close {
		t.Fatalf("state=%q close=%v", step.state, step.close)
	}
	if step.removable {
		t.Fatal("cancel must never retire the job")
	}
	if step.decision == nil || step.decision.Status != "cancelled" {
		t.Fatalf("decision = %+v", step.decision)
	}
}

func TestApplyPlan_AskChoiceCarriesButtons(t *testing.T) {
	step := applyPlan(planner.Plan{Action: planner.ActionAskChoice}, false, false, LocaleFrench)

	if step.state != repository.StateAwaitChoice {
		t.Fatalf("state = %q", step.state)
	}
	if len(step.choices) != 3 {
		t.Fatalf("choices = %v", step.choices)
	}
	if step.decision != nil {
		t.Fatal("ask_choice must not touch the order")
	}
}

func TestApplyPlan_PlannerMessagePreferred(t *testing.T) {
	step := applyPlan(planner.Plan{Action: planner.ActionAskMoreInfo, Message: "La livraison prend 2 jours."}, false, false, LocaleFrench)
	if step.reply != "La livraison prend 2 jours." {
		t.Fatalf("reply = %q", step.reply)
	}

	step = applyPlan(planner.Plan{Action: planner.ActionAskMoreInfo}, false, false, LocaleFrench)
	if step.reply == "" {
		t.Fatal("empty planner message must fall back to the scripted ask")
	}
}

func TestConfirmStatus(t *testing.T) {
	if got := confirmStatus(""); got != "processing" {
		t.Fatalf("confirmStatus(empty) = %q", got)
	}
	if got := confirmStatus("PAID"); got != "paid" {
		t.Fatalf("confirmStatus(PAID) = %q", got)
	}
	// Hints outside the schema vocabulary are ignored.
	if got := confirmStatus("confirmed"); got != "processing" {
		t.Fatalf("confirmStatus(confirmed) = %q", got)
	}
}

func TestHasLocationSignal(t *testing.T) {
	yes := [][]byte{
		[]byte(`{"type":"location","location":{"latitude":33.58,"longitude":-7.62}}`),
		[]byte(`{"location":{"latitude":34.02,"longitude":-6.83}}`),
		[]byte(`{"type":"LOCATION"}`),
	}
	for _, payload := range yes {
		if !hasLocationSignal(payload) {
			t.Fatalf("hasLocationSignal(%s) = false", payload)
		}
	}

	no := [][]byte{
		nil,
		[]byte(`{"type":"text","text":"oui"}`),
		[]byte(`not json`),
	}
	for _, payload := range no {
		if hasLocationSignal(payload) {
			t.Fatalf("hasLocationSignal(%s) = true", payload)
		}
	}
}

func TestLooksLikeAddress(t *testing.T) {
	yes := []string{
		"12 rue des Orangers, Casablanca",
		"hay salam bloc 4",
		"n° 5",
	}
	for _, text := range yes {
		if !looksLikeAddress(text) {
			t.Fatalf("looksLikeAddress(%q) = false", text)
		}
	}

	no := []string{"oui", "ok", "merci"}
	for _, text := range no {
		if looksLikeAddress(text) {
			t.Fatalf("looksLikeAddress(%q) = true", text)
		}
	}
}
