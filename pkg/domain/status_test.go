package domain

import "testing"

func TestParseAppointmentStatus(t *testing.T) {
	got, err := ParseAppointmentStatus(" In-Progress ")
	if err != nil || got != StatusInProgress {
		t.Fatalf("parse = %q, %v; want in-progress", got, err)
	}
	if _, err := ParseAppointmentStatus("done"); err == nil {
		t.Fatalf("expected unknown status to fail")
	}
}

func TestPermissivePolicyReopensCompleted(t *testing.T) {
	if err := (PermissivePolicy{}).Allow(StatusCompleted, StatusScheduled); err != nil {
		t.Fatalf("permissive policy rejected reopen: %v", err)
	}
}

func TestTerminalGuardPolicy(t *testing.T) {
	p := TerminalGuardPolicy{}
	if err := p.Allow(StatusScheduled, StatusCancelled); err != nil {
		t.Fatalf("scheduled -> cancelled rejected: %v", err)
	}
	if err := p.Allow(StatusCancelled, StatusScheduled); err == nil {
		t.Fatalf("cancelled -> scheduled should be rejected")
	}
	if err := p.Allow(StatusCompleted, StatusCompleted); err != nil {
		t.Fatalf("idempotent completed rejected: %v", err)
	}
}

func TestPolicyByName(t *testing.T) {
	if p, err := PolicyByName(""); err != nil {
		t.Fatalf("default policy: %v", err)
	} else if _, ok := p.(PermissivePolicy); !ok {
		t.Fatalf("default policy = %T, want PermissivePolicy", p)
	}
	if _, err := PolicyByName("strict-ish"); err == nil {
		t.Fatalf("expected unknown policy name to fail")
	}
}
