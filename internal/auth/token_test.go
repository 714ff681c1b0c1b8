package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestParseRole(t *testing.T) {
	cases := map[string]Role{"viewer": RoleViewer, " Operator ": RoleOperator, "ADMIN": RoleAdmin}
	for in, want := range cases {
		got, err := ParseRole(in)
		if err != nil || got != want {
			t.Fatalf("ParseRole(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseRole(""); err == nil {
		t.Fatalf("expected error for empty role")
	}
}

func TestRole_Covers(t *testing.T) {
	if !RoleAdmin.Covers(RoleViewer) || !RoleOperator.Covers(RoleOperator) {
		t.Fatalf("higher roles must cover lower ones")
	}
	if RoleViewer.Covers(RoleOperator) || Role("guest").Covers(RoleViewer) {
		t.Fatalf("lower or unknown roles must not cover")
	}
}

func TestIssueToken_RoundTrip(t *testing.T) {
	token, err := IssueToken(testSecret, Identity{Subject: "prometheus", Role: "Operator"}, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	id, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.Subject != "prometheus" || id.Role != RoleOperator {
		t.Fatalf("unexpected identity %+v", id)
	}
	if id.String() != "prometheus/operator" {
		t.Fatalf("unexpected identity string %q", id.String())
	}
}

func TestParseToken_RejectsUnknownRoleAndAlgorithm(t *testing.T) {
	unknown, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: "root"}).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseToken(unknown, testSecret); err == nil {
		t.Fatalf("expected unknown role rejected")
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{Role: "admin"}).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseToken(hs512, testSecret); err == nil {
		t.Fatalf("expected non-HS256 token rejected")
	}
}
