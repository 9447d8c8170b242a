package auth

import (
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("teacher-1", "Ms. Chen", "classpass", "secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := Parse(pair.AccessToken, "secret", "classpass")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "teacher-1" || claims.Name != "Ms. Chen" || claims.Role != "teacher" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestParseRejections(t *testing.T) {
	pair, err := Issue("teacher-1", "Ms. Chen", "classpass", "secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := Parse(pair.AccessToken, "wrong-key", "classpass"); err == nil {
		t.Error("expected error for wrong signing key")
	}
	if _, err := Parse(pair.AccessToken, "secret", "someone-else"); err == nil {
		t.Error("expected error for issuer mismatch")
	}
	if _, err := Parse("not.a.token", "secret", "classpass"); err == nil {
		t.Error("expected error for malformed token")
	}
}

func TestExpiredToken(t *testing.T) {
	pair, err := Issue("teacher-1", "Ms. Chen", "classpass", "secret", -time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "secret", "classpass"); err == nil {
		t.Error("expected error for expired token")
	}
}
