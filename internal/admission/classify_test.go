package admission

import (
	"testing"

	"github.com/byteness/zerotrust-mesh/internal/auditlog"
	"github.com/byteness/zerotrust-mesh/internal/overlay"
)

func TestClassifySecurityLevel_Thresholds(t *testing.T) {
	cases := []struct {
		score int
		want  overlay.SecurityLevel
	}{
		{0, overlay.LevelUntrusted},
		{30, overlay.LevelUntrusted},
		{31, overlay.LevelBasic},
		{50, overlay.LevelBasic},
		{51, overlay.LevelVerified},
		{70, overlay.LevelVerified},
		{71, overlay.LevelPrivileged},
		{90, overlay.LevelPrivileged},
		{91, overlay.LevelCritical},
		{100, overlay.LevelCritical},
	}
	for _, tc := range cases {
		got := ClassifySecurityLevel(tc.score, nil)
		if got != tc.want {
			t.Errorf("score %d: got %v, want %v", tc.score, got, tc.want)
		}
	}
}

func TestClassifySecurityLevel_CriticalResourceForcesPrivilegedEvenAtHighScore(t *testing.T) {
	got := ClassifySecurityLevel(95, []string{"device-critical-sensor"})
	if got != overlay.LevelPrivileged {
		t.Errorf("got %v, want Privileged for a critical-resource request", got)
	}
}

func TestContainsCriticalResource_SubstringMatch(t *testing.T) {
	if !containsCriticalResource([]string{"foo", "critical-infra"}) {
		t.Error("expected substring match on \"critical-infra\"")
	}
	if containsCriticalResource([]string{"hardware", "storage"}) {
		t.Error("expected no match for unrelated resources")
	}
}

func TestAuditSecurityLevel_CollapsesToThreeTiers(t *testing.T) {
	cases := []struct {
		in   overlay.SecurityLevel
		want auditlog.SecurityLevel
	}{
		{overlay.LevelUntrusted, auditlog.SecurityLevelStandard},
		{overlay.LevelBasic, auditlog.SecurityLevelStandard},
		{overlay.LevelVerified, auditlog.SecurityLevelStandard},
		{overlay.LevelPrivileged, auditlog.SecurityLevelPrivileged},
		{overlay.LevelCritical, auditlog.SecurityLevelCritical},
	}
	for _, tc := range cases {
		if got := auditSecurityLevel(tc.in); got != tc.want {
			t.Errorf("auditSecurityLevel(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
