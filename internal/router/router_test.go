package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/agentforge/orchestrator-core/internal/budget"
)

func newTestRouter(t *testing.T) *Router {
	return New(zaptest.NewLogger(t), nil, nil, 0, nil, nil)
}

func TestRoute_QuickTypoFix(t *testing.T) {
	r := newTestRouter(t)
	sel, skillSel := r.Route(context.Background(), "fix typo in README", Analysis{}, Options{})

	require.Equal(t, budget.CategoryQuick, sel.Category)
	require.Empty(t, skillSel.Names())
	require.False(t, sel.Downgraded)
}

func TestRoute_VisualEngineeringCombinationBoost(t *testing.T) {
	r := newTestRouter(t)
	sel, skillSel := r.Route(context.Background(), "add responsive css and an e2e test for the component", Analysis{}, Options{})

	require.Equal(t, budget.CategoryVisualEngineering, sel.Category)
	require.Contains(t, skillSel.Names(), "frontend-ui-ux")
	require.Contains(t, skillSel.Names(), "playwright")
}

func TestRoute_ReportWritingPullsInDataAnalysisDependency(t *testing.T) {
	r := newTestRouter(t)
	_, skillSel := r.Route(context.Background(), "write a report summarizing last quarter", Analysis{}, Options{})

	require.Contains(t, skillSel.Names(), "report-writing")
	require.Contains(t, skillSel.Names(), "data-analysis")
}

func TestRoute_ZeroMatchesNeverThrowsAndPicksAFallback(t *testing.T) {
	r := newTestRouter(t)
	sel, _ := r.Route(context.Background(), "asdkjashdjkashdjk", Analysis{}, Options{})
	require.NotEmpty(t, sel.Category)
	require.InDelta(t, 0.4, sel.Confidence, 0.001)
}

func TestRoute_LowComplexityHintFallsBackToQuick(t *testing.T) {
	r := newTestRouter(t)
	sel, _ := r.Route(context.Background(), "asdkjashdjkashdjk", Analysis{ComplexityHint: "low"}, Options{})
	require.Equal(t, budget.CategoryQuick, sel.Category)
}

func TestFingerprint_StableAndTwelveChars(t *testing.T) {
	a := Fingerprint("Please fix the typo in the README file")
	b := Fingerprint("please FIX the typo in the README   file")
	require.Equal(t, a, b)
	require.Len(t, a, 12)
}

func TestIsFollowUp_ShortReferentialRequest(t *testing.T) {
	require.True(t, isFollowUp("fix that again"))
	require.False(t, isFollowUp("write a comprehensive architecture document for the new payments platform"))
}
