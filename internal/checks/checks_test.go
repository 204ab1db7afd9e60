package checks

import (
	"reflect"
	"testing"

	"github.com/reviewgate/reviewgate/internal/model"
)

const cleanDiff = `@@ -1,3 +1,5 @@
 package main
+
+func add(a, b int) int {
+	return a + b
+}
`

const secretDiff = `@@ -10,2 +10,4 @@
 const name = "svc"
+const apiKey = "sk-live-abcdef0123456789"
 const region = "eu"
+const other = 1
`

func TestAddedLines(t *testing.T) {
	diff := `@@ -2,4 +2,5 @@
 context one
-removed line
+added one
 context two
+added two
`
	got := AddedLines(diff)
	want := []AddedLine{
		{Text: "added one", Number: 3},
		{Text: "added two", Number: 5},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AddedLines() = %+v, want %+v", got, want)
	}
}

func TestAddedLinesMultipleHunks(t *testing.T) {
	diff := `@@ -1,2 +1,3 @@
 a
+b
 c
@@ -10,2 +20,3 @@
 x
+y
 z
`
	got := AddedLines(diff)
	if len(got) != 2 {
		t.Fatalf("AddedLines() len = %d, want 2", len(got))
	}
	if got[0].Number != 2 {
		t.Errorf("first added line number = %d, want 2", got[0].Number)
	}
	if got[1].Number != 21 {
		t.Errorf("second added line number = %d, want 21", got[1].Number)
	}
}

func TestAddedLinesIgnoresMalformed(t *testing.T) {
	if got := AddedLines("+not a hunk\nrandom text"); got != nil {
		t.Errorf("AddedLines() = %+v, want nil for content outside a hunk", got)
	}
	if got := AddedLines(""); got != nil {
		t.Errorf("AddedLines(empty) = %+v, want nil", got)
	}
}

func TestCleanChangePassesEverything(t *testing.T) {
	eng := NewEngine()
	ctx := Context{
		Changes: []Change{
			{Path: "apps/api/src/math.ts", Diff: cleanDiff},
			{Path: "apps/api/src/math.test.ts", Diff: cleanDiff},
		},
		MR: MRContext{Title: "Add math helper"},
	}

	outcomes := eng.Run(ctx, nil)
	if len(outcomes) != len(Registry()) {
		t.Fatalf("outcomes = %d, want %d", len(outcomes), len(Registry()))
	}
	for _, o := range outcomes {
		if o.Status != model.CheckStatusPass {
			t.Errorf("check %s = %s (%s), want PASS", o.CheckKey, o.Status, o.Message)
		}
	}
	if score := Score(outcomes); score != 100 {
		t.Errorf("Score() = %d, want 100", score)
	}
}

func TestZeroChangesScoreHundred(t *testing.T) {
	eng := NewEngine()
	outcomes := eng.Run(Context{}, nil)
	for _, o := range outcomes {
		if o.Status != model.CheckStatusPass {
			t.Errorf("check %s on empty change = %s, want PASS", o.CheckKey, o.Status)
		}
	}
	if score := Score(outcomes); score != 100 {
		t.Errorf("Score() = %d, want 100", score)
	}
}

func TestSecretDetection(t *testing.T) {
	eng := NewEngine()
	ctx := Context{Changes: []Change{{Path: "apps/api/src/config.ts", Diff: secretDiff}}}

	outcomes := eng.Run(ctx, nil)
	var found *Outcome
	for i := range outcomes {
		if outcomes[i].CheckKey == "security.hardcoded-secrets" {
			found = &outcomes[i]
		}
	}
	if found == nil {
		t.Fatal("security.hardcoded-secrets not in outcomes")
	}
	if found.Status != model.CheckStatusFail {
		t.Errorf("status = %s, want FAIL", found.Status)
	}
	if found.Severity != model.SeverityBlocker {
		t.Errorf("severity = %s, want BLOCKER", found.Severity)
	}
	if found.FilePath != "apps/api/src/config.ts" {
		t.Errorf("file = %q, want apps/api/src/config.ts", found.FilePath)
	}
	if found.LineStart != 11 {
		t.Errorf("line = %d, want 11", found.LineStart)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	eng := NewEngine()
	ctx := Context{
		Changes: []Change{
			{Path: "apps/api/src/a.ts", Diff: secretDiff},
			{Path: "scripts/tool.sh", Diff: cleanDiff},
		},
		MR: MRContext{Title: "Mixed change"},
	}

	first := eng.Run(ctx, nil)
	second := eng.Run(ctx, nil)
	if !reflect.DeepEqual(first, second) {
		t.Error("identical input produced different outcomes")
	}
	if Score(first) != Score(second) {
		t.Errorf("score not deterministic: %d vs %d", Score(first), Score(second))
	}
}

func TestOverlayDisablesCheck(t *testing.T) {
	eng := NewEngine()
	ctx := Context{Changes: []Change{{Path: "apps/api/src/a.ts", Diff: secretDiff}}}

	overlays := map[string]*model.CheckConfig{
		"security.hardcoded-secrets": {CheckKey: "security.hardcoded-secrets", Enabled: false},
	}
	outcomes := eng.Run(ctx, overlays)
	for _, o := range outcomes {
		if o.CheckKey == "security.hardcoded-secrets" {
			t.Error("disabled check still executed")
		}
	}
	if len(outcomes) != len(Registry())-1 {
		t.Errorf("outcomes = %d, want %d", len(outcomes), len(Registry())-1)
	}
}

func TestOverlaySeverityOverride(t *testing.T) {
	eng := NewEngine()
	ctx := Context{Changes: []Change{{Path: "apps/api/src/a.ts", Diff: secretDiff}}}

	overlays := map[string]*model.CheckConfig{
		"security.hardcoded-secrets": {
			CheckKey:         "security.hardcoded-secrets",
			Enabled:          true,
			SeverityOverride: model.SeverityWarn,
		},
	}
	outcomes := eng.Run(ctx, overlays)
	for _, o := range outcomes {
		if o.CheckKey == "security.hardcoded-secrets" {
			if o.Status != model.CheckStatusFail {
				t.Errorf("status = %s, want FAIL (override touches severity only)", o.Status)
			}
			if o.Severity != model.SeverityWarn {
				t.Errorf("severity = %s, want WARN override", o.Severity)
			}
		}
	}
}

func TestOverlayThresholds(t *testing.T) {
	eng := NewEngine()
	big := "@@ -1,1 +1,4 @@\n context\n+one\n+two\n+three\n"
	ctx := Context{Changes: []Change{{Path: "apps/api/src/a.ts", Diff: big}}}

	overlays := map[string]*model.CheckConfig{
		"quality.change-size": {
			CheckKey:   "quality.change-size",
			Enabled:    true,
			Thresholds: model.JSONMap{"maxAddedLines": float64(2)},
		},
	}
	outcomes := eng.Run(ctx, overlays)
	for _, o := range outcomes {
		if o.CheckKey == "quality.change-size" && o.Status != model.CheckStatusWarn {
			t.Errorf("change-size with maxAddedLines=2 = %s, want WARN", o.Status)
		}
	}
}

func TestPanickingCheckFails(t *testing.T) {
	defs := []Definition{
		{
			Key:      "test.panics",
			Title:    "always panics",
			Category: model.CategoryCodeQuality,
			Run: func(Context, Thresholds) Result {
				panic("boom")
			},
		},
		{
			Key:      "test.passes",
			Title:    "always passes",
			Category: model.CategoryCodeQuality,
			Run: func(Context, Thresholds) Result {
				return Result{Status: model.CheckStatusPass}
			},
		},
	}
	eng := NewEngineWith(defs)
	outcomes := eng.Run(Context{}, nil)
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2 (panic must not abort the run)", len(outcomes))
	}
	if outcomes[0].Status != model.CheckStatusFail {
		t.Errorf("panicking check status = %s, want FAIL", outcomes[0].Status)
	}
	if outcomes[0].Message != "check raised: boom" {
		t.Errorf("panicking check message = %q", outcomes[0].Message)
	}
	if outcomes[1].Status != model.CheckStatusPass {
		t.Errorf("sibling check status = %s, want PASS", outcomes[1].Status)
	}
}

func TestScoreWeighting(t *testing.T) {
	outcomes := []Outcome{
		{Category: model.CategorySecurity, Status: model.CheckStatusFail},
		{Category: model.CategoryTesting, Status: model.CheckStatusPass},
	}
	// security 20*0 + testing 15*10 over weight 35, scaled: 150/35*10 = 42.857 -> 43
	if got := Score(outcomes); got != 43 {
		t.Errorf("Score() = %d, want 43", got)
	}

	mixed := []Outcome{
		{Category: model.CategorySecurity, Status: model.CheckStatusPass},
		{Category: model.CategorySecurity, Status: model.CheckStatusWarn},
	}
	// single category mean 7.5 -> 75
	if got := Score(mixed); got != 75 {
		t.Errorf("Score() = %d, want 75", got)
	}
}

func TestHasFailInCategories(t *testing.T) {
	outcomes := []Outcome{
		{Category: model.CategorySecurity, Status: model.CheckStatusFail},
		{Category: model.CategoryPerformance, Status: model.CheckStatusWarn},
	}
	if !HasFailInCategories(outcomes, model.CategorySecurity, model.CategoryCodeQuality) {
		t.Error("security FAIL not detected")
	}
	if HasFailInCategories(outcomes, model.CategoryPerformance) {
		t.Error("performance WARN reported as FAIL")
	}
}

func TestRegistryKeysUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, def := range Registry() {
		if seen[def.Key] {
			t.Errorf("duplicate check key %s", def.Key)
		}
		seen[def.Key] = true
		if def.Category == "" || def.Run == nil {
			t.Errorf("check %s missing category or run func", def.Key)
		}
	}
}
